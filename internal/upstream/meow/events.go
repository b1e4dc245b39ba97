package meow

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/upstream"
)

// handleEvent translates whatsmeow events into the upstream contract.
// whatsmeow invokes handlers sequentially per client, which is what
// preserves per-sender append order in the durable log.
func (c *client) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		c.handler(upstream.ConnectionUpdate{Connection: upstream.ConnectionOpen})
	case *events.Disconnected:
		c.handler(upstream.ConnectionUpdate{Connection: upstream.ConnectionClose})
	case *events.LoggedOut:
		c.handler(upstream.ConnectionUpdate{
			Connection: upstream.ConnectionClose,
			LoggedOut:  true,
			StatusCode: int(evt.Reason),
			Reason:     evt.Reason.String(),
		})
	case *events.PairSuccess:
		c.handler(upstream.CredsUpdate{})
	case *events.Message:
		c.handler(upstream.MessagesUpsert{
			Kind:     "notify",
			Messages: []upstream.RawMessage{rawMessageFromEvent(evt)},
		})
	case *events.PushName:
		c.handler(upstream.ContactsUpsert{Contacts: []upstream.Contact{{
			JID:  evt.JID.ToNonAD().String(),
			Name: evt.NewPushName,
		}}})
	case *events.HistorySync:
		if set := historySetFromEvent(evt); set != nil {
			c.handler(*set)
		}
	}
}

func rawMessageFromEvent(evt *events.Message) upstream.RawMessage {
	return upstream.RawMessage{
		Key: upstream.MessageKey{
			ID:          evt.Info.ID,
			RemoteJID:   evt.Info.Chat.String(),
			FromMe:      evt.Info.IsFromMe,
			Participant: evt.Info.Sender.ToNonAD().String(),
		},
		MessageTimestamp: evt.Info.Timestamp.Unix(),
		PushName:         evt.Info.PushName,
		Content:          rawContent(evt.Message),
	}
}

// rawContent maps the protobuf message body onto the loose content
// union, checking the same accessors pantalk-style text extraction uses.
func rawContent(msg *waE2E.Message) upstream.RawContent {
	if msg == nil {
		return upstream.RawContent{Unknown: upstream.TagUnknown}
	}
	switch {
	case msg.GetProtocolMessage() != nil:
		return upstream.RawContent{Protocol: true}
	case msg.GetConversation() != "":
		return upstream.RawContent{Conversation: msg.GetConversation()}
	case msg.GetExtendedTextMessage() != nil:
		ext := msg.GetExtendedTextMessage()
		out := upstream.RawContent{ExtendedText: &upstream.ExtendedText{Text: ext.GetText()}}
		if ci := ext.GetContextInfo(); ci != nil {
			out.ExtendedText.ContextInfo = &model.ContextInfo{
				StanzaID:    ci.GetStanzaID(),
				Participant: ci.GetParticipant(),
			}
			if quoted := ci.GetQuotedMessage(); quoted != nil {
				out.ExtendedText.ContextInfo.QuotedText = quoted.GetConversation()
			}
		}
		return out
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		return upstream.RawContent{Image: &upstream.Media{
			Caption: img.GetCaption(), Mimetype: img.GetMimetype(),
		}}
	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		return upstream.RawContent{Video: &upstream.Media{
			Caption: vid.GetCaption(), Mimetype: vid.GetMimetype(), Seconds: vid.GetSeconds(),
		}}
	case msg.GetAudioMessage() != nil:
		aud := msg.GetAudioMessage()
		return upstream.RawContent{Audio: &upstream.Media{
			Mimetype: aud.GetMimetype(), Seconds: aud.GetSeconds(),
		}}
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		return upstream.RawContent{Document: &upstream.Media{
			Caption: doc.GetCaption(), Mimetype: doc.GetMimetype(), FileName: doc.GetFileName(),
		}}
	case msg.GetStickerMessage() != nil:
		st := msg.GetStickerMessage()
		return upstream.RawContent{Sticker: &upstream.Media{Mimetype: st.GetMimetype()}}
	case msg.GetLocationMessage() != nil:
		loc := msg.GetLocationMessage()
		return upstream.RawContent{Location: &upstream.Location{
			Latitude:  loc.GetDegreesLatitude(),
			Longitude: loc.GetDegreesLongitude(),
			Name:      loc.GetName(),
		}}
	case msg.GetContactMessage() != nil:
		ct := msg.GetContactMessage()
		return upstream.RawContent{Contact: &upstream.ContactCard{
			DisplayName: ct.GetDisplayName(),
			Vcard:       ct.GetVcard(),
		}}
	default:
		return upstream.RawContent{Unknown: upstream.TagUnknown}
	}
}

func historySetFromEvent(evt *events.HistorySync) *upstream.HistorySet {
	data := evt.Data
	if data == nil {
		return nil
	}
	set := &upstream.HistorySet{}
	for _, conv := range data.GetConversations() {
		jid := conv.GetID()
		if jid == "" {
			continue
		}
		snap := upstream.ChatSnapshot{
			JID:         jid,
			Name:        conv.GetDisplayName(),
			UnreadCount: int(conv.GetUnreadCount()),
		}
		for _, hm := range conv.GetMessages() {
			raw, ok := rawMessageFromHistory(jid, hm)
			if !ok {
				continue
			}
			if raw.MessageTimestamp > snap.LastMessageTimestamp {
				snap.LastMessageTimestamp = raw.MessageTimestamp
			}
			set.Messages = append(set.Messages, raw)
		}
		set.Chats = append(set.Chats, snap)
	}
	for _, pn := range data.GetPushnames() {
		if pn.GetID() == "" || pn.GetPushname() == "" {
			continue
		}
		set.Contacts = append(set.Contacts, upstream.Contact{JID: pn.GetID(), Name: pn.GetPushname()})
	}
	if len(set.Chats) == 0 && len(set.Contacts) == 0 && len(set.Messages) == 0 {
		return nil
	}
	return set
}

func rawMessageFromHistory(chatJID string, hm *waHistorySync.HistorySyncMsg) (upstream.RawMessage, bool) {
	if hm == nil || hm.Message == nil {
		return upstream.RawMessage{}, false
	}
	msg := hm.Message
	key := msg.GetKey()
	if key == nil || key.GetID() == "" {
		return upstream.RawMessage{}, false
	}
	return upstream.RawMessage{
		Key: upstream.MessageKey{
			ID:          key.GetID(),
			RemoteJID:   chatJID,
			FromMe:      key.GetFromMe(),
			Participant: key.GetParticipant(),
		},
		MessageTimestamp: int64(msg.GetMessageTimestamp()),
		Content:          rawContent(msg.GetMessage()),
	}, true
}

func timeUnix(sec int64) time.Time {
	return time.Unix(sec, 0)
}
