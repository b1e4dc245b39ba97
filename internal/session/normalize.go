package session

import (
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/upstream"
)

// Normalize converts a raw upstream message into the internal model.
// This is the only place raw upstream fields are touched. The message
// Type keeps the upstream discriminant tag; Content carries the
// normalized variant. Protocol messages report ok=false and are dropped
// by every caller.
func Normalize(raw upstream.RawMessage) (model.MessageInfo, bool) {
	tag := raw.Content.Tag()
	if tag == upstream.TagProtocol {
		return model.MessageInfo{}, false
	}

	info := model.MessageInfo{
		ID:        raw.Key.ID,
		From:      raw.Key.RemoteJID,
		FromMe:    raw.Key.FromMe,
		Timestamp: raw.MessageTimestamp,
		Type:      tag,
		PushName:  raw.PushName,
		IsGroup:   model.IsGroupJID(raw.Key.RemoteJID),
		Content:   normalizeContent(raw.Content, tag),
	}
	return info, true
}

func normalizeContent(c upstream.RawContent, tag string) model.MessageContent {
	switch {
	case c.Conversation != "":
		return model.MessageContent{Type: model.TypeText, Text: c.Conversation}
	case c.ExtendedText != nil:
		return model.MessageContent{
			Type:        model.TypeText,
			Text:        c.ExtendedText.Text,
			ContextInfo: c.ExtendedText.ContextInfo,
		}
	case c.Image != nil:
		return mediaContent(model.TypeImage, c.Image)
	case c.Video != nil:
		return mediaContent(model.TypeVideo, c.Video)
	case c.Audio != nil:
		return mediaContent(model.TypeAudio, c.Audio)
	case c.Document != nil:
		return mediaContent(model.TypeDocument, c.Document)
	case c.Sticker != nil:
		return mediaContent(model.TypeSticker, c.Sticker)
	case c.Location != nil:
		return model.MessageContent{
			Type:      model.TypeLocation,
			Latitude:  c.Location.Latitude,
			Longitude: c.Location.Longitude,
			Name:      c.Location.Name,
		}
	case c.Contact != nil:
		return model.MessageContent{
			Type:        model.TypeContact,
			DisplayName: c.Contact.DisplayName,
			Vcard:       c.Contact.Vcard,
		}
	default:
		// unhandled upstream type: opaque passthrough
		return model.MessageContent{Type: tag, Content: "unhandled"}
	}
}

func mediaContent(typ string, m *upstream.Media) model.MessageContent {
	return model.MessageContent{
		Type:     typ,
		Caption:  m.Caption,
		Mimetype: m.Mimetype,
		FileName: m.FileName,
		Seconds:  m.Seconds,
	}
}
