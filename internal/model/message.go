package model

import (
	"fmt"
	"strings"
)

// Message type tags. Unknown upstream types are passed through verbatim.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeDocument = "document"
	TypeSticker  = "sticker"
	TypeLocation = "location"
	TypeContact  = "contact"
)

// JID server suffixes used by the upstream network
const (
	GroupSuffix      = "@g.us"
	IndividualSuffix = "@s.whatsapp.net"
)

// ContextInfo carries reply/quote metadata attached to a text message
type ContextInfo struct {
	StanzaID    string `json:"stanzaId,omitempty"`
	Participant string `json:"participant,omitempty"`
	QuotedText  string `json:"quotedText,omitempty"`
}

// MessageContent is the tagged variant keyed by the message type.
// Only the fields relevant to the tag are populated; everything else is
// omitted from the serialized form.
type MessageContent struct {
	Type string `json:"type"`

	// text
	Text        string       `json:"text,omitempty"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`

	// media (image, video, audio, document, sticker)
	Caption  string `json:"caption,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Seconds  uint32 `json:"seconds,omitempty"`

	// location
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Name      string  `json:"name,omitempty"`

	// contact
	DisplayName string `json:"displayName,omitempty"`
	Vcard       string `json:"vcard,omitempty"`

	// opaque passthrough for unhandled upstream types
	Content string `json:"content,omitempty"`
}

// MessageInfo is the normalized in-memory message. It is produced by the
// session normalizer (the only place that touches raw upstream fields) and
// consumed by the ingestion pipeline and the persistent store.
type MessageInfo struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	FromMe    bool           `json:"fromMe"`
	Timestamp int64          `json:"timestamp"` // seconds since epoch
	Type      string         `json:"type"`
	PushName  string         `json:"pushName,omitempty"`
	Content   MessageContent `json:"content"`
	IsGroup   bool           `json:"isGroup"`
}

// IngestRecord is what the durable log stores: one self-contained JSON
// line per accepted message.
type IngestRecord struct {
	IdempotencyKey string      `json:"idempotencyKey"`
	CorrelationID  string      `json:"correlationId"`
	ReceivedAt     int64       `json:"receivedAt"` // milliseconds since epoch
	Payload        MessageInfo `json:"payload"`
}

// Preview returns the short text used for a chat's last-message summary
func (c MessageContent) Preview() string {
	switch {
	case c.Text != "":
		return c.Text
	case c.Caption != "":
		return c.Caption
	case c.Name != "":
		return c.Name
	case c.DisplayName != "":
		return c.DisplayName
	default:
		return ""
	}
}

// IsGroupJID reports whether a JID addresses a group chat
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, GroupSuffix)
}

// IdempotencyKey derives the durable-log idempotency key for a message.
// Uniqueness domain is the account's message id namespace.
func IdempotencyKey(id string) string {
	return "wa:" + id
}

// CorrelationID derives a stable tracing id for a message. Messages
// without an upstream id fall back to sender+timestamp.
func (m MessageInfo) CorrelationID() string {
	if m.ID != "" {
		return "cid:" + m.ID
	}
	return fmt.Sprintf("cid:%s:%d", m.From, m.Timestamp)
}

// E164FromJID extracts the sender phone number from a JID as an E.164
// string ("+" plus the digits before "@"). Device suffixes (":24") and
// non-digit characters are dropped. Returns "" when no digits remain,
// as for "status@broadcast"; group JIDs keep their digits.
func E164FromJID(jid string) string {
	user := jid
	if at := strings.Index(user, "@"); at >= 0 {
		user = user[:at]
	}
	if colon := strings.Index(user, ":"); colon >= 0 {
		user = user[:colon]
	}
	digits := DigitsOnly(user)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// DigitsOnly strips everything but ASCII digits
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeJID turns a recipient into a full individual JID: anything
// already containing "@" is passed through, otherwise the stripped digits
// get the individual server suffix appended.
func NormalizeJID(to string) string {
	if strings.Contains(to, "@") {
		return to
	}
	return DigitsOnly(to) + IndividualSuffix
}
