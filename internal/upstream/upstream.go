// Package upstream defines the contract this gateway consumes from the
// chat-network client library: the events a connected socket emits and
// the operations a session invokes on it. The meow subpackage provides
// the production implementation; tests substitute fakes.
package upstream

import (
	"context"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// Connection states reported by ConnectionUpdate
const (
	ConnectionOpen  = "open"
	ConnectionClose = "close"
)

// Event is the union of everything a socket emits. Exactly one concrete
// type hides behind each value.
type Event interface {
	event()
}

// ConnectionUpdate reports socket lifecycle changes. QR is set while the
// upstream is waiting for pairing; LoggedOut distinguishes a terminal
// close from a transient one.
type ConnectionUpdate struct {
	QR         string
	Connection string // "open" | "close" | "" (QR-only update)
	LoggedOut  bool
	StatusCode int
	Reason     string
}

// CredsUpdate signals that credentials changed; the production adapter
// persists them itself, sessions only observe it.
type CredsUpdate struct{}

// ChatSnapshot is one chat as reported by the upstream history feed
type ChatSnapshot struct {
	JID                  string
	Name                 string
	UnreadCount          int
	LastMessageTimestamp int64
	LastMessageText      string
}

// Contact is one address-book entry
type Contact struct {
	JID  string
	Name string
}

// ChatsSet carries the initial chat list
type ChatsSet struct {
	Chats []ChatSnapshot
}

// ChatsUpsert carries incremental chat updates
type ChatsUpsert struct {
	Chats []ChatSnapshot
}

// ContactsSet carries the initial contact list
type ContactsSet struct {
	Contacts []Contact
}

// ContactsUpsert carries incremental contact updates
type ContactsUpsert struct {
	Contacts []Contact
}

// HistorySet carries one page of backfilled history
type HistorySet struct {
	Chats    []ChatSnapshot
	Contacts []Contact
	Messages []RawMessage
}

// MessagesUpsert carries live message deliveries. Kind "notify" marks
// real-time messages; other kinds are history appendices.
type MessagesUpsert struct {
	Kind     string
	Messages []RawMessage
}

func (ConnectionUpdate) event() {}
func (CredsUpdate) event()      {}
func (ChatsSet) event()         {}
func (ChatsUpsert) event()      {}
func (ContactsSet) event()      {}
func (ContactsUpsert) event()   {}
func (HistorySet) event()       {}
func (MessagesUpsert) event()   {}

// MessageKey identifies one raw message
type MessageKey struct {
	ID          string
	RemoteJID   string
	FromMe      bool
	Participant string
}

// ExtendedText is quoted/annotated text content
type ExtendedText struct {
	Text        string
	ContextInfo *model.ContextInfo
}

// Media covers image, video, audio, document, and sticker content
type Media struct {
	Caption  string
	Mimetype string
	FileName string
	Seconds  uint32
}

// Location is a shared position
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// ContactCard is a shared vCard
type ContactCard struct {
	DisplayName string
	Vcard       string
}

// RawContent is the loosely typed upstream message body. At most one
// pointer is set; Tag() derives the upstream discriminant.
type RawContent struct {
	Conversation string
	ExtendedText *ExtendedText
	Image        *Media
	Video        *Media
	Audio        *Media
	Document     *Media
	Sticker      *Media
	Location     *Location
	Contact      *ContactCard
	Protocol     bool
	Unknown      string // raw tag of an unhandled type
}

// Raw upstream content tags
const (
	TagConversation = "conversation"
	TagExtendedText = "extendedTextMessage"
	TagImage        = "imageMessage"
	TagVideo        = "videoMessage"
	TagAudio        = "audioMessage"
	TagDocument     = "documentMessage"
	TagSticker      = "stickerMessage"
	TagLocation     = "locationMessage"
	TagContact      = "contactMessage"
	TagProtocol     = "protocolMessage"
	TagUnknown      = "unknown"
)

// Tag returns the upstream discriminant for this content
func (c RawContent) Tag() string {
	switch {
	case c.Protocol:
		return TagProtocol
	case c.Conversation != "":
		return TagConversation
	case c.ExtendedText != nil:
		return TagExtendedText
	case c.Image != nil:
		return TagImage
	case c.Video != nil:
		return TagVideo
	case c.Audio != nil:
		return TagAudio
	case c.Document != nil:
		return TagDocument
	case c.Sticker != nil:
		return TagSticker
	case c.Location != nil:
		return TagLocation
	case c.Contact != nil:
		return TagContact
	case c.Unknown != "":
		return c.Unknown
	default:
		return TagUnknown
	}
}

// RawMessage is one message as received from the upstream, before
// normalization into model.MessageInfo.
type RawMessage struct {
	Key              MessageKey
	MessageTimestamp int64
	PushName         string
	Content          RawContent
}

// SendResult reports the upstream-assigned identity of a sent message
type SendResult struct {
	ID        string
	Timestamp int64
}

// BusinessProfile is the best-effort upstream business metadata; empty
// fields mean "not available from upstream".
type BusinessProfile struct {
	Name         string
	WorkingHours string
	Website      string
	Address      string
}

// Client is a connected socket for one tenant
type Client interface {
	// SendText sends a plain text message to a JID
	SendText(ctx context.Context, jid, text string) (SendResult, error)
	// OnWhatsApp checks whether a phone number is registered upstream
	OnWhatsApp(ctx context.Context, phoneDigits string) (exists bool, jid string, err error)
	// Logout terminates the upstream registration
	Logout(ctx context.Context) error
	// Disconnect tears the socket down without logging out
	Disconnect()
	// SelfJID returns the account's own JID, "" before pairing
	SelfJID() string
	// BusinessProfile fetches the upstream business profile, nil when
	// the account has none
	BusinessProfile(ctx context.Context, jid string) (*BusinessProfile, error)
	// FetchStatus fetches the account's status/about text
	FetchStatus(ctx context.Context, jid string) (string, error)
	// FetchMessageHistory requests up to count messages older than the
	// anchor; results arrive asynchronously as HistorySet events
	FetchMessageHistory(ctx context.Context, count int, anchor model.MessageAnchor) error
}

// Dialer creates sockets from on-disk credential state. sessionPath is
// the per-tenant directory holding credentials; handler receives every
// event the socket emits, invoked sequentially per socket.
type Dialer interface {
	Dial(ctx context.Context, sessionPath string, handler func(Event)) (Client, error)
	// HasCredentials reports whether sessionPath holds pairable state
	HasCredentials(sessionPath string) bool
}
