// Package store defines the persistent-store contract consumed by the
// ingestion workers, the tenant sessions, and the REST collaborator,
// plus its Postgres implementation.
package store

import (
	"context"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// Store is the full persistence surface. Implementations must make
// SaveMessagesBatch transactional and idempotent: duplicate message ids
// are ignored, and the chat row is always upserted before its message so
// foreign-key constraints never fail mid-batch.
type Store interface {
	// chats and messages
	UpsertChat(ctx context.Context, chat model.ChatUpsert) error
	UpsertChats(ctx context.Context, chats []model.ChatUpsert) error
	SaveMessage(ctx context.Context, m model.Message) error
	SaveMessagesBatch(ctx context.Context, recs []model.IngestRecord) error

	// queries. cursor semantics: 0 means "from the top"; otherwise rows
	// strictly below the cursor timestamp are returned. nextCursor is 0
	// when the listing is exhausted.
	ListConversations(ctx context.Context, limit int, cursor int64) (chats []model.Chat, nextCursor int64, err error)
	ListMessages(ctx context.Context, jid string, limit int, cursor int64) (msgs []model.Message, nextCursor int64, err error)
	OldestMessageAnchor(ctx context.Context, jid string) (*model.MessageAnchor, error)

	// liveness
	Ping(ctx context.Context) error

	// tenant configuration
	ActiveWebhooks(ctx context.Context, username string) ([]model.Webhook, error)
	InsertWebhook(ctx context.Context, username string, hook model.Webhook) error
	SetWebhookActive(ctx context.Context, username, id string, active bool) error
	DeleteWebhook(ctx context.Context, username, id string) error
	ExcludedNumbers(ctx context.Context, username string) (map[string]struct{}, error)
	GetBusinessInfo(ctx context.Context, username string) (*model.BusinessInfo, error)
	SaveBusinessInfo(ctx context.Context, username string, info model.BusinessInfo) error
}
