package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// Postgres implements Store over a pgx connection pool
type Postgres struct {
	DB *pgxpool.Pool
}

// NewPostgres wraps an open pool
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{DB: db}
}

// Ping verifies store reachability
func (s *Postgres) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

// upsertChatSQL merges a partial chat write: NULL parameters keep the
// stored value (COALESCE on both insert defaults and conflict update).
const upsertChatSQL = `
	INSERT INTO chats (jid, name, is_group, unread_count, last_message_ts, last_message_text)
	VALUES ($1, COALESCE($2, ''), COALESCE($3, FALSE), COALESCE($4, 0), $5, $6)
	ON CONFLICT (jid) DO UPDATE SET
		name              = COALESCE($2, chats.name),
		is_group          = COALESCE($3, chats.is_group),
		unread_count      = COALESCE($4, chats.unread_count),
		last_message_ts   = COALESCE($5, chats.last_message_ts),
		last_message_text = COALESCE($6, chats.last_message_text)
`

// UpsertChat merges a single partial chat row
func (s *Postgres) UpsertChat(ctx context.Context, chat model.ChatUpsert) error {
	if chat.JID == "" {
		return fmt.Errorf("upsert chat: empty jid")
	}
	_, err := s.DB.Exec(ctx, upsertChatSQL,
		chat.JID, chat.Name, chat.IsGroup, chat.UnreadCount,
		chat.LastMessageTimestamp, chat.LastMessageText)
	if err != nil {
		return fmt.Errorf("upsert chat %s: %w", chat.JID, err)
	}
	return nil
}

// UpsertChats merges a batch of partial chat rows in one transaction
func (s *Postgres) UpsertChats(ctx context.Context, chats []model.ChatUpsert) error {
	if len(chats) == 0 {
		return nil
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert chats: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, chat := range chats {
		if chat.JID == "" {
			continue
		}
		if _, err := tx.Exec(ctx, upsertChatSQL,
			chat.JID, chat.Name, chat.IsGroup, chat.UnreadCount,
			chat.LastMessageTimestamp, chat.LastMessageText); err != nil {
			return fmt.Errorf("upsert chat %s: %w", chat.JID, err)
		}
	}
	return tx.Commit(ctx)
}

const insertMessageSQL = `
	INSERT INTO messages (id, jid, from_me, ts, type, push_name, content)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
`

// SaveMessage persists one message, upserting its chat row first so the
// foreign key always resolves. Duplicate ids are a no-op.
func (s *Postgres) SaveMessage(ctx context.Context, m model.Message) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save message: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.saveMessageTx(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) saveMessageTx(ctx context.Context, tx pgx.Tx, m model.Message) error {
	isGroup := model.IsGroupJID(m.JID)
	preview := m.Content.Preview()
	chat := model.ChatUpsert{
		JID:                  m.JID,
		IsGroup:              &isGroup,
		LastMessageTimestamp: &m.Timestamp,
	}
	if preview != "" {
		chat.LastMessageText = &preview
	}
	if !m.FromMe && m.PushName != "" && !isGroup {
		chat.Name = &m.PushName
	}
	if _, err := tx.Exec(ctx, upsertChatSQL,
		chat.JID, chat.Name, chat.IsGroup, chat.UnreadCount,
		chat.LastMessageTimestamp, chat.LastMessageText); err != nil {
		return fmt.Errorf("upsert chat %s: %w", m.JID, err)
	}

	content, err := json.Marshal(m.Content)
	if err != nil {
		return fmt.Errorf("marshal message content %s: %w", m.ID, err)
	}
	if _, err := tx.Exec(ctx, insertMessageSQL,
		m.ID, m.JID, m.FromMe, m.Timestamp, m.Type, m.PushName, content); err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

// SaveMessagesBatch persists a worker batch atomically. Each record's
// chat is upserted before its message; duplicate message ids are
// ignored, which is what makes replay after a crash safe.
func (s *Postgres) SaveMessagesBatch(ctx context.Context, recs []model.IngestRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range recs {
		m := rec.Payload
		msg := model.Message{
			ID:        m.ID,
			JID:       m.From,
			FromMe:    m.FromMe,
			Timestamp: m.Timestamp,
			Type:      m.Type,
			PushName:  m.PushName,
			Content:   m.Content,
		}
		if err := s.saveMessageTx(ctx, tx, msg); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListConversations pages chats by descending last-message timestamp,
// chats that never saw a message sorting last.
func (s *Postgres) ListConversations(ctx context.Context, limit int, cursor int64) ([]model.Chat, int64, error) {
	query := `
		SELECT jid, name, is_group, unread_count, last_message_ts, last_message_text
		FROM chats
	`
	args := []any{}
	if cursor > 0 {
		query += ` WHERE last_message_ts < $1`
		args = append(args, cursor)
	}
	query += fmt.Sprintf(` ORDER BY last_message_ts DESC NULLS LAST LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	chats := make([]model.Chat, 0, limit)
	var next int64
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.JID, &c.Name, &c.IsGroup, &c.UnreadCount,
			&c.LastMessageTimestamp, &c.LastMessageText); err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		chats = append(chats, c)
		if c.LastMessageTimestamp != nil {
			next = *c.LastMessageTimestamp
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list conversations rows: %w", err)
	}
	if len(chats) < limit {
		next = 0
	}
	return chats, next, nil
}

// ListMessages pages one chat's messages by descending timestamp
func (s *Postgres) ListMessages(ctx context.Context, jid string, limit int, cursor int64) ([]model.Message, int64, error) {
	query := `
		SELECT id, jid, from_me, ts, type, push_name, content
		FROM messages
		WHERE jid = $1
	`
	args := []any{jid}
	if cursor > 0 {
		query += ` AND ts < $2`
		args = append(args, cursor)
	}
	query += fmt.Sprintf(` ORDER BY ts DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages %s: %w", jid, err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, limit)
	var next int64
	for rows.Next() {
		var m model.Message
		var content []byte
		if err := rows.Scan(&m.ID, &m.JID, &m.FromMe, &m.Timestamp,
			&m.Type, &m.PushName, &content); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		if len(content) > 0 {
			if err := json.Unmarshal(content, &m.Content); err != nil {
				log.Warn().Err(err).Str("id", m.ID).Msg("undecodable message content")
			}
		}
		msgs = append(msgs, m)
		next = m.Timestamp
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list messages rows: %w", err)
	}
	if len(msgs) < limit {
		next = 0
	}
	return msgs, next, nil
}

// OldestMessageAnchor returns the oldest stored message of a chat, used
// as the history-backfill anchor. nil when the chat has no messages.
func (s *Postgres) OldestMessageAnchor(ctx context.Context, jid string) (*model.MessageAnchor, error) {
	var a model.MessageAnchor
	err := s.DB.QueryRow(ctx, `
		SELECT id, jid, from_me, ts
		FROM messages
		WHERE jid = $1
		ORDER BY ts ASC
		LIMIT 1
	`, jid).Scan(&a.ID, &a.JID, &a.FromMe, &a.Timestamp)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("oldest message anchor %s: %w", jid, err)
	}
	return &a, nil
}
