package session

import (
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/upstream"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/webhook"
)

// handleEvent is the single entry point for upstream events. Errors in
// any handler are logged and surfaced as an error webhook; they never
// crash the session or block ingestion.
func (s *Session) handleEvent(evt upstream.Event) {
	switch e := evt.(type) {
	case upstream.ConnectionUpdate:
		s.onConnectionUpdate(e)
	case upstream.CredsUpdate:
		s.logger.Debug().Msg("credentials updated")
	case upstream.ChatsSet:
		s.onChats(e.Chats)
	case upstream.ChatsUpsert:
		s.onChats(e.Chats)
	case upstream.ContactsSet:
		s.onContacts(e.Contacts)
	case upstream.ContactsUpsert:
		s.onContacts(e.Contacts)
	case upstream.HistorySet:
		s.onHistorySet(e)
	case upstream.MessagesUpsert:
		s.onMessagesUpsert(e)
	}
}

func (s *Session) onConnectionUpdate(e upstream.ConnectionUpdate) {
	if e.QR != "" {
		s.mu.Lock()
		s.state = StateWaitingQR
		s.qr = e.QR
		signal := s.qrSignal
		s.qrSignal = make(chan struct{})
		s.mu.Unlock()
		close(signal)
		s.logger.Info().Msg("pairing code received")
		return
	}

	switch e.Connection {
	case upstream.ConnectionOpen:
		s.onOpen()
	case upstream.ConnectionClose:
		s.onClose(e)
	}
}

func (s *Session) onOpen() {
	s.mu.Lock()
	s.state = StateConnected
	s.qr = ""
	s.reconnectAttempts = 0
	wasReconnect := s.pendingBackfill
	s.pendingBackfill = false
	signal := s.qrSignal
	s.qrSignal = make(chan struct{})
	s.mu.Unlock()
	close(signal)

	s.logger.Info().Msg("connected")
	s.notifier.Notify(s.ctx, s.username, webhook.EventConnection, webhook.ConnectionEvent{Status: "connected"})

	go func() {
		if err := s.RefreshBusinessInfo(s.ctx); err != nil {
			s.logger.Warn().Err(err).Msg("business info refresh failed")
		}
		if wasReconnect {
			s.syncHistoryOnReconnect(s.ctx)
		}
	}()
}

func (s *Session) onClose(e upstream.ConnectionUpdate) {
	if e.LoggedOut {
		s.logger.Warn().Str("reason", e.Reason).Msg("upstream reported logout")
		s.mu.Lock()
		s.state = StateLoggedOut
		s.client = nil
		s.qr = ""
		s.reconnectAttempts = 0
		s.eraseCredentialsLocked()
		s.state = StateIdle
		s.mu.Unlock()

		s.notifier.Notify(s.ctx, s.username, webhook.EventConnection, webhook.ConnectionEvent{
			Status: "logged_out",
			Reason: e.Reason,
		})
		// schedule a fresh initialize so the tenant can re-pair
		go func() {
			if err := s.Initialize(s.ctx, false); err != nil {
				s.logger.Error().Err(err).Msg("fresh initialize after logout failed")
			}
		}()
		return
	}

	s.mu.Lock()
	s.state = StateReconnecting
	s.reconnectAttempts++
	attempts := s.reconnectAttempts
	s.mu.Unlock()

	s.logger.Warn().Int("attempt", attempts).Msg("transient disconnect, reconnecting")
	go func() {
		if err := s.Initialize(s.ctx, true); err != nil {
			s.logger.Error().Err(err).Msg("reconnect failed")
		}
	}()
}

func (s *Session) onChats(chats []upstream.ChatSnapshot) {
	if len(chats) == 0 {
		return
	}
	upserts := make([]model.ChatUpsert, 0, len(chats))
	for _, c := range chats {
		upserts = append(upserts, chatUpsertFromSnapshot(c))
	}
	if err := s.store.UpsertChats(s.ctx, upserts); err != nil {
		s.eventError("chats", err)
	}
}

func (s *Session) onContacts(contacts []upstream.Contact) {
	for _, c := range contacts {
		if c.JID == "" || c.Name == "" {
			continue
		}
		name := c.Name
		if err := s.store.UpsertChat(s.ctx, model.ChatUpsert{JID: c.JID, Name: &name}); err != nil {
			s.eventError("contacts", err)
		}
	}
}

func (s *Session) onHistorySet(e upstream.HistorySet) {
	s.onChats(e.Chats)
	s.onContacts(e.Contacts)
	for _, raw := range e.Messages {
		m, ok := Normalize(raw)
		if !ok {
			continue
		}
		if res := s.ingestor.EnqueueMessage(s.ctx, m); !res.Accepted {
			s.logger.Warn().Str("reason", res.Reason).Str("id", m.ID).Msg("history message rejected")
		}
	}
}

func (s *Session) onMessagesUpsert(e upstream.MessagesUpsert) {
	if e.Kind != "notify" {
		return
	}
	for _, raw := range e.Messages {
		m, ok := Normalize(raw)
		if !ok {
			continue
		}
		if res := s.ingestor.EnqueueMessage(s.ctx, m); !res.Accepted {
			s.logger.Error().Str("reason", res.Reason).Str("id", m.ID).Msg("live message rejected")
			continue
		}
		s.notifier.Notify(s.ctx, s.username, webhook.EventMessageReceived, webhook.MessageEvent{
			Message:  m,
			Business: s.businessSnapshot(),
		})
	}
}

// eventError logs a handler failure and surfaces it as an error webhook
func (s *Session) eventError(scope string, err error) {
	s.logger.Error().Err(err).Str("scope", scope).Msg("upstream event handling failed")
	s.notifier.Notify(s.ctx, s.username, webhook.EventError, webhook.ErrorEvent{
		Scope:   scope,
		Message: err.Error(),
	})
}

func (s *Session) businessSnapshot() *model.BusinessInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.business == nil {
		return nil
	}
	copied := *s.business
	return &copied
}

func chatUpsertFromSnapshot(c upstream.ChatSnapshot) model.ChatUpsert {
	isGroup := model.IsGroupJID(c.JID)
	up := model.ChatUpsert{JID: c.JID, IsGroup: &isGroup}
	if c.Name != "" {
		name := c.Name
		up.Name = &name
	}
	if c.UnreadCount > 0 {
		unread := c.UnreadCount
		up.UnreadCount = &unread
	}
	if c.LastMessageTimestamp > 0 {
		ts := c.LastMessageTimestamp
		up.LastMessageTimestamp = &ts
	}
	if c.LastMessageText != "" {
		text := c.LastMessageText
		up.LastMessageText = &text
	}
	return up
}
