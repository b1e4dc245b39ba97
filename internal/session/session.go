// Package session drives per-tenant connection state machines over the
// upstream socket, translating raw protocol events into the internal
// message model and feeding the ingestion pipeline and webhook
// dispatcher.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/ingest"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/store"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/upstream"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/webhook"
)

// State is the session lifecycle phase
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateWaitingQR    State = "waiting_qr"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateLoggedOut    State = "logged_out"
)

const (
	// MaxReconnectAttempts bounds consecutive reconnect failures before
	// the session is wiped and re-initialized cleanly
	MaxReconnectAttempts = 5

	qrWaitTimeout = 300 * time.Second

	historyMaxPages    = 6
	historyFetchBatch  = 50
	historySettleWait  = 500 * time.Millisecond
	historyChatSpacing = 200 * time.Millisecond
	conversationPage   = 1000
)

var (
	ErrNotConnected  = errors.New("session not connected")
	ErrNoCredentials = errors.New("no credentials on disk")
	ErrQRTimeout     = errors.New("qr wait timed out")
)

// Ingestor is the slice of the ingestion service sessions use
type Ingestor interface {
	EnqueueMessage(ctx context.Context, m model.MessageInfo) ingest.Result
}

// Notifier delivers webhook events. The manager hands sessions a
// Notifier so sessions never reference the manager directly.
type Notifier interface {
	Notify(ctx context.Context, username, event string, data any)
}

// Session is one tenant's connection state machine. All state mutations
// happen under mu; upstream events arrive sequentially per socket.
type Session struct {
	username    string
	sessionPath string
	dialer      upstream.Dialer
	store       store.Store
	ingestor    Ingestor
	notifier    Notifier
	logger      zerolog.Logger

	// base context for work the session starts on its own (reconnects,
	// backfill); cancelled on teardown
	ctx    context.Context
	cancel context.CancelFunc

	mu                sync.Mutex
	state             State
	client            upstream.Client
	qr                string
	qrSignal          chan struct{}
	reconnectAttempts int
	pendingBackfill   bool
	business          *model.BusinessInfo
}

// NewSession creates an idle session for username. sessionPath is the
// credential directory; it may not exist yet.
func NewSession(username, sessionPath string, dialer upstream.Dialer, st store.Store, ing Ingestor, notifier Notifier, logger zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		username:    username,
		sessionPath: sessionPath,
		dialer:      dialer,
		store:       st,
		ingestor:    ing,
		notifier:    notifier,
		logger:      logger.With().Str("username", username).Logger(),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
		qrSignal:    make(chan struct{}),
	}
}

// State returns the current lifecycle phase
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the socket observed connection=open
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// QR returns the cached pairing code, "" when none is pending
func (s *Session) QR() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qr
}

// Initialize dials the upstream socket. A reconnect with no credentials
// on disk fails immediately; blowing the reconnect budget forces a
// clean logout (credentials erased) before dialing fresh.
func (s *Session) Initialize(ctx context.Context, isReconnecting bool) error {
	s.mu.Lock()
	if isReconnecting && !s.dialer.HasCredentials(s.sessionPath) {
		s.mu.Unlock()
		return ErrNoCredentials
	}
	if s.reconnectAttempts > MaxReconnectAttempts {
		s.logger.Warn().Int("attempts", s.reconnectAttempts).Msg("reconnect budget exhausted, wiping session")
		s.state = StateLoggedOut
		s.eraseCredentialsLocked()
		s.reconnectAttempts = 0
		s.state = StateIdle
		isReconnecting = false
	}
	s.state = StateConnecting
	s.qr = ""
	oldSignal := s.qrSignal
	s.qrSignal = make(chan struct{})
	s.pendingBackfill = isReconnecting
	s.mu.Unlock()
	close(oldSignal)

	client, err := s.dialer.Dial(ctx, s.sessionPath, s.handleEvent)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return fmt.Errorf("dial upstream for %s: %w", s.username, err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return nil
}

// WaitForQR blocks until a pairing code arrives, the connection opens
// (returns ""), or the 300 s deadline passes (ErrQRTimeout).
func (s *Session) WaitForQR(ctx context.Context) (string, error) {
	deadline := time.NewTimer(qrWaitTimeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		qr := s.qr
		state := s.state
		signal := s.qrSignal
		s.mu.Unlock()

		if qr != "" {
			return qr, nil
		}
		if state == StateConnected {
			return "", nil
		}

		select {
		case <-signal:
		case <-deadline.C:
			return "", ErrQRTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// SendMessage sends text to a recipient (full JID or bare number) and
// routes the synthesized outbound message through ingestion.
func (s *Session) SendMessage(ctx context.Context, to, text string) (model.MessageInfo, error) {
	s.mu.Lock()
	client := s.client
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || client == nil {
		return model.MessageInfo{}, ErrNotConnected
	}

	jid := model.NormalizeJID(to)
	res, err := client.SendText(ctx, jid, text)
	if err != nil {
		return model.MessageInfo{}, fmt.Errorf("send message to %s: %w", jid, err)
	}

	m := model.MessageInfo{
		ID:        res.ID,
		From:      jid,
		FromMe:    true,
		Timestamp: res.Timestamp,
		Type:      upstream.TagConversation,
		IsGroup:   model.IsGroupJID(jid),
		Content:   model.MessageContent{Type: model.TypeText, Text: text},
	}
	if result := s.ingestor.EnqueueMessage(ctx, m); !result.Accepted {
		s.logger.Error().Str("reason", result.Reason).Str("id", m.ID).Msg("outbound message not accepted by ingestion")
	}
	return m, nil
}

// CheckNumber verifies a phone number against the upstream registry
func (s *Session) CheckNumber(ctx context.Context, phone string) (bool, string, error) {
	s.mu.Lock()
	client := s.client
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || client == nil {
		return false, "", ErrNotConnected
	}
	return client.OnWhatsApp(ctx, model.DigitsOnly(phone))
}

// Logout terminates the upstream registration, erases credentials, and
// returns the session to Idle.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	err := client.Logout(ctx)
	client.Disconnect()

	s.mu.Lock()
	s.state = StateLoggedOut
	s.client = nil
	s.qr = ""
	s.eraseCredentialsLocked()
	s.state = StateIdle
	s.mu.Unlock()

	s.notifier.Notify(ctx, s.username, webhook.EventConnection, webhook.ConnectionEvent{
		Status: "logged_out",
		Reason: "user_logout",
	})
	if err != nil {
		return fmt.Errorf("upstream logout: %w", err)
	}
	return nil
}

// Teardown disconnects without touching credentials
func (s *Session) Teardown() {
	s.cancel()
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.state = StateIdle
	s.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

// eraseCredentialsLocked wipes the credential directory wholesale.
// Caller holds mu.
func (s *Session) eraseCredentialsLocked() {
	if err := os.RemoveAll(s.sessionPath); err != nil {
		s.logger.Error().Err(err).Str("path", s.sessionPath).Msg("credential erase failed")
	}
}
