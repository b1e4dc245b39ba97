package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/store"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/upstream"
)

// Manager is the registry of tenant sessions: one state machine per
// username, created on demand and recreated from on-disk credentials at
// startup.
type Manager struct {
	sessionsDir string
	dialer      upstream.Dialer
	store       store.Store
	ingestor    Ingestor
	notifier    Notifier
	logger      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates the tenant registry
func NewManager(sessionsDir string, dialer upstream.Dialer, st store.Store, ing Ingestor, notifier Notifier, logger zerolog.Logger) *Manager {
	return &Manager{
		sessionsDir: sessionsDir,
		dialer:      dialer,
		store:       st,
		ingestor:    ing,
		notifier:    notifier,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Get returns the session for username, if one exists
func (m *Manager) Get(username string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[username]
	return s, ok
}

// GetOrCreate returns the session for username, creating an idle one on
// first use.
func (m *Manager) GetOrCreate(username string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[username]; ok {
		return s
	}
	s := NewSession(username, filepath.Join(m.sessionsDir, username),
		m.dialer, m.store, m.ingestor, m.notifier, m.logger)
	m.sessions[username] = s
	return s
}

// Teardown disconnects and forgets a session. Credentials stay on disk
// unless the session logged out.
func (m *Manager) Teardown(username string) {
	m.mu.Lock()
	s, ok := m.sessions[username]
	delete(m.sessions, username)
	m.mu.Unlock()
	if ok {
		s.Teardown()
	}
}

// AutoConnectAll recreates sessions for every tenant whose credential
// directory survived a restart and reconnects them.
func (m *Manager) AutoConnectAll(ctx context.Context) {
	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Error().Err(err).Str("dir", m.sessionsDir).Msg("session dir scan failed")
		}
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		username := entry.Name()
		if !m.dialer.HasCredentials(filepath.Join(m.sessionsDir, username)) {
			continue
		}
		s := m.GetOrCreate(username)
		m.logger.Info().Str("username", username).Msg("auto-connecting session")
		if err := s.Initialize(ctx, true); err != nil {
			m.logger.Error().Err(err).Str("username", username).Msg("auto-connect failed")
		}
	}
}

// Shutdown tears down every session
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Teardown()
	}
}
