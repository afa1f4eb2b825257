package appclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oceanpad/atlasdata/pkg/storage"
)

// persistedState is the JSON document mirrored to the storage collaborator.
// It carries the user identity alongside the session so a restart can
// restore the full logged-in state.
type persistedState struct {
	Session    Session        `json:"session"`
	Identities []Identity     `json:"identities,omitempty"`
	Profile    map[string]any `json:"profile,omitempty"`
}

// tokenStore holds the current session and user identity. The in-memory copy
// is authoritative; every mutation is mirrored best-effort to the injected
// storage collaborator. The coordinator is the only writer.
type tokenStore struct {
	mu      sync.RWMutex
	state   *persistedState
	storage storage.Storage
	key     string
	logger  *slog.Logger
}

func newTokenStore(st storage.Storage, appID string, logger *slog.Logger) *tokenStore {
	return &tokenStore{
		storage: st,
		key:     fmt.Sprintf("app/%s/session", appID),
		logger:  logger,
	}
}

// restore loads a previously persisted state, if any. Storage failures are
// logged and treated as "nothing persisted".
func (s *tokenStore) restore(ctx context.Context) *persistedState {
	value, ok, err := s.storage.Load(ctx, s.key)
	if err != nil {
		s.logger.Warn("failed to load persisted session", "key", s.key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var state persistedState
	if err := json.Unmarshal(value, &state); err != nil {
		s.logger.Warn("discarding unreadable persisted session", "key", s.key, "error", err)
		return nil
	}
	if state.Session.AccessToken == "" || state.Session.RefreshToken == "" {
		return nil
	}

	s.mu.Lock()
	s.state = &state
	s.mu.Unlock()
	return &state
}

// get returns the current session.
func (s *tokenStore) get() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return Session{}, false
	}
	return s.state.Session, true
}

// set replaces the stored state atomically and mirrors it to storage.
func (s *tokenStore) set(ctx context.Context, state persistedState) {
	s.mu.Lock()
	s.state = &state
	s.mu.Unlock()

	s.persist(ctx, &state)
}

// replaceTokens swaps in a fresh access token and, when the server issued
// one, a fresh refresh token. Both are applied under a single lock so the
// session is never observed half-updated.
func (s *tokenStore) replaceTokens(ctx context.Context, accessToken, refreshToken string) {
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return
	}
	s.state.Session.AccessToken = accessToken
	if refreshToken != "" {
		s.state.Session.RefreshToken = refreshToken
	}
	snapshot := *s.state
	s.mu.Unlock()

	s.persist(ctx, &snapshot)
}

// clear drops the session, in memory and in storage.
func (s *tokenStore) clear(ctx context.Context) {
	s.mu.Lock()
	s.state = nil
	s.mu.Unlock()

	if err := s.storage.Remove(ctx, s.key); err != nil {
		s.logger.Warn("failed to remove persisted session", "key", s.key, "error", err)
	}
}

func (s *tokenStore) persist(ctx context.Context, state *persistedState) {
	value, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("failed to encode session for storage", "key", s.key, "error", err)
		return
	}
	if err := s.storage.Save(ctx, s.key, value); err != nil {
		s.logger.Warn("failed to persist session", "key", s.key, "error", err)
	}
}
