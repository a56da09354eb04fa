package service

import (
	"context"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/session"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/database"
)

// SessionService exposes the conversation persistence layer: sessions keyed
// by (app, external user), merged state views, and append-only event logs.
type SessionService struct {
	store database.Store
}

// NewSessionService creates a new session service.
func NewSessionService(store database.Store) *SessionService {
	return &SessionService{store: store}
}

// Create starts a session, routing any prefixed keys of the initial state
// into their shared scopes.
func (s *SessionService) Create(ctx context.Context, sess *session.Session) error {
	return s.store.CreateSession(ctx, sess)
}

// Get returns a session with its merged state view and up to maxEvents of
// its newest events in ascending order. after limits events to those
// recorded later than the given time.
func (s *SessionService) Get(ctx context.Context, appName, userID, id string, maxEvents int, after *time.Time) (*session.Session, error) {
	return s.store.GetSession(ctx, appName, userID, id, maxEvents, after)
}

// List returns a user's sessions for an app, newest first, without events.
func (s *SessionService) List(ctx context.Context, appName, userID string) ([]session.Session, error) {
	return s.store.ListSessions(ctx, appName, userID)
}

// Delete removes a session and its events. App and user scope states are
// shared across sessions and survive.
func (s *SessionService) Delete(ctx context.Context, appName, userID, id string) error {
	return s.store.DeleteSession(ctx, appName, userID, id)
}

// AppendEvent appends one event, applying its state delta across scopes.
func (s *SessionService) AppendEvent(ctx context.Context, ev *session.Event) error {
	return s.store.AppendEvent(ctx, ev)
}
