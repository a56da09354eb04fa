package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/session"
)

// CreateSession creates a new session. The initial state is split by prefix:
// app- and user-scoped keys merge into their shared scope tables, session keys
// stay on the session row, temp keys are dropped. Creating a session that
// already exists fails with ErrConflict.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	appDelta, userDelta, sessionDelta := session.SplitDelta(sess.State)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := mergeScopeStates(ctx, tx, sess.AppName, sess.UserID, appDelta, userDelta); err != nil {
		return err
	}

	sessJSON, err := json.Marshal(sessionDelta)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO sessions (app_name, user_id, id, state)
		VALUES ($1, $2, $3, $4)
		RETURNING create_time, update_time`,
		sess.AppName, sess.UserID, sess.ID, sessJSON,
	).Scan(&sess.CreateTime, &sess.UpdateTime)
	if err != nil {
		return conflictWrap(err, "create session %s", sess.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}

	appState, userState, err := s.loadScopeStates(ctx, sess.AppName, sess.UserID)
	if err != nil {
		return err
	}
	sess.State = session.MergeState(appState, userState, sessionDelta)
	sess.Events = []session.Event{}
	return nil
}

// GetSession returns a session with its effective merged state and event
// history in ascending timestamp order. maxEvents > 0 limits the history to
// the most recent N events; after filters out events at or before that time.
func (s *Store) GetSession(ctx context.Context, appName, userID, id string, maxEvents int, after *time.Time) (*session.Session, error) {
	sess := &session.Session{AppName: appName, UserID: userID, ID: id}

	var sessJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state, create_time, update_time
		FROM sessions WHERE app_name = $1 AND user_id = $2 AND id = $3`,
		appName, userID, id,
	).Scan(&sessJSON, &sess.CreateTime, &sess.UpdateTime)
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}

	var sessionState session.State
	if err := json.Unmarshal(sessJSON, &sessionState); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}

	appState, userState, err := s.loadScopeStates(ctx, appName, userID)
	if err != nil {
		return nil, err
	}
	sess.State = session.MergeState(appState, userState, sessionState)

	events, err := s.listEvents(ctx, appName, userID, id, maxEvents, after)
	if err != nil {
		return nil, err
	}
	sess.Events = events
	return sess, nil
}

// ListSessions returns the user's sessions for an app, newest first, without
// event histories. Session rows carry only their own state scope here.
func (s *Store) ListSessions(ctx context.Context, appName, userID string) ([]session.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, state, create_time, update_time
		FROM sessions WHERE app_name = $1 AND user_id = $2
		ORDER BY update_time DESC`,
		appName, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		sess := session.Session{AppName: appName, UserID: userID}
		var stateJSON []byte
		if err := rows.Scan(&sess.ID, &stateJSON, &sess.CreateTime, &sess.UpdateTime); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal(stateJSON, &sess.State); err != nil {
			return nil, fmt.Errorf("unmarshal session state: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return orEmpty(sessions), rows.Err()
}

// DeleteSession removes a session; its events cascade. App and user scope
// states survive, they are shared across sessions.
func (s *Store) DeleteSession(ctx context.Context, appName, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE app_name = $1 AND user_id = $2 AND id = $3`,
		appName, userID, id)
	return execExpectOne(tag, err, "delete session %s", id)
}

// AppendEvent appends an event to a session and applies its state delta
// across all three scopes. The session row is locked first so concurrent
// appends serialize; the scope writes, the event insert, and the session
// update_time advance all commit together or not at all.
func (s *Store) AppendEvent(ctx context.Context, ev *session.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sessJSON []byte
	err = tx.QueryRow(ctx, `
		SELECT state FROM sessions
		WHERE app_name = $1 AND user_id = $2 AND id = $3 FOR UPDATE`,
		ev.AppName, ev.UserID, ev.SessionID,
	).Scan(&sessJSON)
	if err != nil {
		return notFoundWrap(err, "append event: session %s", ev.SessionID)
	}

	var sessionState session.State
	if err := json.Unmarshal(sessJSON, &sessionState); err != nil {
		return fmt.Errorf("unmarshal session state: %w", err)
	}

	appDelta, userDelta, sessionDelta := session.SplitDelta(ev.Actions.StateDelta)

	if err := mergeScopeStates(ctx, tx, ev.AppName, ev.UserID, appDelta, userDelta); err != nil {
		return err
	}

	newSessJSON, err := json.Marshal(sessionState.Apply(sessionDelta))
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE sessions SET state = $4, update_time = now()
		WHERE app_name = $1 AND user_id = $2 AND id = $3`,
		ev.AppName, ev.UserID, ev.SessionID, newSessJSON,
	); err != nil {
		return fmt.Errorf("update session state: %w", err)
	}

	actionsJSON, err := json.Marshal(ev.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO events (id, app_name, user_id, session_id, invocation_id, author,
			actions, content, grounding_metadata, partial, turn_complete,
			error_code, error_message, interrupted, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		ev.ID, ev.AppName, ev.UserID, ev.SessionID, ev.InvocationID, ev.Author,
		actionsJSON, ev.Content, ev.GroundingMetadata, ev.Partial, ev.TurnComplete,
		ev.ErrorCode, ev.ErrorMessage, ev.Interrupted, ev.Timestamp,
	); err != nil {
		return conflictWrap(err, "insert event %s", ev.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append event: %w", err)
	}
	return nil
}

// listEvents fetches a session's events ascending by timestamp. With a limit,
// the most recent events win, still returned ascending.
func (s *Store) listEvents(ctx context.Context, appName, userID, sessionID string, maxEvents int, after *time.Time) ([]session.Event, error) {
	query := `
		SELECT id, invocation_id, author, actions, content, grounding_metadata,
			partial, turn_complete, error_code, error_message, interrupted, timestamp
		FROM events WHERE app_name = $1 AND user_id = $2 AND session_id = $3`
	args := []any{appName, userID, sessionID}
	if after != nil {
		query += ` AND timestamp > $4`
		args = append(args, *after)
	}
	query += ` ORDER BY timestamp DESC`
	if maxEvents > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, maxEvents)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []session.Event
	for rows.Next() {
		ev := session.Event{AppName: appName, UserID: userID, SessionID: sessionID}
		var actionsJSON []byte
		if err := rows.Scan(&ev.ID, &ev.InvocationID, &ev.Author, &actionsJSON,
			&ev.Content, &ev.GroundingMetadata, &ev.Partial, &ev.TurnComplete,
			&ev.ErrorCode, &ev.ErrorMessage, &ev.Interrupted, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if actionsJSON != nil {
			if err := json.Unmarshal(actionsJSON, &ev.Actions); err != nil {
				return nil, fmt.Errorf("unmarshal actions: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to ascending order.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return orEmpty(events), nil
}

// mergeScopeStates upserts the app and user scope tables, shallow-merging the
// deltas into the stored JSONB. Empty deltas leave the rows untouched.
func mergeScopeStates(ctx context.Context, tx pgx.Tx, appName, userID string, appDelta, userDelta session.State) error {
	if len(appDelta) > 0 {
		deltaJSON, err := json.Marshal(appDelta)
		if err != nil {
			return fmt.Errorf("marshal app state delta: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO app_states (app_name, state) VALUES ($1, $2)
			ON CONFLICT (app_name) DO UPDATE
			SET state = app_states.state || EXCLUDED.state, update_time = now()`,
			appName, deltaJSON,
		); err != nil {
			return fmt.Errorf("merge app state: %w", err)
		}
	}
	if len(userDelta) > 0 {
		deltaJSON, err := json.Marshal(userDelta)
		if err != nil {
			return fmt.Errorf("marshal user state delta: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_states (app_name, user_id, state) VALUES ($1, $2, $3)
			ON CONFLICT (app_name, user_id) DO UPDATE
			SET state = user_states.state || EXCLUDED.state, update_time = now()`,
			appName, userID, deltaJSON,
		); err != nil {
			return fmt.Errorf("merge user state: %w", err)
		}
	}
	return nil
}

// loadScopeStates reads the app and user scope states, tolerating absent rows.
func (s *Store) loadScopeStates(ctx context.Context, appName, userID string) (session.State, session.State, error) {
	var appState, userState session.State

	var appJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM app_states WHERE app_name = $1`, appName).Scan(&appJSON)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("load app state: %w", err)
	}
	if appJSON != nil {
		if err := json.Unmarshal(appJSON, &appState); err != nil {
			return nil, nil, fmt.Errorf("unmarshal app state: %w", err)
		}
	}

	var userJSON []byte
	err = s.pool.QueryRow(ctx,
		`SELECT state FROM user_states WHERE app_name = $1 AND user_id = $2`,
		appName, userID).Scan(&userJSON)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("load user state: %w", err)
	}
	if userJSON != nil {
		if err := json.Unmarshal(userJSON, &userState); err != nil {
			return nil, nil, fmt.Errorf("unmarshal user state: %w", err)
		}
	}

	return appState, userState, nil
}
