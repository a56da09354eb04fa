// Package session defines the conversation persistence model. The schema and
// state semantics are compatible with what agent runtimes expect: three state
// scopes (app, user, session) merged by key prefix into a single view, and an
// append-only event log per session.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
)

// State key prefixes. Keys in a merged state view or a state delta are routed
// to their scope by prefix; unprefixed keys belong to the session itself.
const (
	AppPrefix  = "app:"
	UserPrefix = "user:"
	// TempPrefix marks transient keys that are never persisted.
	TempPrefix = "temp:"
)

// State is a free-form state dictionary.
type State map[string]any

// Session is one conversation between a user (external ID) and an app (agent).
type Session struct {
	AppName    string    `json:"app_name"`
	UserID     string    `json:"user_id"`
	ID         string    `json:"id"`
	State      State     `json:"state"`
	Events     []Event   `json:"events,omitempty"`
	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

// Event is one immutable entry in a session's history.
type Event struct {
	ID                string          `json:"id"`
	AppName           string          `json:"app_name"`
	UserID            string          `json:"user_id"`
	SessionID         string          `json:"session_id"`
	InvocationID      string          `json:"invocation_id,omitempty"`
	Author            string          `json:"author"`
	Actions           Actions         `json:"actions"`
	Content           json.RawMessage `json:"content,omitempty"`
	GroundingMetadata json.RawMessage `json:"grounding_metadata,omitempty"`
	Partial           *bool           `json:"partial,omitempty"`
	TurnComplete      *bool           `json:"turn_complete,omitempty"`
	ErrorCode         string          `json:"error_code,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Interrupted       *bool           `json:"interrupted,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Actions carries the side effects an event applies when appended.
type Actions struct {
	StateDelta    State             `json:"state_delta,omitempty"`
	ArtifactDelta map[string]int    `json:"artifact_delta,omitempty"`
	TransferTo    string            `json:"transfer_to_agent,omitempty"`
	Escalate      *bool             `json:"escalate,omitempty"`
	RequestedAuth map[string]any    `json:"requested_auth_configs,omitempty"`
	Extra         map[string]string `json:"-"`
}

// Validate checks that an event targets a complete session coordinate.
func (e *Event) Validate() error {
	if e.AppName == "" || e.UserID == "" || e.SessionID == "" {
		return fmt.Errorf("%w: app_name, user_id and session_id are required", domain.ErrValidation)
	}
	if e.Author == "" {
		return fmt.Errorf("%w: author is required", domain.ErrValidation)
	}
	return nil
}

// MergeState builds the effective state view for a session read: app-scoped
// keys come back prefixed with "app:", user-scoped keys with "user:", and
// session keys unprefixed. Later scopes never collide because of the prefixes.
func MergeState(appState, userState, sessionState State) State {
	merged := make(State, len(appState)+len(userState)+len(sessionState))
	for k, v := range appState {
		merged[AppPrefix+k] = v
	}
	for k, v := range userState {
		merged[UserPrefix+k] = v
	}
	for k, v := range sessionState {
		merged[k] = v
	}
	return merged
}

// SplitDelta routes a state delta into its three scopes. Keys with the app or
// user prefix are returned stripped of the prefix; temp-prefixed keys are
// discarded; everything else is session state.
func SplitDelta(delta State) (appDelta, userDelta, sessionDelta State) {
	appDelta = State{}
	userDelta = State{}
	sessionDelta = State{}
	for k, v := range delta {
		switch {
		case strings.HasPrefix(k, AppPrefix):
			appDelta[strings.TrimPrefix(k, AppPrefix)] = v
		case strings.HasPrefix(k, UserPrefix):
			userDelta[strings.TrimPrefix(k, UserPrefix)] = v
		case strings.HasPrefix(k, TempPrefix):
			// dropped on purpose
		default:
			sessionDelta[k] = v
		}
	}
	return appDelta, userDelta, sessionDelta
}

// Apply overlays delta onto s, returning s for chaining. A nil receiver
// allocates a fresh state.
func (s State) Apply(delta State) State {
	if s == nil {
		s = State{}
	}
	for k, v := range delta {
		s[k] = v
	}
	return s
}
