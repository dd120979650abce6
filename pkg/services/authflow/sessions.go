package authflow

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// SessionState mirrors the interception lifecycle at the service level.
type SessionState string

const (
	SessionPending   SessionState = "pending"
	SessionCompleted SessionState = "completed"
	SessionDismissed SessionState = "dismissed"
	SessionFailed    SessionState = "failed"
)

// Session is one presentation attempt for a provider.
type Session struct {
	ID        string       `json:"id"`
	Provider  string       `json:"provider"`
	State     SessionState `json:"state"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

// SessionRegistry tracks active and finished presentation sessions and emits
// events as they change.
type SessionRegistry struct {
	mu      sync.RWMutex
	items   map[string]Session
	emitter func(name string, data any)
}

// NewSessionRegistry creates a registry emitting through the given function.
func NewSessionRegistry(emitter func(name string, data any)) *SessionRegistry {
	return &SessionRegistry{
		items:   make(map[string]Session),
		emitter: emitter,
	}
}

// Begin registers a new pending session for the provider.
func (r *SessionRegistry) Begin(provider string) Session {
	session := Session{
		ID:        newSessionID(),
		Provider:  provider,
		State:     SessionPending,
		StartedAt: time.Now(),
	}
	r.mu.Lock()
	r.items[session.ID] = session
	r.mu.Unlock()

	r.emit(EventSessionStarted, session)
	return session
}

// Complete marks a session finished with the exchange outcome. It reports
// whether the session actually transitioned, so callers holding on to a
// finished session can tell a fresh outcome from a stale one.
func (r *SessionRegistry) Complete(id string, succeeded bool, err error) bool {
	state := SessionCompleted
	lastError := ""
	if !succeeded {
		state = SessionFailed
		if err != nil {
			lastError = err.Error()
		}
	}
	return r.transition(id, state, lastError)
}

// Dismiss marks a session as closed by the user before interception.
func (r *SessionRegistry) Dismiss(id string) bool {
	return r.transition(id, SessionDismissed, "")
}

func (r *SessionRegistry) transition(id string, state SessionState, lastError string) bool {
	r.mu.Lock()
	session, ok := r.items[id]
	if !ok || session.State != SessionPending {
		r.mu.Unlock()
		return false
	}
	session.State = state
	session.EndedAt = time.Now()
	session.LastError = lastError
	r.items[id] = session
	r.mu.Unlock()

	r.emit(EventSessionChanged, session)
	return true
}

// Remove drops a session from the registry.
func (r *SessionRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; ok {
		delete(r.items, id)
		return true
	}
	return false
}

// Get returns the session with the given id.
func (r *SessionRegistry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.items[id]
	return session, ok
}

// List returns all sessions with deterministic ordering: by StartedAt, then
// Provider, then ID.
func (r *SessionRegistry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.items))
	for _, session := range r.items {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *SessionRegistry) emit(name string, session Session) {
	if r.emitter != nil {
		r.emitter(name, session)
	}
}

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "session-unknown"
	}
	return hex.EncodeToString(b)
}
