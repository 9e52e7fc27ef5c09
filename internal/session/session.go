package session

import (
	"context"
	"sync"
)

// State of an answer stream for one question.
type State int

const (
	NotStarted State = iota
	InFlight
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case InFlight:
		return "in_flight"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "not_started"
	}
}

// Guard suppresses duplicate generation for the same question in a session.
type Guard interface {
	Begin(ctx context.Context, sessionID, questionKey string) (bool, error)
	Complete(ctx context.Context, sessionID, questionKey string) error
	Fail(ctx context.Context, sessionID, questionKey string) error
}

// Session tracks the question currently being answered for one client.
type Session struct {
	mu    sync.Mutex
	key   string
	state State
}

// Begin reports whether generation may start for key. A different key resets
// the session; the same key is refused while in flight or completed.
func (s *Session) Begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != s.key {
		s.key = key
		s.state = InFlight
		return true
	}
	switch s.state {
	case InFlight, Completed:
		return false
	}
	s.state = InFlight
	return true
}

func (s *Session) Complete(key string) {
	s.finish(key, Completed)
}

// Fail allows a retry of key.
func (s *Session) Fail(key string) {
	s.finish(key, Failed)
}

func (s *Session) finish(key string, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.key && s.state == InFlight {
		s.state = to
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Registry is an in-process Guard keyed by session id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Session(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		s = &Session{}
		r.sessions[sessionID] = s
	}
	return s
}

func (r *Registry) Begin(_ context.Context, sessionID, questionKey string) (bool, error) {
	return r.Session(sessionID).Begin(questionKey), nil
}

func (r *Registry) Complete(_ context.Context, sessionID, questionKey string) error {
	r.Session(sessionID).Complete(questionKey)
	return nil
}

func (r *Registry) Fail(_ context.Context, sessionID, questionKey string) error {
	r.Session(sessionID).Fail(questionKey)
	return nil
}

// Forget drops a session, e.g. when its client goes away for good.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}
