package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoSession is returned when no session is running for a meeting.
var ErrNoSession = errors.New("no session for meeting")

// Registry tracks the running controller per meeting. One meeting has at
// most one live session at a time.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Controller // keyed by meeting id
}

// NewRegistry creates a registry that builds controllers with the given
// dependencies.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*Controller),
	}
}

// Start creates and starts a session for the meeting. Fails when one is
// already running.
func (r *Registry) Start(ctx context.Context, meetingID string) (*Controller, error) {
	r.mu.Lock()
	if _, exists := r.sessions[meetingID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("meeting %s already has a running session", meetingID)
	}
	controller := New(meetingID, r.deps)
	r.sessions[meetingID] = controller
	r.mu.Unlock()

	if err := controller.Start(ctx); err != nil {
		r.mu.Lock()
		delete(r.sessions, meetingID)
		r.mu.Unlock()
		return nil, err
	}
	return controller, nil
}

// Get returns the meeting's running controller.
func (r *Registry) Get(meetingID string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	controller, ok := r.sessions[meetingID]
	if !ok {
		return nil, ErrNoSession
	}
	return controller, nil
}

// Stop finalizes the meeting's session and removes it from the registry.
// The controller is removed even when finalization fails; the session is
// terminal either way.
func (r *Registry) Stop(ctx context.Context, meetingID string) (*Outcome, error) {
	controller, err := r.Get(meetingID)
	if err != nil {
		return nil, err
	}

	outcome, err := controller.Stop(ctx)
	if errors.Is(err, ErrSessionInactive) {
		return nil, err
	}

	r.mu.Lock()
	delete(r.sessions, meetingID)
	r.mu.Unlock()
	return outcome, err
}

// StopAll finalizes every running session. Used on graceful shutdown.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	meetings := make([]string, 0, len(r.sessions))
	for meetingID := range r.sessions {
		meetings = append(meetings, meetingID)
	}
	r.mu.Unlock()

	for _, meetingID := range meetings {
		if _, err := r.Stop(ctx, meetingID); err != nil && !errors.Is(err, ErrNoSession) {
			// Already logged with full context by the controller.
			continue
		}
	}
}

// Active returns the number of running sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
