package session

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry tracks active sessions and the teardown hooks attached to them,
// most importantly the realtime-sync cancel handle. Ending a session runs
// its hooks, which prevents a lingering subscription from leaking remote
// events into the next user's local store.
type Registry struct {
	mu     sync.Mutex
	active map[uuid.UUID]*entry
	logger *zap.Logger
}

type entry struct {
	session  Session
	teardown []func()
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		active: make(map[uuid.UUID]*entry),
		logger: logger,
	}
}

// Begin registers the session, replacing (and tearing down) any previous
// session for the same user. Teardown hooks run in reverse order at End.
func (r *Registry) Begin(s Session, teardown ...func()) {
	r.mu.Lock()
	previous := r.active[s.UserID]
	r.active[s.UserID] = &entry{session: s, teardown: teardown}
	r.mu.Unlock()

	if previous != nil {
		r.logger.Info("Replacing existing session", zap.String("user_id", s.UserID.String()))
		runTeardown(previous)
	}
}

// End removes the user's session and runs its teardown hooks. Unknown users
// are a no-op.
func (r *Registry) End(userID uuid.UUID) {
	r.mu.Lock()
	e := r.active[userID]
	delete(r.active, userID)
	r.mu.Unlock()

	if e != nil {
		runTeardown(e)
	}
}

// Get returns the active session for the user, if any.
func (r *Registry) Get(userID uuid.UUID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.active[userID]
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

// EndAll tears down every active session, used at shutdown.
func (r *Registry) EndAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.active))
	for id, e := range r.active {
		entries = append(entries, e)
		delete(r.active, id)
	}
	r.mu.Unlock()

	for _, e := range entries {
		runTeardown(e)
	}
}

func runTeardown(e *entry) {
	for i := len(e.teardown) - 1; i >= 0; i-- {
		e.teardown[i]()
	}
}
