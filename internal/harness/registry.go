package harness

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionRegistry tracks the sessions the rig has issued. It plugs into the
// streamable HTTP transport as its session id manager: only identifiers
// minted by Generate are ever valid, so an unrecognized id on a
// continuation or termination request is always a client error and never an
// implicit create.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]time.Time
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]time.Time)}
}

// Generate mints and records a fresh session identifier.
func (r *sessionRegistry) Generate() string {
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = time.Now()
	r.mu.Unlock()
	return id
}

// Validate reports whether a session identifier is live. Unknown ids are
// rejected; the transport layer converts the error into a client failure.
func (r *sessionRegistry) Validate(sessionID string) (bool, error) {
	r.mu.RLock()
	_, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("invalid or missing session: %s", sessionID)
	}
	return false, nil
}

// Terminate removes a session on an explicit DELETE.
func (r *sessionRegistry) Terminate(sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false, fmt.Errorf("invalid or missing session: %s", sessionID)
	}
	delete(r.sessions, sessionID)
	return false, nil
}

// known reports liveness without the error shaping of Validate.
func (r *sessionRegistry) known(sessionID string) bool {
	r.mu.RLock()
	_, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	return ok
}

// ids returns the live session identifiers, sorted for stable output.
func (r *sessionRegistry) ids() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// dropAll empties the registry and returns the ids that were live.
func (r *sessionRegistry) dropAll() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	r.sessions = make(map[string]time.Time)
	r.mu.Unlock()
	sort.Strings(out)
	return out
}
