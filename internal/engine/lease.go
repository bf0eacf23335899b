package engine

import "sync"

// ProjectLease serializes agent runs per project. At most one holder per
// project; a new acquisition while a lease is live fails until the holder
// releases or is displaced. Tokens stop a displaced run from releasing the
// lease its successor now holds.
type ProjectLease struct {
	mu      sync.Mutex
	holders map[string]string // projectID -> token
}

// NewProjectLease returns an empty lease table.
func NewProjectLease() *ProjectLease {
	return &ProjectLease{holders: make(map[string]string)}
}

// Acquire takes the project lease for the given token. Returns false when
// another token holds it.
func (l *ProjectLease) Acquire(projectID, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holders[projectID]; held {
		return false
	}
	l.holders[projectID] = token
	return true
}

// Steal takes the lease unconditionally, displacing any current holder.
// Returns the displaced token, if any.
func (l *ProjectLease) Steal(projectID, token string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, held := l.holders[projectID]
	l.holders[projectID] = token
	return prev, held
}

// Release frees the lease only if token still holds it.
func (l *ProjectLease) Release(projectID, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[projectID] == token {
		delete(l.holders, projectID)
	}
}

// Holder reports the current token for a project.
func (l *ProjectLease) Holder(projectID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tok, ok := l.holders[projectID]
	return tok, ok
}
