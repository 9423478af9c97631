package mcp

import "sync"

// SessionRegistry maps MCP session IDs to the project each session is
// working on, so tools called without project_id act on the current one.
// Populated whenever a session creates, imports or opens a project.
type SessionRegistry struct {
	mu       sync.RWMutex
	projects map[string]string // sessionID → projectID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{projects: make(map[string]string)}
}

// Register makes projectID the current project of a session, replacing any
// previous one.
func (r *SessionRegistry) Register(sessionID, projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[sessionID] = projectID
}

// ProjectFor returns the current project of a session, if it has one.
func (r *SessionRegistry) ProjectFor(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pid, ok := r.projects[sessionID]
	return pid, ok
}

// Remove forgets a session. Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, sessionID)
}

// Forget clears projectID from every session that had it open.
// Called when a project is deleted.
func (r *SessionRegistry) Forget(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, pid := range r.projects {
		if pid == projectID {
			delete(r.projects, sid)
		}
	}
}
