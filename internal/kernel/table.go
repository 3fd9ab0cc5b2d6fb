package kernel

import (
	"sync"
	"time"
)

// sessionTable is the concurrent map of live sessions. Its lock guards only
// membership; per-session operations take the session's own mutex so one
// long script execution never blocks other sessions.
type sessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionTable() sessionTable {
	return sessionTable{sessions: make(map[string]*Session)}
}

func (t *sessionTable) getOrCreate(id string, now time.Time) (sess *Session, created bool) {
	t.mu.RLock()
	sess, ok := t.sessions[id]
	t.mu.RUnlock()
	if ok {
		return sess, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if sess, ok = t.sessions[id]; ok {
		return sess, false
	}
	sess = newSession(id, now)
	t.sessions[id] = sess
	return sess, true
}

func (t *sessionTable) get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sess, ok := t.sessions[id]
	return sess, ok
}

func (t *sessionTable) remove(id string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[id]
	if ok {
		delete(t.sessions, id)
	}
	return sess, ok
}

func (t *sessionTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// evictIdle removes and returns all sessions whose last access is older
// than ttl. Idle times are read atomically, so sessions mid-operation are
// never candidates: an in-flight operation touched them on entry.
func (t *sessionTable) evictIdle(now time.Time, ttl time.Duration) []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []*Session
	for id, sess := range t.sessions {
		if now.Sub(sess.idleSince()) > ttl {
			evicted = append(evicted, sess)
			delete(t.sessions, id)
		}
	}
	return evicted
}

// drain removes and returns every session.
func (t *sessionTable) drain() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	all := make([]*Session, 0, len(t.sessions))
	for id, sess := range t.sessions {
		all = append(all, sess)
		delete(t.sessions, id)
	}
	return all
}
