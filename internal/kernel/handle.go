package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// HandleBinding is the resolved view of a handle token.
type HandleBinding struct {
	Handle    string `json:"handle"`
	VarName   string `json:"var_name"`
	SessionID string `json:"session_id"`
	TypeTag   string `json:"type_tag"`
}

type handleEntry struct {
	sessionID  string
	varName    string
	typeTag    string
	createdAt  time.Time
	accessedAt time.Time
}

// HandleRegistry maps opaque tokens to (session, variable) bindings.
// The token space is global: sequence numbers come from one process-wide
// atomic counter, so tokens never collide even across sessions that share
// an id prefix.
type HandleRegistry struct {
	mu      sync.RWMutex
	handles map[string]*handleEntry
	seq     atomic.Int64
}

// NewHandleRegistry creates an empty registry.
func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{handles: make(map[string]*handleEntry)}
}

func (r *HandleRegistry) register(sessionID, varName, typeTag string, now time.Time) string {
	if typeTag == "" {
		typeTag = "custom"
	}
	token := fmt.Sprintf("ctx_%s_%s_%03d", sessionID, typeTag, r.seq.Add(1))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[token] = &handleEntry{
		sessionID:  sessionID,
		varName:    varName,
		typeTag:    typeTag,
		createdAt:  now,
		accessedAt: now,
	}
	return token
}

func (r *HandleRegistry) lookup(token string, now time.Time) (*handleEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.handles[token]
	if ok {
		entry.accessedAt = now
	}
	return entry, ok
}

// removeSession drops every handle issued for the given session.
func (r *HandleRegistry) removeSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, entry := range r.handles {
		if entry.sessionID == sessionID {
			delete(r.handles, token)
		}
	}
}

func (r *HandleRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// RegisterHandle issues a token bound to (session, name). The name is not
// required to exist yet; a handle may be registered as a forward reference
// and resolved once the entry is loaded.
func (k *Kernel) RegisterHandle(sessionID, name, typeTag string) (*HandleBinding, error) {
	if name == "" {
		return nil, NewError(KindInvalidArgument, "variable name must not be empty")
	}

	sess := k.session(sessionID)
	token := k.handles.register(sess.ID, name, typeTag, k.now())

	return &HandleBinding{
		Handle:    token,
		VarName:   name,
		SessionID: sess.ID,
		TypeTag:   typeTagOrDefault(typeTag),
	}, nil
}

// ResolveHandle returns the binding behind a token. An unknown token or an
// evicted session yields handle_not_found; an unloaded entry yields
// handle_stale while the token itself survives.
func (k *Kernel) ResolveHandle(token string) (*HandleBinding, error) {
	k.Sweep()

	entry, ok := k.handles.lookup(token, k.now())
	if !ok {
		return nil, NewError(KindHandleNotFound, "handle %q not found", token).
			With("handle", token)
	}

	sess, ok := k.sessions.get(entry.sessionID)
	if !ok {
		return nil, NewError(KindHandleNotFound, "session for handle %q no longer exists", token).
			With("handle", token).
			With("session", entry.sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touch(k.now())

	if _, ok := sess.entries[entry.varName]; !ok {
		return nil, NewError(KindHandleStale, "handle %q points at unloaded variable %q", token, entry.varName).
			With("handle", token).
			With("var_name", entry.varName)
	}

	return &HandleBinding{
		Handle:    token,
		VarName:   entry.varName,
		SessionID: entry.sessionID,
		TypeTag:   entry.typeTag,
	}, nil
}

func typeTagOrDefault(tag string) string {
	if tag == "" {
		return "custom"
	}
	return tag
}
