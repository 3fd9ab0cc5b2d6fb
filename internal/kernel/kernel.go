// Package kernel implements the session-scoped context kernel: per-session
// namespaces with quota accounting, zero-copy paging and search over loaded
// entries, handle references for cross-agent hand-off, and the sandboxed
// script executor with its deferred-query queue.
//
// The kernel is a single owned struct; nothing in this package is module
// level state. Construct it with New, inject it where it is needed, and
// Close it at shutdown.
package kernel

import (
	"time"

	"github.com/lachlan-jones5/oh-my-opencode/internal/logging"
	"github.com/lachlan-jones5/oh-my-opencode/internal/sandbox"
)

// Default resource limits, matching the documented kernel contract.
const (
	DefaultQuotaBytes     = 100 * 1024 * 1024
	DefaultIdleTTL        = 5 * time.Minute
	DefaultPeekLines      = 2000
	DefaultPeekMaxLines   = 20000
	DefaultScanMatches    = 50
	DefaultScanMaxMatches = 200
	DefaultExecTimeout    = 60 * time.Second
	DefaultMaxOutputBytes = 1 * 1024 * 1024
)

// Options configures a Kernel. Zero values fall back to the defaults above.
type Options struct {
	QuotaBytes         int64
	IdleTTL            time.Duration
	PeekDefaultLines   int
	PeekMaxLines       int
	ScanDefaultMatches int
	ScanMaxMatches     int
	ExecTimeout        time.Duration
	MaxOutputBytes     int

	// AllowedImports overrides the sandbox package allow-list.
	// Nil keeps the default capability set.
	AllowedImports []string

	// Now supplies the kernel clock. Tests inject a fake here to drive
	// TTL eviction deterministically.
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.QuotaBytes <= 0 {
		o.QuotaBytes = DefaultQuotaBytes
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = DefaultIdleTTL
	}
	if o.PeekDefaultLines <= 0 {
		o.PeekDefaultLines = DefaultPeekLines
	}
	if o.PeekMaxLines <= 0 {
		o.PeekMaxLines = DefaultPeekMaxLines
	}
	if o.ScanDefaultMatches <= 0 {
		o.ScanDefaultMatches = DefaultScanMatches
	}
	if o.ScanMaxMatches <= 0 {
		o.ScanMaxMatches = DefaultScanMaxMatches
	}
	if o.ExecTimeout <= 0 {
		o.ExecTimeout = DefaultExecTimeout
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Kernel is the server-owned root of all per-session state.
// Operations on different sessions proceed concurrently; operations on the
// same session are serialized by that session's mutex. The handle token
// space is global and allocated from a single sequence.
type Kernel struct {
	opts    Options
	caps    *sandbox.Capabilities
	handles *HandleRegistry

	sessions sessionTable
}

// New constructs a kernel with the given options.
func New(opts Options) *Kernel {
	opts.applyDefaults()

	caps := sandbox.DefaultCapabilities()
	if opts.AllowedImports != nil {
		caps = sandbox.NewCapabilities(opts.AllowedImports)
	}

	return &Kernel{
		opts:     opts,
		caps:     caps,
		handles:  NewHandleRegistry(),
		sessions: newSessionTable(),
	}
}

// now returns the current kernel time via the injected clock.
func (k *Kernel) now() time.Time {
	return k.opts.Now()
}

// session runs the eviction sweep, then returns the session for id,
// creating it on first reference and touching its access time.
func (k *Kernel) session(id string) *Session {
	k.Sweep()
	now := k.now()

	sess, created := k.sessions.getOrCreate(id, now)
	sess.touch(now)
	if created {
		logging.SessionDebug("created session %s", id)
	}
	return sess
}

// Sweep deletes every session idle beyond the TTL, together with its
// handles and execution environment. Eviction is all-or-nothing per
// session. Returns the number of sessions evicted.
func (k *Kernel) Sweep() int {
	now := k.now()
	evicted := k.sessions.evictIdle(now, k.opts.IdleTTL)
	for _, sess := range evicted {
		k.handles.removeSession(sess.ID)
		if sess.env != nil {
			sess.env.Close()
		}
		logging.Session("evicted idle session %s (idle since %s)", sess.ID, sess.idleSince().Format(time.RFC3339))
	}
	return len(evicted)
}

// SessionCount reports the number of live sessions.
func (k *Kernel) SessionCount() int {
	return k.sessions.count()
}

// Teardown removes a session immediately, regardless of idle time.
func (k *Kernel) Teardown(id string) {
	if sess, ok := k.sessions.remove(id); ok {
		k.handles.removeSession(sess.ID)
		if sess.env != nil {
			sess.env.Close()
		}
		logging.Session("tore down session %s", id)
	}
}

// Close releases all sessions and handles.
func (k *Kernel) Close() {
	for _, sess := range k.sessions.drain() {
		k.handles.removeSession(sess.ID)
		if sess.env != nil {
			sess.env.Close()
		}
	}
}
