package kernel

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lachlan-jones5/oh-my-opencode/internal/sandbox"
)

// ContextEntry is a single named piece of text loaded into a session's
// namespace. The line index is built once at load time and never mutated;
// peek and scan slice into it directly.
type ContextEntry struct {
	Name           string
	Content        string
	Lines          []string
	SizeBytes      int64
	TypeTag        string
	Metadata       map[string]any
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

func newContextEntry(name, content, typeTag string, metadata map[string]any, now time.Time) *ContextEntry {
	if typeTag == "" {
		typeTag = "custom"
	}
	return &ContextEntry{
		Name:           name,
		Content:        content,
		Lines:          strings.Split(content, "\n"),
		SizeBytes:      int64(len(content)),
		TypeTag:        typeTag,
		Metadata:       metadata,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
}

// Session owns one namespace, one execution environment and the quota
// accounting for a single caller scope. All operations on a session are
// serialized by mu; lastAccessed is atomic so the sweeper can inspect
// sessions without touching their operation lock.
type Session struct {
	ID string

	mu         sync.Mutex
	entries    map[string]*ContextEntry
	totalBytes int64
	env        *sandbox.Environment

	createdAt    time.Time
	lastAccessed atomic.Int64 // unix nanos
}

func newSession(id string, now time.Time) *Session {
	s := &Session{
		ID:        id,
		entries:   make(map[string]*ContextEntry),
		createdAt: now,
	}
	s.lastAccessed.Store(now.UnixNano())
	return s
}

func (s *Session) touch(now time.Time) {
	s.lastAccessed.Store(now.UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastAccessed.Load())
}

// availableNames returns the sorted entry names, used in error context.
// Caller must hold s.mu.
func (s *Session) availableNames() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// snapshotRecords converts the current namespace into sandbox records for
// seeding the execution environment. Caller must hold s.mu. The line slice
// is shared, not copied; the sandbox treats records as read-only.
func (s *Session) snapshotRecords() map[string]sandbox.Record {
	records := make(map[string]sandbox.Record, len(s.entries))
	for name, e := range s.entries {
		records[name] = sandbox.Record{
			Content:   e.Content,
			Lines:     e.Lines,
			LineCount: len(e.Lines),
			Size:      e.SizeBytes,
			Type:      e.TypeTag,
			Metadata:  e.Metadata,
			Created:   e.CreatedAt,
			Accessed:  e.LastAccessedAt,
		}
	}
	return records
}
