package kernel

import (
	"sort"

	"github.com/lachlan-jones5/oh-my-opencode/internal/logging"
)

// LoadSummary reports the outcome of a successful load.
type LoadSummary struct {
	Name      string `json:"name"`
	LineCount int    `json:"line_count"`
	SizeBytes int64  `json:"size_bytes"`
	TypeTag   string `json:"type_tag"`
}

// VariableSummary is one row in a list result.
type VariableSummary struct {
	Name      string `json:"name"`
	LineCount int    `json:"line_count"`
	SizeBytes int64  `json:"size_bytes"`
	TypeTag   string `json:"type_tag"`
	CreatedAt string `json:"created_at"`
}

// ListResult enumerates a session's namespace.
type ListResult struct {
	SessionID      string            `json:"session"`
	Variables      []VariableSummary `json:"variables"`
	TotalSizeBytes int64             `json:"total_size_bytes"`
}

// EntryInfo is the full metadata view of a single entry.
type EntryInfo struct {
	Name           string         `json:"name"`
	LineCount      int            `json:"line_count"`
	SizeBytes      int64          `json:"size_bytes"`
	TypeTag        string         `json:"type_tag"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      string         `json:"created_at"`
	LastAccessedAt string         `json:"last_accessed_at"`
}

// Load stores content under name in the session's namespace, replacing any
// prior entry of the same name atomically. The load is rejected whole if it
// would push the session past its byte quota; on rejection the namespace
// and quota accounting are untouched.
func (k *Kernel) Load(sessionID, name, content, typeTag string, metadata map[string]any) (*LoadSummary, error) {
	if name == "" {
		return nil, NewError(KindInvalidArgument, "variable name must not be empty")
	}

	sess := k.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	newSize := int64(len(content))
	projected := sess.totalBytes + newSize
	if prior, ok := sess.entries[name]; ok {
		projected -= prior.SizeBytes
	}
	if projected > k.opts.QuotaBytes {
		return nil, NewError(KindQuotaExceeded, "session %s would exceed %d byte quota", sessionID, k.opts.QuotaBytes).
			With("current_size", sess.totalBytes).
			With("incoming_size", newSize).
			With("limit", k.opts.QuotaBytes)
	}

	entry := newContextEntry(name, content, typeTag, metadata, k.now())
	sess.entries[name] = entry
	sess.totalBytes = projected

	logging.KernelDebug("session %s loaded %q: %d lines, %d bytes", sessionID, name, len(entry.Lines), entry.SizeBytes)

	return &LoadSummary{
		Name:      name,
		LineCount: len(entry.Lines),
		SizeBytes: entry.SizeBytes,
		TypeTag:   entry.TypeTag,
	}, nil
}

// Info returns full metadata for one entry, touching its access time.
func (k *Kernel) Info(sessionID, name string) (*EntryInfo, error) {
	sess := k.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	entry, ok := sess.entries[name]
	if !ok {
		return nil, errVariableNotFound(name, sess.availableNames())
	}

	info := &EntryInfo{
		Name:           entry.Name,
		LineCount:      len(entry.Lines),
		SizeBytes:      entry.SizeBytes,
		TypeTag:        entry.TypeTag,
		Metadata:       entry.Metadata,
		CreatedAt:      entry.CreatedAt.Format(timestampLayout),
		LastAccessedAt: entry.LastAccessedAt.Format(timestampLayout),
	}
	entry.LastAccessedAt = k.now()
	return info, nil
}

// Unload removes the entry immediately. Handles bound to it become stale,
// not dangling: resolution reports the staleness, the tokens survive.
func (k *Kernel) Unload(sessionID, name string) error {
	sess := k.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	entry, ok := sess.entries[name]
	if !ok {
		return errVariableNotFound(name, sess.availableNames())
	}

	delete(sess.entries, name)
	sess.totalBytes -= entry.SizeBytes
	logging.KernelDebug("session %s unloaded %q (%d bytes freed)", sessionID, name, entry.SizeBytes)
	return nil
}

// List returns summaries for every entry plus the session's total usage.
func (k *Kernel) List(sessionID string) (*ListResult, error) {
	sess := k.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	vars := make([]VariableSummary, 0, len(sess.entries))
	for _, entry := range sess.entries {
		vars = append(vars, VariableSummary{
			Name:      entry.Name,
			LineCount: len(entry.Lines),
			SizeBytes: entry.SizeBytes,
			TypeTag:   entry.TypeTag,
			CreatedAt: entry.CreatedAt.Format(timestampLayout),
		})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })

	return &ListResult{
		SessionID:      sessionID,
		Variables:      vars,
		TotalSizeBytes: sess.totalBytes,
	}, nil
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"
