package kernel

import (
	"regexp"
	"strings"
)

// PeekResult is a window into an entry's line index.
type PeekResult struct {
	Name       string `json:"name"`
	Offset     int    `json:"offset"`
	Limit      int    `json:"limit"`
	TotalLines int    `json:"total_lines"`
	Returned   int    `json:"returned"`
	HasMore    bool   `json:"has_more"`
	Content    string `json:"content"`
}

// ScanMatch is a single line matching a scan pattern. Context, when
// requested, is the surrounding window clipped to the entry bounds.
type ScanMatch struct {
	Line    int      `json:"line"`
	Text    string   `json:"text"`
	Context []string `json:"context,omitempty"`
}

// ScanResult reports the matches found by a scan.
type ScanResult struct {
	Name      string      `json:"name"`
	Pattern   string      `json:"pattern"`
	Matches   int         `json:"matches"`
	Truncated bool        `json:"truncated"`
	Results   []ScanMatch `json:"results"`
}

// LimitUnset asks Peek/Scan to apply the kernel's configured default.
const LimitUnset = -1

// Peek returns lines[offset : offset+limit] joined back into text. It
// slices the entry's existing line index; the content is never re-split or
// copied wholesale. Offsets past the end yield an empty window with
// has_more=false rather than an error.
func (k *Kernel) Peek(sessionID, name string, offset, limit int) (*PeekResult, error) {
	switch {
	case limit == LimitUnset:
		limit = k.opts.PeekDefaultLines
	case limit < 1:
		return nil, NewError(KindInvalidArgument, "limit must be at least 1, got %d", limit)
	case limit > k.opts.PeekMaxLines:
		limit = k.opts.PeekMaxLines
	}
	if offset < 0 {
		offset = 0
	}

	sess := k.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	entry, ok := sess.entries[name]
	if !ok {
		return nil, errVariableNotFound(name, sess.availableNames())
	}
	entry.LastAccessedAt = k.now()

	total := len(entry.Lines)
	start, end := offset, offset+limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	window := entry.Lines[start:end]

	return &PeekResult{
		Name:       name,
		Offset:     offset,
		Limit:      limit,
		TotalLines: total,
		Returned:   len(window),
		HasMore:    offset+len(window) < total,
		Content:    strings.Join(window, "\n"),
	}, nil
}

// Scan searches an entry's lines with a regular expression, in order,
// recording up to maxMatches matches. Truncated is true iff strictly more
// matches exist than were returned, which the scanner verifies by looking
// for one further match after the cap is reached.
func (k *Kernel) Scan(sessionID, name, pattern string, contextLines, maxMatches int, caseInsensitive bool) (*ScanResult, error) {
	if maxMatches <= 0 {
		maxMatches = k.opts.ScanDefaultMatches
	}
	if maxMatches > k.opts.ScanMaxMatches {
		maxMatches = k.opts.ScanMaxMatches
	}
	if contextLines < 0 {
		contextLines = 0
	}

	expr := pattern
	if caseInsensitive {
		expr = "(?i)" + pattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, NewError(KindInvalidPattern, "invalid pattern %q: %v", pattern, err).
			With("pattern", pattern)
	}

	sess := k.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	entry, ok := sess.entries[name]
	if !ok {
		return nil, errVariableNotFound(name, sess.availableNames())
	}
	entry.LastAccessedAt = k.now()

	lines := entry.Lines
	matches := make([]ScanMatch, 0, maxMatches)
	truncated := false
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		if len(matches) == maxMatches {
			truncated = true
			break
		}
		m := ScanMatch{Line: i, Text: line}
		if contextLines > 0 {
			start := i - contextLines
			if start < 0 {
				start = 0
			}
			end := i + contextLines + 1
			if end > len(lines) {
				end = len(lines)
			}
			m.Context = lines[start:end]
		}
		matches = append(matches, m)
	}

	return &ScanResult{
		Name:      name,
		Pattern:   pattern,
		Matches:   len(matches),
		Truncated: truncated,
		Results:   matches,
	}, nil
}
