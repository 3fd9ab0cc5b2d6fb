package server

import "os"

// sessionIDLength keeps session ids short enough to embed in handle
// tokens while staying unique among concurrently active callers.
const sessionIDLength = 8

// resolveSession determines the caller's session id. Explicit arguments
// win, parent_session_id before session_id; otherwise the id comes from
// the environment the parent agent exported, falling back to a shared
// global session.
func resolveSession(args map[string]any) string {
	if v, ok := stringArg(args, "parent_session_id"); ok && v != "" {
		return clipSession(v)
	}
	if v, ok := stringArg(args, "session_id"); ok && v != "" {
		return clipSession(v)
	}
	if v := os.Getenv("PARENT_SESSION_ID"); v != "" {
		return clipSession(v)
	}
	if v := os.Getenv("OPENCODE_SESSION_ID"); v != "" {
		return clipSession(v)
	}
	return "global"
}

func clipSession(id string) string {
	if len(id) > sessionIDLength {
		return id[:sessionIDLength]
	}
	return id
}
