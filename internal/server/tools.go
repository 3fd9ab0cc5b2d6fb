package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lachlan-jones5/oh-my-opencode/internal/kernel"
	"github.com/lachlan-jones5/oh-my-opencode/internal/sandbox"
)

// sessionParam adds the optional explicit session overrides shared by
// every tool. Callers normally rely on the environment instead.
func sessionParam() mcp.ToolOption {
	return func(t *mcp.Tool) {
		mcp.WithString("parent_session_id",
			mcp.Description("Explicit parent session id (wins over session_id)"))(t)
		mcp.WithString("session_id",
			mcp.Description("Explicit session id (defaults to PARENT_SESSION_ID / OPENCODE_SESSION_ID / global)"))(t)
	}
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("load_context",
		mcp.WithDescription("Load content into the session namespace under a variable name"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Variable name (e.g. 'context', 'log_data')")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Content to load")),
		mcp.WithString("content_type", mcp.Description("Type hint: file, log, json, custom")),
		mcp.WithObject("metadata", mcp.Description("Optional metadata (path, encoding, etc.)")),
		sessionParam(),
	), s.tool("load_context", s.handleLoad))

	s.mcp.AddTool(mcp.NewTool("peek",
		mcp.WithDescription("Read a slice of a variable's lines (zero-copy pagination)"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Variable name")),
		mcp.WithNumber("offset", mcp.Description("Line offset, 0-based")),
		mcp.WithNumber("limit", mcp.Description("Lines to read")),
		sessionParam(),
	), s.tool("peek", s.handlePeek))

	s.mcp.AddTool(mcp.NewTool("scan",
		mcp.WithDescription("Search a variable's lines with a regular expression"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Variable name to search")),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Regex pattern")),
		mcp.WithNumber("context_lines", mcp.Description("Lines of context around each match")),
		mcp.WithNumber("max_matches", mcp.Description("Maximum results to return")),
		mcp.WithBoolean("case_insensitive", mcp.Description("Case-insensitive matching (default true)")),
		sessionParam(),
	), s.tool("scan", s.handleScan))

	s.mcp.AddTool(mcp.NewTool("list_vars",
		mcp.WithDescription("List all variables in the session namespace"),
		sessionParam(),
	), s.tool("list_vars", s.handleList))

	s.mcp.AddTool(mcp.NewTool("var_info",
		mcp.WithDescription("Get metadata about a specific variable"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Variable name")),
		sessionParam(),
	), s.tool("var_info", s.handleInfo))

	s.mcp.AddTool(mcp.NewTool("unload",
		mcp.WithDescription("Remove a variable from the namespace"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Variable name to unload")),
		sessionParam(),
	), s.tool("unload", s.handleUnload))

	s.mcp.AddTool(mcp.NewTool("register_handle",
		mcp.WithDescription("Create a handle token referencing a namespace variable"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Variable name the handle points at")),
		mcp.WithString("content_type", mcp.Description("Type hint for the handle")),
		sessionParam(),
	), s.tool("register_handle", s.handleRegisterHandle))

	s.mcp.AddTool(mcp.NewTool("resolve_handle",
		mcp.WithDescription("Resolve a handle token back to its variable binding"),
		mcp.WithString("handle", mcp.Required(), mcp.Description("Handle token (ctx_...)")),
		sessionParam(),
	), s.tool("resolve_handle", s.handleResolveHandle))

	s.mcp.AddTool(mcp.NewTool("eval_code",
		mcp.WithDescription("Execute a Go script against the session namespace. Loaded variables are bound as kernel.Record values; use oracle.Query for deferred queries."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Script to execute")),
		sessionParam(),
	), s.tool("eval_code", s.handleEval))

	s.mcp.AddTool(mcp.NewTool("llm_query",
		mcp.WithDescription("Queue a deferred query for the parent agent to fulfill"),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt to queue")),
		mcp.WithString("model", mcp.Description("Optional model hint (e.g. 'fast', 'smart')")),
		sessionParam(),
	), s.tool("llm_query", s.handleRequestQuery))

	s.mcp.AddTool(mcp.NewTool("llm_query_batched",
		mcp.WithDescription("Queue multiple deferred queries for the parent agent"),
		mcp.WithArray("prompts", mcp.Required(), mcp.Description("Prompts to queue, in order")),
		mcp.WithString("model", mcp.Description("Optional model hint")),
		sessionParam(),
	), s.tool("llm_query_batched", s.handleRequestQueryBatch))
}

func (s *Server) handleLoad(_ context.Context, session string, args map[string]any) *mcp.CallToolResult {
	name, ok := stringArg(args, "name")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "name is required"))
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "content is required"))
	}

	summary, err := s.kernel.Load(session, name, content, stringOr(args, "content_type", ""), mapArg(args, "metadata"))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(summary)
}

func (s *Server) handlePeek(_ context.Context, session string, args map[string]any) *mcp.CallToolResult {
	name, ok := stringArg(args, "name")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "name is required"))
	}

	result, err := s.kernel.Peek(session, name,
		intOr(args, "offset", 0),
		intOr(args, "limit", kernel.LimitUnset))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleScan(_ context.Context, session string, args map[string]any) *mcp.CallToolResult {
	name, ok := stringArg(args, "name")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "name is required"))
	}
	pattern, ok := stringArg(args, "pattern")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "pattern is required"))
	}

	result, err := s.kernel.Scan(session, name, pattern,
		intOr(args, "context_lines", 0),
		intOr(args, "max_matches", 0),
		boolOr(args, "case_insensitive", true))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleList(_ context.Context, session string, _ map[string]any) *mcp.CallToolResult {
	result, err := s.kernel.List(session)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleInfo(_ context.Context, session string, args map[string]any) *mcp.CallToolResult {
	name, ok := stringArg(args, "name")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "name is required"))
	}

	info, err := s.kernel.Info(session, name)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(info)
}

func (s *Server) handleUnload(_ context.Context, session string, args map[string]any) *mcp.CallToolResult {
	name, ok := stringArg(args, "name")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "name is required"))
	}

	if err := s.kernel.Unload(session, name); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{"unloaded": name})
}

func (s *Server) handleRegisterHandle(_ context.Context, session string, args map[string]any) *mcp.CallToolResult {
	name, ok := stringArg(args, "name")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "name is required"))
	}

	binding, err := s.kernel.RegisterHandle(session, name, stringOr(args, "content_type", ""))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{
		"handle":   binding.Handle,
		"var_name": binding.VarName,
		"type_tag": binding.TypeTag,
	})
}

func (s *Server) handleResolveHandle(_ context.Context, _ string, args map[string]any) *mcp.CallToolResult {
	token, ok := stringArg(args, "handle")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "handle is required"))
	}

	binding, err := s.kernel.ResolveHandle(token)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(binding)
}

// evalPayload is the eval_code response. A failed script is still a
// successful tool call carrying success=false plus everything captured
// before the fault.
type evalPayload struct {
	Success              bool                   `json:"success"`
	Stdout               string                 `json:"stdout"`
	Stderr               string                 `json:"stderr"`
	Error                string                 `json:"error"`
	ErrorKind            string                 `json:"error_kind,omitempty"`
	OutputTruncated      bool                   `json:"output_truncated"`
	ExecutionTimeSeconds float64                `json:"execution_time_seconds"`
	PendingQueries       []sandbox.PendingQuery `json:"pending_queries"`
	DefinedVariables     []string               `json:"defined_variables"`
}

func (s *Server) handleEval(ctx context.Context, session string, args map[string]any) *mcp.CallToolResult {
	code, ok := stringArg(args, "code")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "code is required"))
	}

	result, err := s.kernel.Eval(ctx, session, code)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(evalPayload{
		Success:              result.Success,
		Stdout:               result.Stdout,
		Stderr:               result.Stderr,
		Error:                result.Error,
		ErrorKind:            string(result.FailureKind),
		OutputTruncated:      result.OutputTruncated,
		ExecutionTimeSeconds: result.Duration.Seconds(),
		PendingQueries:       emptyIfNil(result.PendingQueries),
		DefinedVariables:     emptyStringsIfNil(result.DefinedVariables),
	})
}

func (s *Server) handleRequestQuery(_ context.Context, session string, args map[string]any) *mcp.CallToolResult {
	prompt, ok := stringArg(args, "prompt")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "prompt is required"))
	}

	marker, pending, err := s.kernel.RequestQuery(session, prompt, stringOr(args, "model", ""))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{
		"status":          "deferred",
		"marker":          marker,
		"pending_queries": emptyIfNil(pending),
	})
}

func (s *Server) handleRequestQueryBatch(_ context.Context, session string, args map[string]any) *mcp.CallToolResult {
	prompts, ok := stringSliceArg(args, "prompts")
	if !ok {
		return errorResult(kernel.NewError(kernel.KindInvalidArgument, "prompts must be an array of strings"))
	}

	markers, pending, err := s.kernel.RequestQueryBatch(session, prompts, stringOr(args, "model", ""))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{
		"status":          "deferred",
		"count":           len(markers),
		"markers":         markers,
		"pending_queries": emptyIfNil(pending),
	})
}

// emptyIfNil keeps JSON arrays as [] instead of null.
func emptyIfNil(qs []sandbox.PendingQuery) []sandbox.PendingQuery {
	if qs == nil {
		return []sandbox.PendingQuery{}
	}
	return qs
}

func emptyStringsIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
