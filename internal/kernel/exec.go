package kernel

import (
	"context"

	"github.com/lachlan-jones5/oh-my-opencode/internal/logging"
	"github.com/lachlan-jones5/oh-my-opencode/internal/sandbox"
)

// environment returns the session's execution environment, creating it
// lazily on first use. Caller must hold sess.mu.
func (k *Kernel) environment(sess *Session) (*sandbox.Environment, error) {
	if sess.env != nil {
		return sess.env, nil
	}
	env, err := sandbox.NewEnvironment(sandbox.Options{
		Capabilities:   k.caps,
		MaxOutputBytes: k.opts.MaxOutputBytes,
	})
	if err != nil {
		return nil, err
	}
	sess.env = env
	logging.SandboxDebug("created execution environment for session %s", sess.ID)
	return env, nil
}

// Eval runs a script against the session's persistent environment. The
// environment is seeded with the current namespace entries before the
// script runs; variables the script defines persist for later calls. A
// failed or timed-out script never corrupts the environment and never
// wedges the session for subsequent callers.
func (k *Kernel) Eval(ctx context.Context, sessionID, code string) (*sandbox.Result, error) {
	sess := k.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	env, err := k.environment(sess)
	if err != nil {
		return nil, NewError(KindExecutionError, "cannot allocate execution environment: %v", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, k.opts.ExecTimeout)
	defer cancel()

	result := env.Execute(execCtx, code, sess.snapshotRecords())
	sess.touch(k.now())

	if result.Success {
		logging.SandboxDebug("session %s eval ok in %s (%d vars defined)", sessionID, result.Duration, len(result.DefinedVariables))
	} else {
		logging.Sandbox("session %s eval failed (%s): %s", sessionID, result.FailureKind, result.Error)
	}
	return result, nil
}

// RequestQuery queues a deferred oracle query outside of a script and
// returns its placeholder marker plus the full pending list.
func (k *Kernel) RequestQuery(sessionID, prompt, modelHint string) (string, []sandbox.PendingQuery, error) {
	sess := k.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	env, err := k.environment(sess)
	if err != nil {
		return "", nil, NewError(KindExecutionError, "cannot allocate execution environment: %v", err)
	}

	marker := env.EnqueueQuery(prompt, modelHint)
	return marker, env.PendingQueries(), nil
}

// RequestQueryBatch queues one deferred query per prompt, in order, and
// returns the placeholder markers.
func (k *Kernel) RequestQueryBatch(sessionID string, prompts []string, modelHint string) ([]string, []sandbox.PendingQuery, error) {
	sess := k.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	env, err := k.environment(sess)
	if err != nil {
		return nil, nil, NewError(KindExecutionError, "cannot allocate execution environment: %v", err)
	}

	markers := make([]string, 0, len(prompts))
	for _, prompt := range prompts {
		markers = append(markers, env.EnqueueQuery(prompt, modelHint))
	}
	return markers, env.PendingQueries(), nil
}
