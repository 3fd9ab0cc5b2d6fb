// Package sandbox executes caller-supplied scripts against a persistent,
// session-scoped interpreter with an explicit capability allow-list.
//
// Scripts are Go fragments evaluated in REPL mode: top-level bindings
// survive between calls, which is what makes the environment persistent.
// Namespace entries are seeded as read-only Record values, and the oracle
// primitives let a script queue work it cannot perform itself without ever
// blocking on an answer.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
)

// FailureKind classifies a failed execution.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureCapabilityDenied FailureKind = "capability_denied"
	FailureTimeout          FailureKind = "timeout"
	FailureExecution        FailureKind = "execution_error"
)

// Result is the complete outcome of one script execution. A failed run
// still carries whatever stdout/stderr was captured before the fault, the
// variable diff including partial assignments, and the pending queue.
type Result struct {
	Success          bool
	Stdout           string
	Stderr           string
	OutputTruncated  bool
	Error            string
	FailureKind      FailureKind
	Duration         time.Duration
	DefinedVariables []string
	PendingQueries   []PendingQuery
}

// Options configures a new execution environment.
type Options struct {
	// Capabilities is the package allow-list. Nil means the default set.
	Capabilities *Capabilities

	// MaxOutputBytes caps captured stdout and stderr individually.
	MaxOutputBytes int
}

// Environment is one session's persistent script interpreter. All
// executions on an environment are serialized by the owning session; the
// internal mutex only defends against goroutines abandoned by a timeout.
type Environment struct {
	mu     sync.Mutex
	caps   *Capabilities
	interp *interp.Interpreter
	stdout *cappedBuffer
	stderr *cappedBuffer
	queue  queryQueue
	closed bool

	// seeded tracks which entry names are bound in the interpreter and
	// the load generation they were seeded from, so reloaded entries are
	// re-seeded and untouched ones are not.
	seeded map[string]time.Time

	varsMu sync.RWMutex
	vars   map[string]Record
}

// NewEnvironment builds an interpreter restricted to the allow-listed
// packages plus the kernel and oracle primitives.
func NewEnvironment(opts Options) (*Environment, error) {
	caps := opts.Capabilities
	if caps == nil {
		caps = DefaultCapabilities()
	}
	maxOut := opts.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = 1 * 1024 * 1024
	}

	env := &Environment{
		caps:   caps,
		stdout: newCappedBuffer(maxOut),
		stderr: newCappedBuffer(maxOut),
		seeded: make(map[string]time.Time),
	}

	i := interp.New(interp.Options{
		Stdout: env.stdout,
		Stderr: env.stderr,
	})

	if err := i.Use(caps.symbols()); err != nil {
		return nil, fmt.Errorf("loading allowed symbols: %w", err)
	}
	if err := i.Use(interp.Exports{
		"kernel/kernel": {
			"Record": reflect.ValueOf((*Record)(nil)),
			"Var":    reflect.ValueOf(env.lookupVar),
			"Has":    reflect.ValueOf(env.hasVar),
			"Vars":   reflect.ValueOf(env.varNames),
		},
		"oracle/oracle": {
			"Query":      reflect.ValueOf(env.oracleQuery),
			"QueryModel": reflect.ValueOf(env.oracleQueryModel),
			"QueryBatch": reflect.ValueOf(env.oracleQueryBatch),
		},
	}); err != nil {
		return nil, fmt.Errorf("loading kernel primitives: %w", err)
	}

	env.interp = i
	if err := env.evalPrelude(); err != nil {
		return nil, fmt.Errorf("evaluating prelude: %w", err)
	}
	return env, nil
}

// preludePackages are pre-imported for script convenience when allowed,
// so short scripts can call fmt.Println without their own import block.
var preludePackages = []string{"fmt", "strings", "strconv", "sort"}

func (e *Environment) evalPrelude() error {
	stmts := []string{`import "kernel"`, `import "oracle"`}
	for _, pkg := range preludePackages {
		if e.caps.Allows(pkg) {
			stmts = append(stmts, fmt.Sprintf("import %q", pkg))
		}
	}
	for _, stmt := range stmts {
		if _, err := e.interp.Eval(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// Execute runs a script synchronously against the persistent environment.
// The supplied vars are the current namespace snapshot; new or reloaded
// entries are (re-)seeded before the script runs. The context carries the
// execution deadline: on expiry the interpreter is stopped and the call
// reports a timeout, while the environment keeps everything committed
// before cancellation.
func (e *Environment) Execute(ctx context.Context, code string, vars map[string]Record) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	res := &Result{}

	finish := func() *Result {
		res.PendingQueries = e.queue.snapshot()
		res.Duration = time.Since(start)
		return res
	}

	if e.closed {
		res.FailureKind = FailureExecution
		res.Error = "execution environment is closed"
		return finish()
	}

	if denied := e.caps.DeniedImports(code); len(denied) > 0 {
		res.FailureKind = FailureCapabilityDenied
		res.Error = e.caps.DeniedError(denied)
		return finish()
	}

	e.stdout.Reset()
	e.stderr.Reset()
	e.setVars(vars)

	if err := e.seed(vars); err != nil {
		res.FailureKind = FailureExecution
		res.Error = fmt.Sprintf("seeding namespace: %v", err)
		return finish()
	}

	baseline := e.snapshotGlobals()
	err := e.evalUser(ctx, code)

	res.Stdout = e.stdout.String()
	res.Stderr = e.stderr.String()
	res.OutputTruncated = e.stdout.Truncated() || e.stderr.Truncated()
	res.DefinedVariables = e.diffGlobals(baseline)

	switch {
	case err == nil:
		res.Success = true
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		res.FailureKind = FailureTimeout
		res.Error = "execution deadline exceeded"
	default:
		res.FailureKind = FailureExecution
		res.Error = err.Error()
	}
	return finish()
}

// evalUser evaluates the script, converting interpreter panics into
// ordinary errors so a faulting script can never take down the host.
func (e *Environment) evalUser(ctx context.Context, code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panic: %v", r)
		}
	}()
	_, err = e.interp.EvalWithContext(ctx, code)
	return err
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true,
	"continue": true, "default": true, "defer": true, "else": true,
	"fallthrough": true, "for": true, "func": true, "go": true,
	"goto": true, "if": true, "import": true, "interface": true,
	"map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true,
	"var": true,
}

// seedable reports whether an entry name can be bound as a script
// variable. Entries with unbindable names stay reachable via kernel.Var.
func seedable(name string) bool {
	return name != "_" && identPattern.MatchString(name) && !goKeywords[name]
}

// seed binds new or reloaded namespace entries as top-level variables.
func (e *Environment) seed(vars map[string]Record) error {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !seedable(name) {
			continue
		}
		rec := vars[name]
		if seededAt, ok := e.seeded[name]; ok && seededAt.Equal(rec.Created) {
			continue
		}
		if _, err := e.interp.Eval(fmt.Sprintf("%s := kernel.Var(%q)", name, name)); err != nil {
			return fmt.Errorf("binding %s: %w", name, err)
		}
		e.seeded[name] = rec.Created
	}
	return nil
}

func (e *Environment) snapshotGlobals() map[string]any {
	snap := make(map[string]any)
	for name, v := range e.interp.Globals() {
		snap[name] = safeInterface(v)
	}
	return snap
}

// diffGlobals reports variables added or changed since the baseline.
// Function and channel values are only reported when newly added; they
// never compare equal, and re-reporting a persistent helper every call
// would drown the signal.
func (e *Environment) diffGlobals(baseline map[string]any) []string {
	var defined []string
	for name, v := range e.interp.Globals() {
		cur := safeInterface(v)
		prev, ok := baseline[name]
		if !ok {
			defined = append(defined, name)
			continue
		}
		if k := v.Kind(); k == reflect.Func || k == reflect.Chan {
			continue
		}
		if !reflect.DeepEqual(prev, cur) {
			defined = append(defined, name)
		}
	}
	sort.Strings(defined)
	return defined
}

func safeInterface(v reflect.Value) any {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

// EnqueueQuery queues a deferred oracle query from outside a script and
// returns its placeholder marker.
func (e *Environment) EnqueueQuery(prompt, model string) string {
	return e.queue.enqueue(prompt, model)
}

// PendingQueries returns the full pending list. Entries stay queued until
// the caller resolves them out-of-band; nothing in the kernel clears them.
func (e *Environment) PendingQueries() []PendingQuery {
	return e.queue.snapshot()
}

// Close marks the environment unusable. Any script goroutine abandoned by
// a timeout may still run briefly; the capped buffers tolerate that.
func (e *Environment) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *Environment) setVars(vars map[string]Record) {
	e.varsMu.Lock()
	defer e.varsMu.Unlock()
	e.vars = vars
}

// lookupVar is the kernel.Var primitive: the current Record for a
// namespace entry, or a zero Record when the entry does not exist.
func (e *Environment) lookupVar(name string) Record {
	e.varsMu.RLock()
	defer e.varsMu.RUnlock()
	return e.vars[name]
}

// hasVar is the kernel.Has primitive.
func (e *Environment) hasVar(name string) bool {
	e.varsMu.RLock()
	defer e.varsMu.RUnlock()
	_, ok := e.vars[name]
	return ok
}

// varNames is the kernel.Vars primitive: sorted loaded entry names.
func (e *Environment) varNames() []string {
	e.varsMu.RLock()
	defer e.varsMu.RUnlock()
	names := make([]string, 0, len(e.vars))
	for name := range e.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Environment) oracleQuery(prompt string) string {
	return e.queue.enqueue(prompt, "")
}

func (e *Environment) oracleQueryModel(prompt, model string) string {
	return e.queue.enqueue(prompt, model)
}

func (e *Environment) oracleQueryBatch(prompts []string) []string {
	markers := make([]string, 0, len(prompts))
	for _, prompt := range prompts {
		markers = append(markers, e.queue.enqueue(prompt, ""))
	}
	return markers
}
