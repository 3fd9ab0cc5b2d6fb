package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEnv(t *testing.T, opts Options) *Environment {
	t.Helper()
	env, err := NewEnvironment(opts)
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}

func testRecord(content string) Record {
	lines := strings.Split(content, "\n")
	return Record{
		Content:   content,
		Lines:     lines,
		LineCount: len(lines),
		Size:      int64(len(content)),
		Type:      "custom",
		Created:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Accessed:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestExecuteCapturesStdout(t *testing.T) {
	env := newTestEnv(t, Options{})

	res := env.Execute(context.Background(), `fmt.Println("out")`, nil)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Contains(t, res.Stdout, "out")
	assert.Empty(t, res.Stderr)
	assert.False(t, res.OutputTruncated)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestExecuteSeedsRecords(t *testing.T) {
	env := newTestEnv(t, Options{})

	vars := map[string]Record{"doc": testRecord("one\ntwo")}
	res := env.Execute(context.Background(), `fmt.Println(doc.LineCount, len(doc.Content))`, vars)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Contains(t, res.Stdout, "2 7")
}

func TestExecuteKernelVarLookup(t *testing.T) {
	env := newTestEnv(t, Options{})

	vars := map[string]Record{"doc": testRecord("hello")}
	res := env.Execute(context.Background(), `rec := kernel.Var("doc")
fmt.Println(rec.Content)
fmt.Println(kernel.Has("doc"), kernel.Has("nope"))`, vars)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Contains(t, res.Stdout, "hello")
	assert.Contains(t, res.Stdout, "true false")
}

func TestExecuteSkipsUnbindableNames(t *testing.T) {
	env := newTestEnv(t, Options{})

	// "my-log" is not a valid identifier; it must still be reachable
	// through kernel.Var.
	vars := map[string]Record{"my-log": testRecord("reachable")}
	res := env.Execute(context.Background(), `fmt.Println(kernel.Var("my-log").Content)`, vars)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Contains(t, res.Stdout, "reachable")
}

func TestExecuteDefinedVariablesDiff(t *testing.T) {
	env := newTestEnv(t, Options{})

	res := env.Execute(context.Background(), `a := 1
b := "two"`, nil)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Contains(t, res.DefinedVariables, "a")
	assert.Contains(t, res.DefinedVariables, "b")

	// Unchanged variables are not re-reported.
	res = env.Execute(context.Background(), `c := a + 1`, nil)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Contains(t, res.DefinedVariables, "c")
	assert.NotContains(t, res.DefinedVariables, "a")
	assert.NotContains(t, res.DefinedVariables, "b")

	// Mutations are reported.
	res = env.Execute(context.Background(), `a = 99`, nil)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Contains(t, res.DefinedVariables, "a")
}

func TestExecuteDeniedImport(t *testing.T) {
	env := newTestEnv(t, Options{})

	res := env.Execute(context.Background(), `import "net/http"
fmt.Println(http.StatusOK)`, nil)
	assert.False(t, res.Success)
	assert.Equal(t, FailureCapabilityDenied, res.FailureKind)
	assert.Contains(t, res.Error, "net/http")
	assert.Contains(t, res.Error, "allowed:")
}

func TestExecuteAllowedImport(t *testing.T) {
	env := newTestEnv(t, Options{})

	res := env.Execute(context.Background(), `import "encoding/json"
data, _ := json.Marshal(map[string]int{"n": 7})
fmt.Println(string(data))`, nil)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Contains(t, res.Stdout, `{"n":7}`)
}

func TestExecuteCustomCapabilities(t *testing.T) {
	env := newTestEnv(t, Options{Capabilities: NewCapabilities([]string{"fmt"})})

	res := env.Execute(context.Background(), `import "strings"
fmt.Println(strings.ToUpper("x"))`, nil)
	assert.False(t, res.Success)
	assert.Equal(t, FailureCapabilityDenied, res.FailureKind)
	assert.Contains(t, res.Error, "strings")
}

func TestExecuteRuntimeFault(t *testing.T) {
	env := newTestEnv(t, Options{})

	res := env.Execute(context.Background(), `fmt.Println("before")
empty := []int{}
fmt.Println(empty[3])`, nil)
	assert.False(t, res.Success)
	assert.Equal(t, FailureExecution, res.FailureKind)
	assert.NotEmpty(t, res.Error)
	// Output captured before the fault is preserved.
	assert.Contains(t, res.Stdout, "before")
}

func TestExecuteTimeout(t *testing.T) {
	env := newTestEnv(t, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res := env.Execute(ctx, `n := 0
for i := 0; i < 2000000000; i++ {
	n += i
}`, nil)
	assert.False(t, res.Success)
	assert.Equal(t, FailureTimeout, res.FailureKind)

	// The environment is still usable afterwards.
	after := env.Execute(context.Background(), `fmt.Println("recovered")`, nil)
	require.True(t, after.Success, "error: %s", after.Error)
	assert.Contains(t, after.Stdout, "recovered")
}

func TestExecuteOutputTruncation(t *testing.T) {
	env := newTestEnv(t, Options{MaxOutputBytes: 64})

	res := env.Execute(context.Background(), `for i := 0; i < 100; i++ {
	fmt.Println("this line pads the output buffer past its cap")
}`, nil)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.True(t, res.OutputTruncated)
	assert.LessOrEqual(t, len(res.Stdout), 64)
}

func TestExecuteOutputResetBetweenCalls(t *testing.T) {
	env := newTestEnv(t, Options{})

	first := env.Execute(context.Background(), `fmt.Println("first")`, nil)
	require.True(t, first.Success, "error: %s", first.Error)

	second := env.Execute(context.Background(), `fmt.Println("second")`, nil)
	require.True(t, second.Success, "error: %s", second.Error)
	assert.NotContains(t, second.Stdout, "first")
}

func TestOracleQueryMarkers(t *testing.T) {
	env := newTestEnv(t, Options{})

	res := env.Execute(context.Background(), `m1 := oracle.Query("first question")
m2 := oracle.QueryModel("second question", "fast")
fmt.Println(m1)
fmt.Println(m2)`, nil)
	require.True(t, res.Success, "error: %s", res.Error)

	assert.Contains(t, res.Stdout, "[DEFERRED:q_000] oracle query queued for caller")
	assert.Contains(t, res.Stdout, "[DEFERRED:q_001] oracle query queued for caller")

	require.Len(t, res.PendingQueries, 2)
	assert.Equal(t, "first question", res.PendingQueries[0].Prompt)
	assert.Empty(t, res.PendingQueries[0].Model)
	assert.Equal(t, "fast", res.PendingQueries[1].Model)
}

func TestOracleQueryBatch(t *testing.T) {
	env := newTestEnv(t, Options{})

	res := env.Execute(context.Background(), `markers := oracle.QueryBatch([]string{"a", "b"})
fmt.Println(len(markers))`, nil)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Contains(t, res.Stdout, "2")
	assert.Len(t, res.PendingQueries, 2)
}

func TestPendingQueriesSurviveFailedRun(t *testing.T) {
	env := newTestEnv(t, Options{})

	res := env.Execute(context.Background(), `_ = oracle.Query("queued before fault")
boom := []int{}
_ = boom[1]`, nil)
	assert.False(t, res.Success)
	require.Len(t, res.PendingQueries, 1)
	assert.Equal(t, "q_000", res.PendingQueries[0].ID)

	// Next run still sees it; ids keep counting.
	res = env.Execute(context.Background(), `_ = oracle.Query("second")`, nil)
	require.True(t, res.Success, "error: %s", res.Error)
	require.Len(t, res.PendingQueries, 2)
	assert.Equal(t, "q_001", res.PendingQueries[1].ID)
}

func TestExecuteAfterClose(t *testing.T) {
	env, err := NewEnvironment(Options{})
	require.NoError(t, err)
	env.Close()

	res := env.Execute(context.Background(), `fmt.Println("nope")`, nil)
	assert.False(t, res.Success)
	assert.Equal(t, FailureExecution, res.FailureKind)
}
