package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestKernel(t *testing.T, opts Options) (*Kernel, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts.Now = clock.Now
	k := New(opts)
	t.Cleanup(k.Close)
	return k, clock
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	k, clock := newTestKernel(t, Options{})

	_, err := k.Load("s1", "data", "hello", "", nil)
	require.NoError(t, err)
	require.Equal(t, 1, k.SessionCount())

	clock.Advance(DefaultIdleTTL + time.Second)
	assert.Equal(t, 1, k.Sweep())
	assert.Equal(t, 0, k.SessionCount())
}

func TestSweepIsAllOrNothing(t *testing.T) {
	k, clock := newTestKernel(t, Options{})

	_, err := k.Load("s1", "a", "one", "", nil)
	require.NoError(t, err)
	_, err = k.Load("s1", "b", "two", "", nil)
	require.NoError(t, err)

	clock.Advance(DefaultIdleTTL + time.Second)
	require.Equal(t, 1, k.Sweep())

	// A fresh session with the same id starts empty.
	list, err := k.List("s1")
	require.NoError(t, err)
	assert.Empty(t, list.Variables)
	assert.Zero(t, list.TotalSizeBytes)
}

func TestAccessRefreshesTTL(t *testing.T) {
	k, clock := newTestKernel(t, Options{})

	_, err := k.Load("s1", "data", "hello", "", nil)
	require.NoError(t, err)

	clock.Advance(DefaultIdleTTL - time.Minute)
	_, err = k.List("s1") // touches the session
	require.NoError(t, err)

	clock.Advance(DefaultIdleTTL - time.Minute)
	assert.Equal(t, 0, k.Sweep())
	assert.Equal(t, 1, k.SessionCount())
}

func TestSweepOnlyEvictsIdle(t *testing.T) {
	k, clock := newTestKernel(t, Options{})

	_, err := k.Load("old", "data", "x", "", nil)
	require.NoError(t, err)

	clock.Advance(DefaultIdleTTL - time.Second)
	_, err = k.Load("fresh", "data", "y", "", nil)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, k.Sweep())

	list, err := k.List("fresh")
	require.NoError(t, err)
	assert.Len(t, list.Variables, 1)
}

func TestSweepDropsSessionHandles(t *testing.T) {
	k, clock := newTestKernel(t, Options{})

	_, err := k.Load("s1", "data", "hello", "", nil)
	require.NoError(t, err)
	binding, err := k.RegisterHandle("s1", "data", "file")
	require.NoError(t, err)

	clock.Advance(DefaultIdleTTL + time.Second)
	require.Equal(t, 1, k.Sweep())

	_, err = k.ResolveHandle(binding.Handle)
	assert.True(t, IsKind(err, KindHandleNotFound), "got %v", err)
}

func TestTeardownRemovesSessionImmediately(t *testing.T) {
	k, _ := newTestKernel(t, Options{})

	_, err := k.Load("s1", "data", "hello", "", nil)
	require.NoError(t, err)
	binding, err := k.RegisterHandle("s1", "data", "")
	require.NoError(t, err)

	k.Teardown("s1")
	assert.Equal(t, 0, k.SessionCount())

	_, err = k.ResolveHandle(binding.Handle)
	assert.True(t, IsKind(err, KindHandleNotFound))
}

func TestSessionsAreIsolated(t *testing.T) {
	k, _ := newTestKernel(t, Options{})

	_, err := k.Load("alpha", "data", "alpha content", "", nil)
	require.NoError(t, err)
	_, err = k.Load("beta", "data", "beta content", "", nil)
	require.NoError(t, err)

	_, err = k.Peek("alpha", "data", 0, LimitUnset)
	require.NoError(t, err)

	require.NoError(t, k.Unload("alpha", "data"))

	// Beta's entry survives alpha's unload.
	info, err := k.Info("beta", "data")
	require.NoError(t, err)
	assert.Equal(t, "data", info.Name)
}

func TestOptionsApplyDefaults(t *testing.T) {
	var opts Options
	opts.applyDefaults()

	assert.Equal(t, int64(DefaultQuotaBytes), opts.QuotaBytes)
	assert.Equal(t, DefaultIdleTTL, opts.IdleTTL)
	assert.Equal(t, DefaultPeekLines, opts.PeekDefaultLines)
	assert.Equal(t, DefaultScanMatches, opts.ScanDefaultMatches)
	assert.Equal(t, DefaultExecTimeout, opts.ExecTimeout)
	assert.NotNil(t, opts.Now)
}
