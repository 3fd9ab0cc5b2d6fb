package kernel

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadNumberedLines(t *testing.T, k *Kernel, session, name string, n int) {
	t.Helper()
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %04d", i)
	}
	_, err := k.Load(session, name, strings.Join(lines, "\n"), "", nil)
	require.NoError(t, err)
}

func TestPeekWindow(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	loadNumberedLines(t, k, "s1", "doc", 100)

	res, err := k.Peek("s1", "doc", 10, 5)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Offset)
	assert.Equal(t, 5, res.Limit)
	assert.Equal(t, 100, res.TotalLines)
	assert.Equal(t, 5, res.Returned)
	assert.True(t, res.HasMore)
	assert.Equal(t, "line 0010\nline 0011\nline 0012\nline 0013\nline 0014", res.Content)
}

func TestPeekDefaultLimit(t *testing.T) {
	k, _ := newTestKernel(t, Options{PeekDefaultLines: 10})
	loadNumberedLines(t, k, "s1", "doc", 50)

	res, err := k.Peek("s1", "doc", 0, LimitUnset)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Returned)
	assert.True(t, res.HasMore)
}

func TestPeekClampsToMax(t *testing.T) {
	k, _ := newTestKernel(t, Options{PeekMaxLines: 20})
	loadNumberedLines(t, k, "s1", "doc", 100)

	res, err := k.Peek("s1", "doc", 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Limit)
	assert.Equal(t, 20, res.Returned)
}

func TestPeekRejectsNonPositiveLimit(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	loadNumberedLines(t, k, "s1", "doc", 10)

	_, err := k.Peek("s1", "doc", 0, 0)
	assert.True(t, IsKind(err, KindInvalidArgument))
}

func TestPeekPastEnd(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	loadNumberedLines(t, k, "s1", "doc", 10)

	res, err := k.Peek("s1", "doc", 50, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Returned)
	assert.False(t, res.HasMore)
	assert.Empty(t, res.Content)
}

func TestPeekNegativeOffsetClampsToZero(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	loadNumberedLines(t, k, "s1", "doc", 10)

	res, err := k.Peek("s1", "doc", -3, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Offset)
	assert.Equal(t, "line 0000\nline 0001", res.Content)
}

func TestPeekLastWindowHasNoMore(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	loadNumberedLines(t, k, "s1", "doc", 10)

	res, err := k.Peek("s1", "doc", 8, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Returned)
	assert.False(t, res.HasMore)
}

func TestPeekUnknownVariable(t *testing.T) {
	k, _ := newTestKernel(t, Options{})

	_, err := k.Peek("s1", "missing", 0, LimitUnset)
	assert.True(t, IsKind(err, KindVariableNotFound))
}

func TestScanFindsMatches(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	content := "ok start\nERROR: disk full\nok middle\nerror: retry\nok end"
	_, err := k.Load("s1", "log", content, "log", nil)
	require.NoError(t, err)

	res, err := k.Scan("s1", "log", "error", 0, 0, true)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Matches)
	assert.False(t, res.Truncated)
	require.Len(t, res.Results, 2)
	assert.Equal(t, 1, res.Results[0].Line)
	assert.Equal(t, "ERROR: disk full", res.Results[0].Text)
	assert.Equal(t, 3, res.Results[1].Line)
}

func TestScanCaseSensitive(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	_, err := k.Load("s1", "log", "ERROR one\nerror two", "", nil)
	require.NoError(t, err)

	res, err := k.Scan("s1", "log", "error", 0, 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.Matches)
	assert.Equal(t, "error two", res.Results[0].Text)
}

func TestScanContextWindowClipped(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	_, err := k.Load("s1", "log", "first\nhit\nthird\nfourth", "", nil)
	require.NoError(t, err)

	res, err := k.Scan("s1", "log", "hit", 2, 0, true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Matches)
	// Window [1-2, 1+2] clipped to the entry bounds.
	assert.Equal(t, []string{"first", "hit", "third", "fourth"}, res.Results[0].Context)
}

func TestScanNoContextWhenZero(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	_, err := k.Load("s1", "log", "a\nhit\nb", "", nil)
	require.NoError(t, err)

	res, err := k.Scan("s1", "log", "hit", 0, 0, true)
	require.NoError(t, err)
	assert.Nil(t, res.Results[0].Context)
}

func TestScanTruncatedOnlyWhenMoreExist(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	loadNumberedLines(t, k, "s1", "doc", 20)

	t.Run("more matches beyond cap", func(t *testing.T) {
		res, err := k.Scan("s1", "doc", "line", 0, 5, true)
		require.NoError(t, err)
		assert.Equal(t, 5, res.Matches)
		assert.True(t, res.Truncated)
	})

	t.Run("matches exactly fill cap", func(t *testing.T) {
		// Exactly 2 lines contain "line 000[01]".
		res, err := k.Scan("s1", "doc", "line 000[01]$", 0, 2, true)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Matches)
		assert.False(t, res.Truncated)
	})
}

func TestScanCapsMaxMatches(t *testing.T) {
	k, _ := newTestKernel(t, Options{ScanMaxMatches: 10})
	loadNumberedLines(t, k, "s1", "doc", 50)

	res, err := k.Scan("s1", "doc", "line", 0, 100, true)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Matches)
	assert.True(t, res.Truncated)
}

func TestScanDefaultMaxMatches(t *testing.T) {
	k, _ := newTestKernel(t, Options{ScanDefaultMatches: 3})
	loadNumberedLines(t, k, "s1", "doc", 50)

	res, err := k.Scan("s1", "doc", "line", 0, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Matches)
}

func TestScanInvalidPattern(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	loadNumberedLines(t, k, "s1", "doc", 5)

	_, err := k.Scan("s1", "doc", "[unclosed", 0, 0, true)
	assert.True(t, IsKind(err, KindInvalidPattern))
}

func TestScanUnknownVariable(t *testing.T) {
	k, _ := newTestKernel(t, Options{})

	_, err := k.Scan("s1", "missing", "x", 0, 0, true)
	assert.True(t, IsKind(err, KindVariableNotFound))
}
