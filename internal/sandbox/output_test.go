package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCappedBufferUnderLimit(t *testing.T) {
	buf := newCappedBuffer(32)

	n, err := buf.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())
	assert.False(t, buf.Truncated())
}

func TestCappedBufferTruncatesAtLimit(t *testing.T) {
	buf := newCappedBuffer(8)

	n, err := buf.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	// Write never reports failure to the script.
	assert.Equal(t, 16, n)
	assert.Equal(t, "01234567", buf.String())
	assert.True(t, buf.Truncated())
}

func TestCappedBufferSwallowsPastLimit(t *testing.T) {
	buf := newCappedBuffer(4)

	_, err := buf.Write([]byte("full"))
	require.NoError(t, err)
	n, err := buf.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "full", buf.String())
	assert.True(t, buf.Truncated())
}

func TestCappedBufferReset(t *testing.T) {
	buf := newCappedBuffer(4)

	_, _ = buf.Write([]byte("overflowing"))
	require.True(t, buf.Truncated())

	buf.Reset()
	assert.Empty(t, buf.String())
	assert.False(t, buf.Truncated())

	_, _ = buf.Write([]byte("ok"))
	assert.Equal(t, "ok", buf.String())
}

func TestQueryQueueIDs(t *testing.T) {
	var q queryQueue

	first := q.enqueue("prompt one", "")
	assert.Equal(t, "[DEFERRED:q_000] oracle query queued for caller", first)

	second := q.enqueue("prompt two", "smart")
	assert.Equal(t, "[DEFERRED:q_001] oracle query queued for caller", second)

	pending := q.snapshot()
	require.Len(t, pending, 2)
	assert.Equal(t, "q_000", pending[0].ID)
	assert.Equal(t, "q_001", pending[1].ID)
	assert.Equal(t, "smart", pending[1].Model)
	assert.Equal(t, "pending", pending[0].Status)
}

func TestQueryQueueSnapshotIsCopy(t *testing.T) {
	var q queryQueue
	q.enqueue("original", "")

	snap := q.snapshot()
	snap[0].Prompt = "mutated"

	assert.Equal(t, "original", q.snapshot()[0].Prompt)
}
