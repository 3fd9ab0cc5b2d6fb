package sandbox

import (
	"fmt"
	"sync"
)

// PendingQuery is one deferred oracle request. The kernel never resolves
// queries itself: entries stay pending until the caller feeds an answer
// back as a variable a later script reads.
type PendingQuery struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
	Status string `json:"status"`
}

// queryQueue allocates q_NNN ids from a persistent counter and keeps the
// pending list for the life of the session. Ids are strictly increasing
// and never reused, even across script calls.
type queryQueue struct {
	mu      sync.Mutex
	next    int
	pending []PendingQuery
}

// enqueue appends a pending query and returns the placeholder marker the
// script continues with in place of a real answer.
func (q *queryQueue) enqueue(prompt, model string) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := fmt.Sprintf("q_%03d", q.next)
	q.next++
	q.pending = append(q.pending, PendingQuery{
		ID:     id,
		Prompt: prompt,
		Model:  model,
		Status: "pending",
	})
	return fmt.Sprintf("[DEFERRED:%s] oracle query queued for caller", id)
}

// snapshot returns a copy of the full pending list.
func (q *queryQueue) snapshot() []PendingQuery {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]PendingQuery, len(q.pending))
	copy(out, q.pending)
	return out
}
