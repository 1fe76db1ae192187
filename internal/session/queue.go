package session

import (
	"sync"

	"github.com/callscribe/server/internal/audio"
)

// chunkQueue decouples the capture loop from recognition. Pushes never
// block, so a slow model makes the queue grow instead of stalling capture.
// There is no drop policy; unbounded growth under sustained recognition
// slowness is a documented risk.
type chunkQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	items     []*audio.Chunk
	closed    bool
	cancelled bool
}

func newChunkQueue() *chunkQueue {
	q := &chunkQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a chunk. Chunks pushed after Close or Cancel are discarded.
func (q *chunkQueue) Push(c *audio.Chunk) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.cancelled {
		return
	}
	q.items = append(q.items, c)
	q.cond.Signal()
}

// Pop blocks until a chunk is available. It returns false once the queue is
// closed and drained, or immediately after Cancel (queued chunks are then
// abandoned, not processed).
func (q *chunkQueue) Pop() (*audio.Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed && !q.cancelled {
		q.cond.Wait()
	}
	if q.cancelled {
		return nil, false
	}
	if len(q.items) > 0 {
		c := q.items[0]
		q.items = q.items[1:]
		return c, true
	}
	return nil, false
}

// Close marks the producing side done; queued chunks remain consumable.
func (q *chunkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Cancel wakes any blocked consumer and abandons queued chunks.
func (q *chunkQueue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = true
	q.cond.Broadcast()
}

// Len returns the number of queued chunks.
func (q *chunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
