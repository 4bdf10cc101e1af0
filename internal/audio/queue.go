package audio

import "sync"

// DefaultQueueCapacity bounds the number of captured chunks waiting for the
// send pacer before the oldest is discarded.
const DefaultQueueCapacity = 6

// Chunk is one fixed-length block of normalized samples captured from the
// microphone, together with its RMS loudness.
type Chunk struct {
	Samples []float32
	RMS     float64
}

// Queue is a bounded FIFO of captured audio chunks that decouples irregular
// capture timing from the fixed network send cadence. When the queue is full,
// pushing a new chunk drops the oldest unsent one.
type Queue struct {
	mu       sync.Mutex
	chunks   []Chunk
	capacity int
	dropped  uint64
}

// NewQueue creates a bounded chunk queue. A non-positive capacity falls back
// to DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	return &Queue{
		chunks:   make([]Chunk, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a chunk, evicting the oldest one first if the queue is at
// capacity. It reports whether an eviction happened.
func (q *Queue) Push(c Chunk) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := false
	if len(q.chunks) >= q.capacity {
		copy(q.chunks, q.chunks[1:])
		q.chunks = q.chunks[:len(q.chunks)-1]
		q.dropped++
		evicted = true
	}

	q.chunks = append(q.chunks, c)
	return evicted
}

// Pop removes and returns the oldest chunk. The second return value is false
// when the queue is empty.
func (q *Queue) Pop() (Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.chunks) == 0 {
		return Chunk{}, false
	}

	c := q.chunks[0]
	copy(q.chunks, q.chunks[1:])
	q.chunks = q.chunks[:len(q.chunks)-1]
	return c, true
}

// Len returns the number of buffered chunks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// Capacity returns the maximum number of buffered chunks.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Dropped returns the total number of chunks evicted since creation.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear discards all buffered chunks without counting them as dropped.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = q.chunks[:0]
}
