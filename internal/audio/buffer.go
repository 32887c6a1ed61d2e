package audio

import (
	"sync"
)

// RingBuffer is a thread-safe byte ring holding the most recent audio.
// When full, writes overwrite the oldest bytes instead of blocking the
// capture path.
type RingBuffer struct {
	buffer []byte
	size   int
	read   int
	count  int
	mu     sync.Mutex
}

// NewRingBuffer creates a new ring buffer with the specified size
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write appends data, discarding the oldest bytes on overflow.
// Returns the number of previously buffered bytes that were discarded.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	// Only the tail of an oversized write can survive
	if len(data) > rb.size {
		dropped := rb.count + len(data) - rb.size
		data = data[len(data)-rb.size:]
		rb.read, rb.count = 0, 0
		copy(rb.buffer, data)
		rb.count = len(data)
		return dropped
	}

	dropped := 0
	if overflow := rb.count + len(data) - rb.size; overflow > 0 {
		rb.read = (rb.read + overflow) % rb.size
		rb.count -= overflow
		dropped = overflow
	}

	write := (rb.read + rb.count) % rb.size
	n := copy(rb.buffer[write:], data)
	copy(rb.buffer, data[n:])
	rb.count += len(data)

	return dropped
}

// Drain returns and removes everything currently buffered
func (rb *RingBuffer) Drain() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == 0 {
		return nil
	}
	out := make([]byte, rb.count)
	rb.readLocked(out)
	return out
}

func (rb *RingBuffer) readLocked(data []byte) int {
	n := len(data)
	if n > rb.count {
		n = rb.count
	}
	first := copy(data[:n], rb.buffer[rb.read:])
	copy(data[first:n], rb.buffer)
	rb.read = (rb.read + n) % rb.size
	rb.count -= n
	return n
}

// Clear clears the buffer
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.count = 0
}
