package audio

import (
	"sync"
)

// RingBuffer is a thread-safe ring buffer for outbound audio. Synthesized
// speech is written as it arrives and drained at the playout rate.
type RingBuffer struct {
	buffer []byte
	read   int
	write  int
	count  int
	mu     sync.Mutex
}

// NewRingBuffer creates a new ring buffer holding up to size bytes
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{buffer: make([]byte, size)}
}

// Write copies as much of data as fits and returns the number of bytes written
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(data) && rb.count < len(rb.buffer) {
		rb.buffer[rb.write] = data[written]
		rb.write = (rb.write + 1) % len(rb.buffer)
		rb.count++
		written++
	}
	return written
}

// Read fills data from the buffer and returns the number of bytes read
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for read < len(data) && rb.count > 0 {
		data[read] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % len(rb.buffer)
		rb.count--
		read++
	}
	return read
}

// Clear drops everything buffered. Used on barge-in.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
	rb.count = 0
}
