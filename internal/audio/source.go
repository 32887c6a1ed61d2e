package audio

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSourceUnavailable is returned by Open when audio capture cannot begin
	ErrSourceUnavailable = errors.New("audio source unavailable")
	// ErrSourceClosed is returned by lifecycle calls after Close
	ErrSourceClosed = errors.New("audio source closed")
)

// StreamSource turns pushed client audio into amplitude frames.
// Writers push raw chunks as they arrive; the session controller drains
// everything received since its previous poll with Sample.
type StreamSource struct {
	encoding Encoding
	buf      *RingBuffer

	mu        sync.Mutex
	opened    bool
	suspended bool
	closed    bool
	dropped   int
}

// NewStreamSource creates a source that retains at most bufferSize bytes
// between polls. For linear16 an odd size is rounded down to keep samples aligned.
func NewStreamSource(encoding Encoding, bufferSize int) *StreamSource {
	if encoding == EncodingLinear16 && bufferSize%2 != 0 {
		bufferSize--
	}
	if bufferSize <= 0 {
		bufferSize = 2
	}
	return &StreamSource{
		encoding: encoding,
		buf:      NewRingBuffer(bufferSize),
	}
}

// Open starts accepting audio
func (s *StreamSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if !s.encoding.Valid() {
		return fmt.Errorf("%w: unsupported encoding %q", ErrSourceUnavailable, s.encoding)
	}
	s.opened = true
	s.suspended = false
	s.buf.Clear()
	return nil
}

// Resume continues accepting audio after Suspend
func (s *StreamSource) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if !s.opened {
		return fmt.Errorf("%w: not opened", ErrSourceUnavailable)
	}
	s.suspended = false
	return nil
}

// Suspend stops accepting audio and discards anything buffered
func (s *StreamSource) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	s.suspended = true
	s.buf.Clear()
	return nil
}

// Close releases the source; further calls fail with ErrSourceClosed
func (s *StreamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.opened = false
	s.buf.Clear()
	return nil
}

// Write buffers a chunk of raw audio. Chunks are ignored unless the
// source is open and not suspended. Reports whether the chunk was kept.
func (s *StreamSource) Write(chunk []byte) bool {
	s.mu.Lock()
	active := s.opened && !s.suspended && !s.closed
	s.mu.Unlock()

	if !active || len(chunk) == 0 {
		return false
	}

	if dropped := s.buf.Write(chunk); dropped > 0 {
		s.mu.Lock()
		s.dropped += dropped
		s.mu.Unlock()
	}
	return true
}

// Sample returns the amplitude of everything written since the previous
// call. ok is false when no audio arrived in between.
func (s *StreamSource) Sample() (frame AmplitudeFrame, ok bool) {
	raw := s.buf.Drain()
	if len(raw) == 0 {
		return nil, false
	}

	samples, err := Decode(raw, s.encoding)
	if err != nil || len(samples) == 0 {
		return nil, false
	}
	return Normalize(samples), true
}

// Dropped returns how many bytes were overwritten before being sampled
func (s *StreamSource) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
