package stt

import (
	"context"
	"time"
)

// EventType identifies an engine event
type EventType int

const (
	EventStarted EventType = iota // Engine instance connected and listening
	EventResult                   // Transcript frame
	EventEnded                    // Engine instance finished; emitted exactly once per Start
	EventError                    // Provider reported an error; Ended may follow
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventResult:
		return "result"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// CodeNoSpeech is the error code for an utterance with no recognizable speech
const CodeNoSpeech = "no-speech"

// Event is a single notification from the recognition engine
type Event struct {
	Type EventType

	// Final is the text the engine declared stable in this frame
	Final string

	// Interim is the current tentative hypothesis
	Interim string

	// Code is the provider error code for EventError
	Code string
	Err  error

	At time.Time
}

// Engine is a continuous-mode recognition engine with interim results.
// Each Start opens a new engine instance; every instance emits exactly one
// EventEnded and nothing after it.
type Engine interface {
	// Start opens a new engine instance
	Start(ctx context.Context) error

	// Stop ends the instance gracefully, flushing the current hypothesis as final
	Stop() error

	// Abort ends the instance immediately, discarding the current hypothesis
	Abort() error

	// SendAudio forwards an audio chunk to the live instance
	SendAudio(audioData []byte) error

	// Events delivers engine events in arrival order
	Events() <-chan Event
}
