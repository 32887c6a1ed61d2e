package session

import (
	"context"
	"time"

	"github.com/lexiqai/live-translator/internal/audio"
	"github.com/lexiqai/live-translator/internal/stt"
)

// State is the controller lifecycle state
type State int32

const (
	StateIdle       State = iota // No session; initial and terminal
	StateListening               // Engine instance live, policies active
	StateRestarting              // Previous instance ended, next one not yet started
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// Session is the single live recognition session owned by a Controller
type Session struct {
	State                  State
	StartedAt              time.Time
	LastSpeechAt           time.Time
	LastEngineActivityAt   time.Time
	ContinuousSpeechFrames int
}

// Engine is the part of the recognition engine the controller drives
type Engine interface {
	Start(ctx context.Context) error
	Stop() error
	Abort() error
	Events() <-chan stt.Event
}

// SampleSource provides amplitude frames at the polling cadence
type SampleSource interface {
	Open() error
	Resume() error
	Suspend() error
	// Sample returns audio received since the previous poll; ok is false if none arrived
	Sample() (frame audio.AmplitudeFrame, ok bool)
}

// TranscriptSink receives engine frames and restart notifications in order
type TranscriptSink interface {
	OnFrame(final, interim string)
	// OnSessionReset is called before a new engine instance starts
	OnSessionReset()
}

// Restart causes, used as metric labels
const (
	reasonEnded    = "ended"
	reasonFinalize = "forced_finalize"
	reasonRefresh  = "proactive_refresh"
	reasonWatchdog = "watchdog"
)
