package session

import "time"

// Watchdog detects an engine that has gone silent while the user keeps talking
type Watchdog struct {
	speechFrames    int
	activityTimeout time.Duration
}

// NewWatchdog creates a watchdog that fires after more than speechFrames
// consecutive speech polls with no engine activity for activityTimeout
func NewWatchdog(speechFrames int, activityTimeout time.Duration) *Watchdog {
	return &Watchdog{
		speechFrames:    speechFrames,
		activityTimeout: activityTimeout,
	}
}

// Stalled reports whether the engine should be hard-aborted
func (w *Watchdog) Stalled(continuousSpeechFrames int, lastEngineActivityAt, now time.Time) bool {
	return continuousSpeechFrames > w.speechFrames && now.Sub(lastEngineActivityAt) > w.activityTimeout
}
