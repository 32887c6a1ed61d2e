package audio

import "time"

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	VolumeThreshold float64       // RMS of normalized amplitude above which a frame counts as speech
	PollInterval    time.Duration // How often the controller samples the source
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		VolumeThreshold: 0.15,
		PollInterval:    100 * time.Millisecond,
	}
}

// SpeechState is the VAD view of the current utterance
type SpeechState struct {
	IsSpeaking             bool
	LastSpeechAt           time.Time
	SilenceDuration        time.Duration
	ContinuousSpeechFrames int
}

// SilenceDetector classifies amplitude frames as speech or silence.
// It holds no state of its own; callers thread SpeechState through Sample.
type SilenceDetector struct {
	config *VADConfig
}

// NewSilenceDetector creates a new detector
func NewSilenceDetector(config *VADConfig) *SilenceDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &SilenceDetector{config: config}
}

// Sample folds one frame into prev and returns the new state.
// Speech refreshes LastSpeechAt and extends the continuous speech run.
// Silence ends the run and grows SilenceDuration.
func (d *SilenceDetector) Sample(frame AmplitudeFrame, prev SpeechState, now time.Time) SpeechState {
	next := prev

	if frame.RMS() > d.config.VolumeThreshold {
		next.IsSpeaking = true
		next.LastSpeechAt = now
		next.SilenceDuration = 0
		next.ContinuousSpeechFrames = prev.ContinuousSpeechFrames + 1
		return next
	}

	next.IsSpeaking = false
	next.ContinuousSpeechFrames = 0
	if prev.LastSpeechAt.IsZero() {
		next.SilenceDuration = 0
	} else if silence := now.Sub(prev.LastSpeechAt); silence > 0 {
		next.SilenceDuration = silence
	} else {
		next.SilenceDuration = 0
	}
	return next
}

// Gap accounts for a poll in which no audio arrived. The speech run is kept,
// since a late chunk is not evidence of silence, but SilenceDuration keeps
// growing from LastSpeechAt.
func (d *SilenceDetector) Gap(prev SpeechState, now time.Time) SpeechState {
	next := prev
	if !prev.LastSpeechAt.IsZero() && now.After(prev.LastSpeechAt) {
		next.SilenceDuration = now.Sub(prev.LastSpeechAt)
	}
	return next
}
