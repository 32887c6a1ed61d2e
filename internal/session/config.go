package session

import (
	"time"

	"github.com/lexiqai/live-translator/internal/config"
)

// Config holds the controller's timing policy
type Config struct {
	VolumeThreshold float64
	PollInterval    time.Duration

	// Forced finalization: interim text longer than LongTextChars uses the short silence
	FinalizeLongTextChars int
	FinalizeShortSilence  time.Duration
	FinalizeLongSilence   time.Duration

	RefreshSilence    time.Duration
	RefreshSessionAge time.Duration

	WatchdogSpeechFrames    int
	WatchdogActivityTimeout time.Duration

	RestartBackoff     time.Duration
	RestartMaxBackoff  time.Duration
	RestartMaxAttempts int
}

// DefaultConfig returns the default policy
func DefaultConfig() *Config {
	return &Config{
		VolumeThreshold:         0.15,
		PollInterval:            100 * time.Millisecond,
		FinalizeLongTextChars:   20,
		FinalizeShortSilence:    200 * time.Millisecond,
		FinalizeLongSilence:     400 * time.Millisecond,
		RefreshSilence:          1000 * time.Millisecond,
		RefreshSessionAge:       30 * time.Second,
		WatchdogSpeechFrames:    30,
		WatchdogActivityTimeout: 4 * time.Second,
		RestartBackoff:          10 * time.Millisecond,
		RestartMaxBackoff:       2 * time.Second,
		RestartMaxAttempts:      5,
	}
}

// ConfigFromApp maps service configuration onto the controller policy
func ConfigFromApp(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}

	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }

	c.VolumeThreshold = cfg.VADVolumeThreshold
	c.PollInterval = ms(cfg.VADPollInterval)
	c.FinalizeLongTextChars = cfg.FinalizeLongTextChars
	c.FinalizeShortSilence = ms(cfg.FinalizeShortSilence)
	c.FinalizeLongSilence = ms(cfg.FinalizeLongSilence)
	c.RefreshSilence = ms(cfg.RefreshSilence)
	c.RefreshSessionAge = ms(cfg.RefreshSessionAge)
	c.WatchdogSpeechFrames = cfg.WatchdogSpeechFrames
	c.WatchdogActivityTimeout = ms(cfg.WatchdogActivityTimeout)
	c.RestartBackoff = ms(cfg.RestartBackoff)
	if cfg.RestartMaxAttempts > 0 {
		c.RestartMaxAttempts = cfg.RestartMaxAttempts
	}
	return c
}
