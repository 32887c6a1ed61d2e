package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/lexiqai/live-translator/internal/audio"
	"github.com/lexiqai/live-translator/internal/observability"
	"github.com/lexiqai/live-translator/internal/resilience"
	"github.com/lexiqai/live-translator/internal/stt"
)

var (
	// ErrControllerStopped is returned by Start and Stop once Run has returned
	ErrControllerStopped = errors.New("session controller stopped")
	// ErrAlreadyListening is returned by Start while a session is live
	ErrAlreadyListening = errors.New("session already listening")
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
)

type command struct {
	kind  commandKind
	reply chan error
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces the wall clock, for tests
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// Controller owns the recognition session lifecycle. All state is confined
// to the goroutine running Run; Start and Stop hand commands to it.
type Controller struct {
	config   *Config
	engine   Engine
	source   SampleSource
	sink     TranscriptSink
	detector *audio.SilenceDetector
	watchdog *Watchdog
	clock    clockwork.Clock
	logger   zerolog.Logger

	commands chan command
	done     chan struct{}
	state    atomic.Int32

	session        Session
	speech         audio.SpeechState
	interimLen     int
	sourceOpen     bool
	vadEnabled     bool
	restartReason  string
	restartAttempt int
	liveInstances  int // engine instances started whose Ended has not arrived
	ticker         clockwork.Ticker
	restartTimer   clockwork.Timer
}

// NewController creates a controller. source may be nil, in which case
// VAD-driven policies never run.
func NewController(cfg *Config, engine Engine, source SampleSource, sink TranscriptSink, logger zerolog.Logger, opts ...Option) *Controller {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	c := &Controller{
		config: cfg,
		engine: engine,
		source: source,
		sink:   sink,
		detector: audio.NewSilenceDetector(&audio.VADConfig{
			VolumeThreshold: cfg.VolumeThreshold,
			PollInterval:    cfg.PollInterval,
		}),
		watchdog: NewWatchdog(cfg.WatchdogSpeechFrames, cfg.WatchdogActivityTimeout),
		clock:    clockwork.NewRealClock(),
		logger:   observability.WithComponent(logger, "session"),
		commands: make(chan command),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start begins a session. Engine start failures are returned to the caller.
func (c *Controller) Start(ctx context.Context) error {
	return c.send(ctx, cmdStart)
}

// Stop ends the session gracefully and suppresses any pending restart
func (c *Controller) Stop(ctx context.Context) error {
	return c.send(ctx, cmdStop)
}

func (c *Controller) send(ctx context.Context, kind commandKind) error {
	reply := make(chan error, 1)
	select {
	case c.commands <- command{kind: kind, reply: reply}:
	case <-c.done:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the controller until ctx is done. Any live session is
// stopped gracefully on return.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	events := c.engine.Events()

	for {
		select {
		case <-ctx.Done():
			c.stop()
			return ctx.Err()

		case cmd := <-c.commands:
			switch cmd.kind {
			case cmdStart:
				cmd.reply <- c.start(ctx)
			case cmdStop:
				c.stop()
				cmd.reply <- nil
			}

		case ev, ok := <-events:
			if !ok {
				c.stop()
				return nil
			}
			c.handleEngineEvent(ev)

		case <-c.tickerChan():
			c.tick()

		case <-c.restartChan():
			c.restartTimer = nil
			c.restart(ctx)
		}
	}
}

func (c *Controller) tickerChan() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

func (c *Controller) restartChan() <-chan time.Time {
	if c.restartTimer == nil {
		return nil
	}
	return c.restartTimer.Chan()
}

func (c *Controller) setState(s State) {
	c.session.State = s
	c.state.Store(int32(s))
}

// start moves Idle to Listening
func (c *Controller) start(ctx context.Context) error {
	if c.session.State != StateIdle {
		return ErrAlreadyListening
	}

	c.openSource()

	now := c.clock.Now()
	c.session = Session{
		StartedAt:            now,
		LastSpeechAt:         now,
		LastEngineActivityAt: now,
	}
	c.speech = audio.SpeechState{LastSpeechAt: now}
	c.interimLen = 0
	c.restartAttempt = 0
	c.restartReason = ""

	// Anything left over from a previous session belongs to a dead engine instance
	c.sink.OnSessionReset()

	if err := c.engine.Start(ctx); err != nil {
		c.suspendSource()
		observability.RecordError("engine_start", "session")
		return fmt.Errorf("failed to start recognition engine: %w", err)
	}
	c.liveInstances++

	c.setState(StateListening)
	if c.vadEnabled {
		c.ticker = c.clock.NewTicker(c.config.PollInterval)
	}

	c.logger.Info().Bool("vad", c.vadEnabled).Msg("Session started")
	return nil
}

// openSource opens the sampling path once and resumes it on later starts.
// A failure disables VAD for this session but is not fatal.
func (c *Controller) openSource() {
	c.vadEnabled = false
	if c.source == nil {
		return
	}

	var err error
	if c.sourceOpen {
		err = c.source.Resume()
	} else {
		err = c.source.Open()
		c.sourceOpen = err == nil
	}

	if err != nil {
		c.logger.Warn().Err(err).Msg("Audio sampling unavailable, VAD disabled")
		observability.RecordError("source_unavailable", "session")
		return
	}
	c.vadEnabled = true
}

func (c *Controller) suspendSource() {
	if c.source == nil || !c.sourceOpen {
		return
	}
	if err := c.source.Suspend(); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to suspend audio sampling")
	}
}

// stop returns to Idle from any state
func (c *Controller) stop() {
	if c.session.State == StateIdle {
		return
	}
	c.setState(StateIdle)

	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}

	if err := c.engine.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to stop recognition engine")
	}
	c.suspendSource()
	c.restartAttempt = 0

	c.logger.Info().Msg("Session stopped")
}

func (c *Controller) handleEngineEvent(ev stt.Event) {
	// Any sign of life counts, including errors
	c.session.LastEngineActivityAt = c.clock.Now()

	switch ev.Type {
	case stt.EventStarted:
		c.logger.Debug().Msg("Engine instance started")

	case stt.EventResult:
		c.interimLen = utf8.RuneCountInString(ev.Interim)
		c.sink.OnFrame(ev.Final, ev.Interim)

	case stt.EventError:
		if ev.Code == stt.CodeNoSpeech {
			return
		}
		c.logger.Warn().Str("code", ev.Code).Err(ev.Err).Msg("Engine error")
		observability.RecordError("engine", "session")

	case stt.EventEnded:
		if c.liveInstances > 0 {
			c.liveInstances--
		}
		// Ended for an instance stopped earlier, e.g. one still flushing
		// when the next session started
		if c.liveInstances > 0 {
			c.logger.Debug().Int("live_instances", c.liveInstances).Msg("Ignoring Ended from a previous engine instance")
			return
		}
		if c.session.State == StateIdle {
			return
		}
		c.setState(StateRestarting)
		c.interimLen = 0
		if c.restartReason == "" {
			c.restartReason = reasonEnded
		}
		c.scheduleRestart(c.config.RestartBackoff)
	}
}

func (c *Controller) scheduleRestart(delay time.Duration) {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
	}
	c.restartTimer = c.clock.NewTimer(delay)
}

// restart starts the next engine instance, resetting downstream state first
func (c *Controller) restart(ctx context.Context) {
	if c.session.State != StateRestarting {
		return
	}

	if c.restartAttempt == 0 {
		c.sink.OnSessionReset()
	}

	if err := c.engine.Start(ctx); err != nil {
		c.restartAttempt++
		if c.restartAttempt >= c.config.RestartMaxAttempts {
			c.logger.Error().Err(err).Int("attempts", c.restartAttempt).Msg("Giving up restarting recognition engine")
			observability.RecordError("restart_exhausted", "session")
			c.stop()
			return
		}

		delay := resilience.CalculateBackoff(c.restartAttempt, c.config.RestartBackoff, c.config.RestartMaxBackoff, 2.0)
		c.logger.Warn().Err(err).Int("attempt", c.restartAttempt).Dur("retry_in", delay).Msg("Engine restart failed")
		c.scheduleRestart(delay)
		return
	}

	c.liveInstances++

	observability.RecordEngineRestart(c.restartReason)
	c.logger.Debug().Str("reason", c.restartReason).Msg("Engine restarted")

	now := c.clock.Now()
	c.session.StartedAt = now
	c.session.LastEngineActivityAt = now
	c.restartAttempt = 0
	c.restartReason = ""
	c.setState(StateListening)
}

// tick runs one VAD poll and applies the watchdog and stop policies
func (c *Controller) tick() {
	if c.session.State != StateListening || !c.vadEnabled {
		return
	}
	now := c.clock.Now()

	frame, ok := c.source.Sample()
	if ok {
		c.speech = c.detector.Sample(frame, c.speech, now)
	} else {
		c.speech = c.detector.Gap(c.speech, now)
	}
	c.session.LastSpeechAt = c.speech.LastSpeechAt
	c.session.ContinuousSpeechFrames = c.speech.ContinuousSpeechFrames

	// The engine cannot be expected to respond to audio it was never sent
	if ok && c.watchdog.Stalled(c.session.ContinuousSpeechFrames, c.session.LastEngineActivityAt, now) {
		c.logger.Warn().
			Int("speech_frames", c.session.ContinuousSpeechFrames).
			Dur("since_activity", now.Sub(c.session.LastEngineActivityAt)).
			Msg("Engine stalled during speech, aborting")
		observability.RecordWatchdogStall()

		c.speech.ContinuousSpeechFrames = 0
		c.session.ContinuousSpeechFrames = 0
		c.restartReason = reasonWatchdog
		if err := c.engine.Abort(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to abort recognition engine")
		}
		return
	}

	silence := c.speech.SilenceDuration

	if c.interimLen > 0 {
		threshold := c.config.FinalizeLongSilence
		if c.interimLen > c.config.FinalizeLongTextChars {
			threshold = c.config.FinalizeShortSilence
		}
		if silence <= threshold {
			return
		}

		c.logger.Debug().Int("interim_len", c.interimLen).Dur("silence", silence).Msg("Forcing finalization")
		observability.RecordForcedFinalization()

		c.interimLen = 0
		c.speech.LastSpeechAt = now
		c.speech.SilenceDuration = 0
		c.session.LastSpeechAt = now
		c.restartReason = reasonFinalize
		if err := c.engine.Stop(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to stop recognition engine")
		}
		return
	}

	if silence > c.config.RefreshSilence && now.Sub(c.session.StartedAt) > c.config.RefreshSessionAge {
		c.logger.Debug().Dur("age", now.Sub(c.session.StartedAt)).Msg("Refreshing long-lived session")
		observability.RecordProactiveRefresh()

		c.session.StartedAt = now
		c.restartReason = reasonRefresh
		if err := c.engine.Stop(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to stop recognition engine")
		}
	}
}
