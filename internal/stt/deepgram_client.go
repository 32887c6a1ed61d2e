package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/live-translator/internal/config"
	"github.com/lexiqai/live-translator/internal/observability"
	"github.com/lexiqai/live-translator/internal/resilience"
)

var (
	// ErrEngineClosed is returned once Close has been called
	ErrEngineClosed = errors.New("recognition engine closed")
	// ErrNotListening is returned when no engine instance is live
	ErrNotListening = errors.New("recognition engine not listening")
)

const eventBufferSize = 256

// messageCallbackHandler implements the LiveMessageCallback interface for
// one engine instance. It embeds the default handler and overrides only the
// methods we need to customize.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	instance *deepgramInstance
}

// Open reports the instance as started
func (m *messageCallbackHandler) Open(or *msginterfaces.OpenResponse) error {
	m.instance.emit(Event{Type: EventStarted})
	return nil
}

// Message forwards transcription results as frames
func (m *messageCallbackHandler) Message(mr *msginterfaces.MessageResponse) error {
	m.instance.handleMessage(mr)
	return nil
}

// Close ends the instance when the provider closes the stream
func (m *messageCallbackHandler) Close(cr *msginterfaces.CloseResponse) error {
	m.instance.end()
	return nil
}

// Error surfaces provider errors
func (m *messageCallbackHandler) Error(er *msginterfaces.ErrorResponse) error {
	m.instance.handleError(er)
	return nil
}

// streamClient is the part of the Deepgram websocket client an instance drives
type streamClient interface {
	Connect() bool
	Write(p []byte) (int, error)
	Finalize() error
	Finish()
	Stop()
}

// dialFunc creates an unconnected streaming client that reports to callback
type dialFunc func(ctx context.Context, callback msginterfaces.LiveMessageCallback) (streamClient, error)

// deepgramInstance is one streaming connection, from Start to Ended
type deepgramInstance struct {
	engine *DeepgramEngine
	client streamClient
	logger zerolog.Logger

	ended    atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
}

// DeepgramEngine implements Engine using Deepgram's streaming API.
// The events channel is shared by every instance the engine starts.
type DeepgramEngine struct {
	config         *config.Config
	logger         zerolog.Logger
	events         chan Event
	circuitBreaker *resilience.CircuitBreaker
	dial           dialFunc
	now            func() time.Time

	mu      sync.Mutex
	current *deepgramInstance
	closed  bool
	done    chan struct{}
}

// NewCircuitBreaker creates the breaker guarding Deepgram connections.
// Engines sharing one breaker share the provider's health.
func NewCircuitBreaker(cfg *config.Config) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(
		"deepgram",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
}

// NewDeepgramEngine creates a new Deepgram recognition engine. A nil
// breaker gets a private one.
func NewDeepgramEngine(cfg *config.Config, circuitBreaker *resilience.CircuitBreaker, logger zerolog.Logger) *DeepgramEngine {
	if circuitBreaker == nil {
		circuitBreaker = NewCircuitBreaker(cfg)
	}

	d := &DeepgramEngine{
		config:         cfg,
		logger:         observability.WithComponent(logger, "deepgram"),
		events:         make(chan Event, eventBufferSize),
		circuitBreaker: circuitBreaker,
		now:            time.Now,
		done:           make(chan struct{}),
	}
	d.dial = d.dialDeepgram
	return d
}

// ReadinessCheck reports whether engines guarded by cb may start instances
func ReadinessCheck(cb *resilience.CircuitBreaker) func(ctx context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		if cb.GetState() == resilience.StateOpen {
			return false, fmt.Errorf("deepgram: %w", resilience.ErrCircuitOpen)
		}
		return true, nil
	}
}

// transcriptionOptions builds the Deepgram options for continuous mode with interim results
func (d *DeepgramEngine) transcriptionOptions() *interfaces.LiveTranscriptionOptions {
	return &interfaces.LiveTranscriptionOptions{
		Model:          d.config.DeepgramModel,
		Language:       d.config.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       d.config.AudioEncoding,
		Channels:       1,
		SampleRate:     d.config.AudioSampleRate,
	}
}

// dialDeepgram creates a Deepgram live client without connecting it
func (d *DeepgramEngine) dialDeepgram(ctx context.Context, callback msginterfaces.LiveMessageCallback) (streamClient, error) {
	client, err := listenClient.NewWSUsingCallback(
		ctx,
		d.config.DeepgramAPIKey,
		&interfaces.ClientOptions{},
		d.transcriptionOptions(),
		callback,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	if client == nil {
		return nil, errors.New("failed to create Deepgram client: options rejected")
	}
	return client, nil
}

// Start opens a new streaming connection. A previous instance that is
// still live, or still flushing after Stop, is aborted first; its Ended is
// delivered before Start returns.
func (d *DeepgramEngine) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrEngineClosed
	}
	prev := d.current
	d.current = nil
	d.mu.Unlock()

	if prev != nil {
		prev.abort()
	}

	inst := &deepgramInstance{engine: d, logger: d.logger}

	err := d.circuitBreaker.Call(func() error {
		callback := &messageCallbackHandler{
			DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
			instance:               inst,
		}

		client, err := d.dial(ctx, callback)
		if err != nil {
			return err
		}

		inst.client = client
		if !client.Connect() {
			client.Stop()
			return resilience.NewRetryableError(fmt.Errorf("failed to connect to Deepgram"))
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(d.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
		observability.RecordError("start_failed", "deepgram")
		// Nothing was started, so no Ended is owed for this instance
		inst.ended.Store(true)
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		inst.abort()
		return ErrEngineClosed
	}
	d.current = inst
	d.mu.Unlock()

	d.logger.Info().
		Str("model", d.config.DeepgramModel).
		Str("language", d.config.DeepgramLanguage).
		Msg("Deepgram streaming instance started")
	return nil
}

// SendAudio sends an audio chunk to the live instance
func (d *DeepgramEngine) SendAudio(audioData []byte) error {
	inst := d.live()
	if inst == nil || inst.stopping.Load() {
		return ErrNotListening
	}

	if _, err := inst.client.Write(audioData); err != nil {
		observability.RecordError("send_audio", "deepgram")
		return fmt.Errorf("failed to send audio to Deepgram: %w", err)
	}
	return nil
}

// Stop finalizes the current hypothesis and closes the instance after the
// flush grace period. It returns without waiting for the flush.
func (d *DeepgramEngine) Stop() error {
	inst := d.live()
	if inst == nil {
		return nil
	}
	grace := time.Duration(d.config.DeepgramFlushGrace) * time.Millisecond
	inst.stop(grace)
	return nil
}

// Abort closes the current instance immediately
func (d *DeepgramEngine) Abort() error {
	d.mu.Lock()
	inst := d.current
	d.current = nil
	d.mu.Unlock()

	if inst != nil {
		inst.abort()
	}
	return nil
}

// Events returns the channel that receives engine events
func (d *DeepgramEngine) Events() <-chan Event {
	return d.events
}

// Close aborts any live instance and stops delivering events
func (d *DeepgramEngine) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	inst := d.current
	d.current = nil
	close(d.done)
	d.mu.Unlock()

	if inst != nil {
		inst.abort()
	}
	return nil
}

// Ping reports whether the engine can currently start instances
func (d *DeepgramEngine) Ping(ctx context.Context) (bool, error) {
	return ReadinessCheck(d.circuitBreaker)(ctx)
}

// live returns the current instance unless it has already ended
func (d *DeepgramEngine) live() *deepgramInstance {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.current.ended.Load() {
		return nil
	}
	return d.current
}

// release forgets inst if it is still the current instance
func (d *DeepgramEngine) release(inst *deepgramInstance) {
	d.mu.Lock()
	if d.current == inst {
		d.current = nil
	}
	d.mu.Unlock()
}

// deliver sends ev unless the engine has been closed
func (d *DeepgramEngine) deliver(ev Event) {
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

// emit delivers ev for this instance; nothing is delivered after Ended
func (i *deepgramInstance) emit(ev Event) {
	if i.ended.Load() {
		return
	}
	i.engine.deliver(ev)
}

// end emits Ended exactly once
func (i *deepgramInstance) end() {
	if !i.ended.CompareAndSwap(false, true) {
		return
	}
	i.engine.release(i)
	i.engine.deliver(Event{Type: EventEnded})
}

func (i *deepgramInstance) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}

	transcript := msg.Channel.Alternatives[0].Transcript
	ev := Event{Type: EventResult}
	if msg.IsFinal {
		ev.Final = transcript
	} else {
		ev.Interim = transcript
	}

	i.logger.Debug().
		Bool("is_final", msg.IsFinal).
		Str("transcript", transcript).
		Msg("Deepgram result")
	i.emit(ev)
}

func (i *deepgramInstance) handleError(er *msginterfaces.ErrorResponse) {
	if er == nil {
		return
	}
	i.logger.Warn().Str("code", er.ErrCode).Msgf("Deepgram error: %+v", er)

	i.engine.circuitBreaker.RecordResult(false)
	observability.UpdateCircuitBreakerState("deepgram", int(i.engine.circuitBreaker.GetState()))
	observability.IncrementCircuitBreakerFailures("deepgram")

	i.emit(Event{
		Type: EventError,
		Code: er.ErrCode,
		Err:  fmt.Errorf("deepgram error %s", er.ErrCode),
	})
}

// stop flushes the hypothesis, waits grace and closes the connection
func (i *deepgramInstance) stop(grace time.Duration) {
	i.stopOnce.Do(func() {
		i.stopping.Store(true)
		go func() {
			if err := i.client.Finalize(); err != nil {
				i.logger.Warn().Err(err).Msg("Deepgram finalize failed")
			}
			time.Sleep(grace)
			i.client.Finish()
			i.end()
		}()
	})
}

// abort closes the connection without waiting for pending results
func (i *deepgramInstance) abort() {
	i.stopping.Store(true)
	if i.ended.CompareAndSwap(false, true) {
		i.engine.release(i)
		if i.client != nil {
			i.client.Stop()
		}
		i.engine.deliver(Event{Type: EventEnded})
	}
}
