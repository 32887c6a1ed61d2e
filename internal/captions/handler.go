// Package captions serves the caption WebSocket: microphone audio in,
// reconciled and translated captions out.
package captions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/live-translator/internal/audio"
	"github.com/lexiqai/live-translator/internal/config"
	"github.com/lexiqai/live-translator/internal/observability"
	"github.com/lexiqai/live-translator/internal/pipeline"
	"github.com/lexiqai/live-translator/internal/resilience"
	"github.com/lexiqai/live-translator/internal/session"
	"github.com/lexiqai/live-translator/internal/stt"
	"github.com/lexiqai/live-translator/internal/transcript"
	"github.com/lexiqai/live-translator/internal/translation"
)

const maxMessageSize = 1 << 20

// ClientMessage is a JSON control message from the client
type ClientMessage struct {
	Event  string `json:"event"` // start, stop or snapshot
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`
}

// Engine is a recognition engine that also accepts audio
type Engine interface {
	session.Engine
	SendAudio(audioData []byte) error
	Close() error
}

// EngineFactory creates the engine for one connection
type EngineFactory func(logger zerolog.Logger) Engine

// Option configures a Handler
type Option func(*Handler)

// WithClock sets the clock used by controllers and reconcilers
func WithClock(clock clockwork.Clock) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

// Handler accepts caption connections. Each connection runs its own
// controller, reconciler and dispatcher.
type Handler struct {
	cfg        *config.Config
	newEngine  EngineFactory
	translator translation.Translator
	clock      clockwork.Clock
	logger     zerolog.Logger
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHandler creates a handler
func NewHandler(cfg *config.Config, newEngine EngineFactory, translator translation.Translator, opts ...Option) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		cfg:        cfg,
		newEngine:  newEngine,
		translator: translator,
		clock:      clockwork.NewRealClock(),
		logger:     observability.WithComponent(observability.GetLogger(), "captions"),
		upgrader: websocket.Upgrader{
			// Browser clients connect from arbitrary origins
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DeepgramFactory returns an EngineFactory backed by Deepgram. Every engine
// it creates shares cb.
func DeepgramFactory(cfg *config.Config, cb *resilience.CircuitBreaker) EngineFactory {
	return func(logger zerolog.Logger) Engine {
		return stt.NewDeepgramEngine(cfg, cb, logger)
	}
}

// Close ends every open connection
func (h *Handler) Close() {
	h.cancel()
}

// ServeHTTP upgrades the request and runs the connection until either side
// closes it
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		observability.RecordError("upgrade_failed", "captions")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	c := h.newConnection(conn)
	c.run(h.ctx)
}

// connection holds the per-client pipeline
type connection struct {
	conn       *websocket.Conn
	logger     zerolog.Logger
	metrics    *observability.Metrics
	presenter  *Presenter
	dispatcher *translation.Dispatcher
	engine     Engine
	source     *audio.StreamSource
	controller *session.Controller
}

func (h *Handler) newConnection(conn *websocket.Conn) *connection {
	sessionID := uuid.NewString()
	logger := observability.WithCorrelationID(observability.NewCorrelationID()).
		With().
		Str("session_id", sessionID).
		Logger()

	presenter := NewPresenter(conn, logger)
	dispatcher := translation.NewDispatcher(translation.ConfigFromApp(h.cfg), h.translator, presenter, logger)
	reconciler := transcript.NewReconciler(transcript.ConfigFromApp(h.cfg), h.clock)
	sink := pipeline.NewSink(reconciler, dispatcher, logger)

	engine := h.newEngine(logger)
	source := audio.NewStreamSource(audio.Encoding(h.cfg.AudioEncoding), h.cfg.AudioBufferSize)
	controller := session.NewController(session.ConfigFromApp(h.cfg), engine, source, sink, logger, session.WithClock(h.clock))

	return &connection{
		conn:       conn,
		logger:     logger,
		metrics:    observability.NewSessionMetrics(sessionID),
		presenter:  presenter,
		dispatcher: dispatcher,
		engine:     engine,
		source:     source,
		controller: controller,
	}
}

func (c *connection) run(parent context.Context) {
	c.metrics.RecordSessionStart()
	defer c.metrics.RecordSessionEnd()
	c.logger.Info().Msg("Caption connection established")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.controller.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return c.readLoop(gctx)
	})
	g.Go(func() error {
		// Unblock the reader on shutdown
		<-gctx.Done()
		c.conn.Close()
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn().Err(err).Msg("Caption connection ended with error")
	}

	if err := c.engine.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Error closing recognition engine")
	}
	c.source.Close()
	c.dispatcher.Close()

	c.logger.Info().Int("dropped_audio_bytes", c.source.Dropped()).Msg("Caption connection closed")
}

func (c *connection) readLoop(ctx context.Context) error {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return nil
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.handleAudio(data)
		case websocket.TextMessage:
			c.handleControl(ctx, data)
		}
	}
}

func (c *connection) handleAudio(data []byte) {
	if len(data) == 0 {
		return
	}
	c.metrics.RecordAudioBytes(len(data))
	c.source.Write(data)

	if err := c.engine.SendAudio(data); err != nil && !errors.Is(err, stt.ErrNotListening) {
		c.logger.Debug().Err(err).Msg("Failed to forward audio")
	}
}

func (c *connection) handleControl(ctx context.Context, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse control message")
		c.presenter.Send(ServerMessage{Type: TypeError, Message: "invalid control message"})
		return
	}

	switch msg.Event {
	case "start":
		c.dispatcher.SetLanguagePair(msg.Source, msg.Target)
		c.presenter.Clear()
		if err := c.controller.Start(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Failed to start session")
			observability.RecordError("start_failed", "captions")
			c.presenter.Send(ServerMessage{Type: TypeError, Message: err.Error()})
		} else {
			source, target := c.dispatcher.LanguagePair()
			c.logger.Info().Str("source", source).Str("target", target).Msg("Session started")
		}
		c.sendState()

	case "stop":
		if err := c.controller.Stop(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to stop session")
		}
		c.sendState()

	case "snapshot":
		c.presenter.SendSnapshot()

	default:
		c.logger.Warn().Str("event", msg.Event).Msg("Unknown control event")
		c.presenter.Send(ServerMessage{Type: TypeError, Message: "unknown event: " + msg.Event})
	}
}

func (c *connection) sendState() {
	c.presenter.Send(ServerMessage{Type: TypeState, State: c.controller.State().String()})
}
