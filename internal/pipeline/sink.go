// Package pipeline connects engine frames to the reconciler and the
// translation dispatcher.
package pipeline

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/live-translator/internal/observability"
	"github.com/lexiqai/live-translator/internal/session"
	"github.com/lexiqai/live-translator/internal/transcript"
	"github.com/lexiqai/live-translator/internal/translation"
)

// Dispatcher is the part of translation.Dispatcher the sink uses
type Dispatcher interface {
	Dispatch(seg translation.Segment) translation.SegmentID
}

// Sink implements session.TranscriptSink. Every reconciler event is handed
// to the dispatcher in the order it was produced.
type Sink struct {
	mu         sync.Mutex
	reconciler *transcript.Reconciler
	dispatcher Dispatcher
	logger     zerolog.Logger
}

var _ session.TranscriptSink = (*Sink)(nil)

// NewSink creates a sink
func NewSink(reconciler *transcript.Reconciler, dispatcher Dispatcher, logger zerolog.Logger) *Sink {
	return &Sink{
		reconciler: reconciler,
		dispatcher: dispatcher,
		logger:     observability.WithComponent(logger, "pipeline"),
	}
}

// OnFrame reconciles a frame and dispatches the resulting events
func (s *Sink) OnFrame(final, interim string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forward(s.reconciler.OnFrame(final, interim))
}

// OnSessionReset clears the reconciler before a new engine instance
func (s *Sink) OnSessionReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forward(s.reconciler.Reset())
}

func (s *Sink) forward(events []transcript.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case transcript.EventCommit:
			id := s.dispatcher.Dispatch(translation.Segment{Text: ev.Text, Kind: translation.KindFinal})
			s.logger.Debug().
				Uint64("segment_id", uint64(id)).
				Str("origin", string(ev.Origin)).
				Int("chars", len([]rune(ev.Text))).
				Msg("Segment committed")
		case transcript.EventPreview:
			s.dispatcher.Dispatch(translation.Segment{Text: ev.Text, Kind: translation.KindInterim})
		}
	}
}
