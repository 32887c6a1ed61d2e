package translation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/live-translator/internal/config"
	"github.com/lexiqai/live-translator/internal/observability"
)

// Config holds dispatcher settings
type Config struct {
	SourceLang  string
	TargetLang  string
	Timeout     time.Duration // per request
	Placeholder string        // shown when translation fails
}

// DefaultConfig returns the default dispatcher settings
func DefaultConfig() *Config {
	return &Config{
		SourceLang:  "zh",
		TargetLang:  "en",
		Timeout:     5 * time.Second,
		Placeholder: "[translation unavailable]",
	}
}

// ConfigFromApp maps service configuration onto dispatcher settings
func ConfigFromApp(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.SourceLang = cfg.TranslateSourceLang
	c.TargetLang = cfg.TranslateTargetLang
	c.Timeout = time.Duration(cfg.TranslateTimeout) * time.Millisecond
	c.Placeholder = cfg.TranslationPlaceholder
	return c
}

// job is one translation request for a committed segment
type job struct {
	id     SegmentID
	text   string
	handle Handle
	status JobStatus
}

// Dispatcher sends segments for translation and forwards results to the
// presenter. A committed segment's result is forwarded only while its job
// still owns the segment's pending slot.
type Dispatcher struct {
	config     *Config
	translator Translator
	presenter  Presenter
	logger     zerolog.Logger

	seq atomic.Uint64

	mu         sync.Mutex
	pending    map[SegmentID]*job
	sourceLang string
	targetLang string

	// commitMu serializes resolutions. It is held from the staleness check
	// through the presenter call; mu is never held while waiting on it.
	commitMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Requests run until Close.
func NewDispatcher(cfg *Config, translator Translator, presenter Presenter, logger zerolog.Logger) *Dispatcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		config:     cfg,
		translator: translator,
		presenter:  presenter,
		logger:     observability.WithComponent(logger, "translation"),
		pending:    make(map[SegmentID]*job),
		sourceLang: cfg.SourceLang,
		targetLang: cfg.TargetLang,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetLanguagePair changes the languages used by later requests
func (d *Dispatcher) SetLanguagePair(source, target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if source != "" {
		d.sourceLang = source
	}
	if target != "" {
		d.targetLang = target
	}
}

// LanguagePair returns the current source and target languages
func (d *Dispatcher) LanguagePair() (source, target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sourceLang, d.targetLang
}

// Dispatch hands a segment off for translation without waiting. Final
// segments get a fresh id, which is returned; interim segments return 0.
func (d *Dispatcher) Dispatch(seg Segment) SegmentID {
	if seg.Kind == KindFinal {
		return d.dispatchFinal(seg.Text)
	}
	d.dispatchPreview(seg.Text)
	return 0
}

func (d *Dispatcher) dispatchFinal(text string) SegmentID {
	id := SegmentID(d.seq.Add(1))
	handle := d.presenter.CommitPlaceholder(id, text)
	d.issue(&job{id: id, text: text, handle: handle})
	return id
}

// Revise re-translates a committed segment with corrected text. Any request
// still outstanding for the segment is superseded.
func (d *Dispatcher) Revise(id SegmentID, handle Handle, text string) {
	d.issue(&job{id: id, text: text, handle: handle})
}

func (d *Dispatcher) issue(j *job) {
	d.mu.Lock()
	if prev, ok := d.pending[j.id]; ok {
		prev.status = JobSuperseded
	}
	d.pending[j.id] = j
	source, target := d.sourceLang, d.targetLang
	d.mu.Unlock()

	d.wg.Add(1)
	go d.translateFinal(j, source, target)
}

func (d *Dispatcher) translateFinal(j *job, source, target string) {
	defer d.wg.Done()

	translation, err := d.translate(KindFinal, j.text, source, target)
	if err != nil {
		d.logger.Warn().Err(err).Uint64("segment_id", uint64(j.id)).Msg("Translation failed, using placeholder")
		translation = d.config.Placeholder
	}

	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	d.mu.Lock()
	if current, ok := d.pending[j.id]; !ok || current != j {
		j.status = JobSuperseded
		d.mu.Unlock()
		observability.RecordStaleTranslation()
		d.logger.Debug().Uint64("segment_id", uint64(j.id)).Msg("Discarding stale translation")
		return
	}
	delete(d.pending, j.id)
	j.status = JobResolved
	d.mu.Unlock()

	// The write may block on a slow client for up to its deadline; Dispatch
	// and Revise only need mu
	d.presenter.CommitResolved(j.handle, translation)
}

// dispatchPreview translates interim text without bookkeeping; whichever
// response arrives last is what stays on screen
func (d *Dispatcher) dispatchPreview(text string) {
	if strings.TrimSpace(text) == "" {
		d.presenter.Preview("", "")
		return
	}

	source, target := d.LanguagePair()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		translation, err := d.translate(KindInterim, text, source, target)
		if err != nil {
			d.logger.Debug().Err(err).Msg("Preview translation failed")
			translation = ""
		}
		if d.ctx.Err() != nil {
			return
		}
		d.presenter.Preview(text, translation)
	}()
}

func (d *Dispatcher) translate(kind Kind, text, source, target string) (string, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.Timeout)
	defer cancel()

	start := time.Now()
	translation, err := d.translator.Translate(ctx, text, source, target)
	observability.RecordTranslation(kind.String(), err == nil, time.Since(start))
	return translation, err
}

// Pending returns the number of committed segments awaiting translation
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Wait blocks until every outstanding request has completed
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels outstanding requests and waits for them to finish
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
