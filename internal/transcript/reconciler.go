// Package transcript turns overlapping engine hypotheses into stable,
// non-duplicated segments.
package transcript

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/lexiqai/live-translator/internal/config"
	"github.com/lexiqai/live-translator/internal/observability"
)

// EventKind identifies a reconciler output
type EventKind int

const (
	EventPreview EventKind = iota // Replace the on-screen interim line
	EventCommit                   // Irrevocably commit a segment
)

func (k EventKind) String() string {
	if k == EventCommit {
		return "commit"
	}
	return "preview"
}

// Origin records what caused a commit
type Origin string

const (
	OriginFinal       Origin = "final"
	OriginPunctuation Origin = "punctuation"
)

// Event is a single reconciler output
type Event struct {
	Kind   EventKind
	Text   string
	Origin Origin // set for commits
}

// Config holds preview throttling settings
type Config struct {
	PreviewThrottle  time.Duration // minimum spacing between previews
	PreviewMinGrowth int           // previews closer than the throttle need to grow by more than this many characters
}

// DefaultConfig returns the default throttle
func DefaultConfig() *Config {
	return &Config{
		PreviewThrottle:  600 * time.Millisecond,
		PreviewMinGrowth: 2,
	}
}

// ConfigFromApp maps service configuration onto throttle settings
func ConfigFromApp(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.PreviewThrottle = time.Duration(cfg.PreviewThrottle) * time.Millisecond
	c.PreviewMinGrowth = cfg.PreviewMinGrowth
	return c
}

// Reconciler tracks the text already committed in the current engine
// session. It is not safe for concurrent use; the session controller's
// goroutine owns it.
type Reconciler struct {
	config *Config
	clock  clockwork.Clock

	committed      string
	cutting        bool
	lastPreviewAt  time.Time
	lastPreviewLen int
}

// NewReconciler creates a reconciler. A nil clock uses the wall clock.
func NewReconciler(cfg *Config, clock clockwork.Clock) *Reconciler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reconciler{config: cfg, clock: clock}
}

// Committed returns the committed buffer of the current session
func (r *Reconciler) Committed() string {
	return r.committed
}

// OnFrame reconciles one engine frame. Final text is handled before interim
// text from the same frame.
func (r *Reconciler) OnFrame(final, interim string) []Event {
	var events []Event

	if final != "" {
		remaining := r.stripCommitted(final)
		r.committed = ""
		r.resetThrottle()

		if text := strings.TrimSpace(remaining); text != "" {
			events = append(events, r.commit(text, OriginFinal))
		}
	}

	if interim != "" && !r.cutting {
		if ev, ok := r.handleInterim(interim); ok {
			events = append(events, ev)
		}
	}

	return events
}

// Reset clears all session state and blanks the preview
func (r *Reconciler) Reset() []Event {
	r.committed = ""
	r.cutting = false
	r.resetThrottle()
	return []Event{{Kind: EventPreview, Text: ""}}
}

func (r *Reconciler) handleInterim(interim string) (Event, bool) {
	effective := r.stripCommitted(interim)
	if strings.TrimSpace(effective) == "" {
		return Event{}, false
	}

	if chunk, ok := firstChunk(effective); ok {
		r.cutting = true
		defer func() { r.cutting = false }()

		r.committed += chunk
		r.resetThrottle()

		text := strings.TrimSpace(chunk)
		if text == "" {
			return Event{}, false
		}
		return r.commit(text, OriginPunctuation), true
	}

	now := r.clock.Now()
	length := utf8.RuneCountInString(effective)
	elapsed := r.lastPreviewAt.IsZero() || now.Sub(r.lastPreviewAt) >= r.config.PreviewThrottle
	grown := length-r.lastPreviewLen > r.config.PreviewMinGrowth

	if !elapsed && !grown {
		observability.RecordPreview(false)
		return Event{}, false
	}

	r.lastPreviewAt = now
	r.lastPreviewLen = length
	observability.RecordPreview(true)
	return Event{Kind: EventPreview, Text: strings.TrimSpace(effective)}, true
}

func (r *Reconciler) commit(text string, origin Origin) Event {
	observability.RecordSegmentCommitted(string(origin))
	return Event{Kind: EventCommit, Text: text, Origin: origin}
}

func (r *Reconciler) resetThrottle() {
	r.lastPreviewAt = time.Time{}
	r.lastPreviewLen = 0
}

// stripCommitted removes the committed buffer from the front of text. When
// the engine rewrote earlier text, the committed length is trusted over its
// content: only runes past that length are new.
func (r *Reconciler) stripCommitted(text string) string {
	if r.committed == "" {
		return text
	}
	if strings.HasPrefix(text, r.committed) {
		return text[len(r.committed):]
	}

	runes := []rune(text)
	n := utf8.RuneCountInString(r.committed)
	if len(runes) <= n {
		return ""
	}
	return string(runes[n:])
}

// firstChunk returns the shortest prefix of text ending in a punctuation
// mark that has at least one character before it
func firstChunk(text string) (string, bool) {
	i := 0
	for pos, c := range text {
		if i > 0 && isBoundary(c) {
			return text[:pos+utf8.RuneLen(c)], true
		}
		i++
	}
	return "", false
}

func isBoundary(c rune) bool {
	switch c {
	case '，', '。', '？', '！', '；', ',', '!', '?', '.':
		return true
	}
	return false
}
