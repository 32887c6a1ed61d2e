package translation

import (
	"context"
	"errors"
)

// ErrTransient marks a network or parse failure that may succeed on retry
var ErrTransient = errors.New("transient translation failure")

// Kind distinguishes ephemeral previews from committed segments
type Kind int

const (
	KindInterim Kind = iota
	KindFinal
)

func (k Kind) String() string {
	if k == KindFinal {
		return "final"
	}
	return "interim"
}

// SegmentID identifies a committed segment; unique for the process lifetime
type SegmentID uint64

// Segment is a unit of source text handed to the dispatcher
type Segment struct {
	ID   SegmentID
	Text string
	Kind Kind
}

// JobStatus tracks a committed segment's translation
type JobStatus int

const (
	JobPending JobStatus = iota
	JobResolved
	JobSuperseded
)

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobResolved:
		return "resolved"
	case JobSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Handle is a presenter-issued reference to a displayed line
type Handle uint64

// Presenter displays source text and translations. Implementations must be
// safe for concurrent use.
type Presenter interface {
	// Preview replaces the interim line
	Preview(text, translation string)

	// CommitPlaceholder shows a committed segment before its translation is known
	CommitPlaceholder(id SegmentID, text string) Handle

	// CommitResolved fills in the translation of a committed line
	CommitResolved(h Handle, translation string)

	// Clear removes everything on screen
	Clear()
}

// Translator translates text between two languages
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
