package captions

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/live-translator/internal/translation"
)

// historySize is the number of committed lines kept for snapshots
const historySize = 4

const writeTimeout = 5 * time.Second

// Outgoing message types
const (
	TypePreview  = "preview"
	TypeCommit   = "commit"
	TypeResolved = "resolved"
	TypeClear    = "clear"
	TypeSnapshot = "snapshot"
	TypeState    = "state"
	TypeError    = "error"
)

// Line is a committed caption line
type Line struct {
	Handle      uint64 `json:"handle"`
	SegmentID   uint64 `json:"segment_id"`
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
	Pending     bool   `json:"pending"`
}

// ServerMessage is sent to the client as JSON
type ServerMessage struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Translation string `json:"translation,omitempty"`
	Handle      uint64 `json:"handle,omitempty"`
	SegmentID   uint64 `json:"segment_id,omitempty"`
	Lines       []Line `json:"lines,omitempty"`
	State       string `json:"state,omitempty"`
	Message     string `json:"message,omitempty"`
}

// jsonWriter is the part of a websocket connection the presenter writes to
type jsonWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
}

// Presenter implements translation.Presenter by pushing caption updates to
// a websocket client. Writes are serialized; the connection allows only one
// concurrent writer.
type Presenter struct {
	mu      sync.Mutex
	conn    jsonWriter
	logger  zerolog.Logger
	next    uint64
	preview Line
	history []Line
	failed  bool
}

var _ translation.Presenter = (*Presenter)(nil)

// NewPresenter creates a presenter writing to conn
func NewPresenter(conn jsonWriter, logger zerolog.Logger) *Presenter {
	return &Presenter{conn: conn, logger: logger}
}

// Preview replaces the interim line
func (p *Presenter) Preview(text, translation string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.preview = Line{Text: text, Translation: translation}
	p.write(ServerMessage{Type: TypePreview, Text: text, Translation: translation})
}

// CommitPlaceholder appends a committed line whose translation is pending
func (p *Presenter) CommitPlaceholder(id translation.SegmentID, text string) translation.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next++
	line := Line{Handle: p.next, SegmentID: uint64(id), Text: text, Pending: true}
	p.history = append(p.history, line)
	if len(p.history) > historySize {
		p.history = p.history[len(p.history)-historySize:]
	}
	p.preview = Line{}

	p.write(ServerMessage{Type: TypeCommit, Text: text, Handle: line.Handle, SegmentID: line.SegmentID})
	return translation.Handle(line.Handle)
}

// CommitResolved fills in a committed line's translation. Lines that have
// scrolled out of the history are still reported to the client.
func (p *Presenter) CommitResolved(h translation.Handle, tr string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.history {
		if p.history[i].Handle == uint64(h) {
			p.history[i].Translation = tr
			p.history[i].Pending = false
			break
		}
	}
	p.write(ServerMessage{Type: TypeResolved, Handle: uint64(h), Translation: tr})
}

// Clear removes every line
func (p *Presenter) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.history = nil
	p.preview = Line{}
	p.write(ServerMessage{Type: TypeClear})
}

// Lines returns a copy of the committed history, oldest first
func (p *Presenter) Lines() []Line {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Line(nil), p.history...)
}

// SendSnapshot sends the history and current preview
func (p *Presenter) SendSnapshot() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.write(ServerMessage{
		Type:        TypeSnapshot,
		Lines:       append([]Line(nil), p.history...),
		Text:        p.preview.Text,
		Translation: p.preview.Translation,
	})
}

// Send writes a non-caption message such as a state change or an error
func (p *Presenter) Send(msg ServerMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(msg)
}

// write sends msg. After the first failed write the connection is treated
// as gone and later messages are dropped. Caller holds mu.
func (p *Presenter) write(msg ServerMessage) {
	if p.failed {
		return
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := p.conn.WriteJSON(msg); err != nil {
		p.failed = true
		p.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to write caption message")
	}
}
