package streamclient

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/compozy/statusstream/engine/streaming"
)

// Marker is the visual weight of a timeline entry.
type Marker string

const (
	MarkerMilestone Marker = "milestone"
	MarkerDot       Marker = "dot"
)

// ContentKind names an accumulated streaming text.
type ContentKind string

const (
	ContentAnswer   ContentKind = "answer"
	ContentThinking ContentKind = "thinking"
)

// TimelineEntry is one rendered step.
type TimelineEntry struct {
	EventID   string
	Type      streaming.EventType
	Source    string
	Message   string
	Marker    Marker
	Timestamp time.Time
}

// Completion describes the end of a conversation run as seen by the viewer.
type Completion struct {
	ConversationID string
	Type           streaming.EventType
	Answer         string
	Failed         bool
	Error          string
	// Reloaded is set when Answer came from the persisted conversation
	// rather than the event payload.
	Reloaded bool
}

// Notice is a user-visible condition such as exhausted reconnection.
type Notice struct {
	Err     error
	Message string
}

// Renderer receives every UI mutation. All calls come from the client's
// event loop, one at a time.
type Renderer interface {
	StateChanged(state State)
	TimelineAppended(entry TimelineEntry)
	ContentUpdated(kind ContentKind, content string)
	Completed(completion Completion)
	Notify(notice Notice)
}

// NopRenderer discards everything.
type NopRenderer struct{}

func (NopRenderer) StateChanged(State)                 {}
func (NopRenderer) TimelineAppended(TimelineEntry)     {}
func (NopRenderer) ContentUpdated(ContentKind, string) {}
func (NopRenderer) Completed(Completion)               {}
func (NopRenderer) Notify(Notice)                      {}

type terminalStyles struct {
	plain     bool
	milestone lipgloss.Style
	dot       lipgloss.Style
	source    lipgloss.Style
	thinking  lipgloss.Style
	state     lipgloss.Style
	success   lipgloss.Style
	failure   lipgloss.Style
}

func newTerminalStyles(plain bool) terminalStyles {
	if plain {
		return terminalStyles{plain: true}
	}
	return terminalStyles{
		milestone: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575")),
		dot:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		source:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		thinking:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244")),
		state:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		success:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575")),
		failure:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}

func (s terminalStyles) paint(style lipgloss.Style, text string) string {
	if s.plain {
		return text
	}
	return style.Render(text)
}

// TerminalRenderer writes the live view to a terminal. Accumulated content
// is re-rendered on every update by printing the suffix not yet written.
type TerminalRenderer struct {
	out          io.Writer
	styles       terminalStyles
	showThinking bool
	printed      map[ContentKind]int
	lastKind     ContentKind
}

// NewTerminalRenderer creates a renderer. plain disables styling for
// non-interactive output.
func NewTerminalRenderer(out io.Writer, plain, showThinking bool) *TerminalRenderer {
	return &TerminalRenderer{
		out:          out,
		styles:       newTerminalStyles(plain),
		showThinking: showThinking,
		printed:      make(map[ContentKind]int),
	}
}

func (r *TerminalRenderer) StateChanged(state State) {
	r.breakContent()
	fmt.Fprintln(r.out, r.styles.paint(r.styles.state, "["+state.String()+"]"))
}

func (r *TerminalRenderer) TimelineAppended(entry TimelineEntry) {
	r.breakContent()
	label := entry.Message
	if entry.Source != "" {
		label = r.styles.paint(r.styles.source, entry.Source) + " " + entry.Message
	}
	if entry.Marker == MarkerMilestone {
		fmt.Fprintln(r.out, r.styles.paint(r.styles.milestone, "◆ ")+label)
		return
	}
	fmt.Fprintln(r.out, r.styles.paint(r.styles.dot, "  · ")+label)
}

func (r *TerminalRenderer) ContentUpdated(kind ContentKind, content string) {
	if kind == ContentThinking && !r.showThinking {
		return
	}
	done := r.printed[kind]
	if done > len(content) {
		done = 0
	}
	delta := content[done:]
	if delta == "" {
		return
	}
	if r.lastKind != kind {
		r.breakContent()
		r.lastKind = kind
	}
	if kind == ContentThinking {
		delta = r.styles.paint(r.styles.thinking, delta)
	}
	fmt.Fprint(r.out, delta)
	r.printed[kind] = len(content)
}

func (r *TerminalRenderer) Completed(completion Completion) {
	r.breakContent()
	if completion.Failed {
		fmt.Fprintln(r.out, r.styles.paint(r.styles.failure, "✗ failed: "+completion.Error))
		return
	}
	fmt.Fprintln(r.out, r.styles.paint(r.styles.success, "✓ completed"))
	streamed := r.printed[ContentAnswer] > 0
	if completion.Answer != "" && (completion.Reloaded || !streamed) {
		fmt.Fprintln(r.out, strings.TrimRight(completion.Answer, "\n"))
	}
}

func (r *TerminalRenderer) Notify(notice Notice) {
	r.breakContent()
	msg := notice.Message
	if msg == "" && notice.Err != nil {
		msg = notice.Err.Error()
	}
	fmt.Fprintln(r.out, r.styles.paint(r.styles.failure, "! "+msg))
}

func (r *TerminalRenderer) breakContent() {
	if r.lastKind != "" {
		fmt.Fprintln(r.out)
		r.lastKind = ""
	}
}
