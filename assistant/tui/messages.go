package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"meshbot/coordinator"
	"meshbot/session"
	"meshbot/types"
)

// chatMsg is one rendered line in the conversation log.
type chatMsg struct {
	Kind string // "user", "bot", "system"
	Text string
}

// transcriptMsg delivers recognized speech into the input box.
type transcriptMsg struct {
	Text string
}

// modelActivatedMsg announces a freshly attached model handle.
type modelActivatedMsg struct {
	Handle *session.Handle
}

// Progress lifecycle messages emitted by the coordinator's reporter.
type (
	progressStartMsg    struct{}
	progressTickMsg     struct{ Pct float64 }
	progressCompleteMsg struct{}
	progressHideMsg     struct{}
)

// submitDoneMsg signals that a Submit cycle returned.
type submitDoneMsg struct{}

// recordStartedMsg reports the outcome of a capture start.
type recordStartedMsg struct {
	Err error
}

// voiceDoneMsg signals the stop-and-transcribe cycle returned.
type voiceDoneMsg struct {
	Err error
}

// downloadDoneMsg reports where the active model was saved, or why not.
type downloadDoneMsg struct {
	Path string
	Err  error
}

// Bridge adapts the coordinator's synchronous callbacks into bubbletea
// messages. Coordinator work runs inside tea.Cmd goroutines, so callback
// sends only have to outlive the command that triggered them; a buffered
// channel keeps the reporter from ever blocking the pipeline.
type Bridge struct {
	ch chan tea.Msg
}

// NewBridge creates a bridge with room for a full progress run.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan tea.Msg, 64)}
}

// Events returns coordinator callbacks that forward into the bridge.
func (b *Bridge) Events() coordinator.Events {
	return coordinator.Events{
		OnMessage: func(kind, text string) {
			b.ch <- chatMsg{Kind: kind, Text: text}
		},
		OnModelActivated: func(h *session.Handle) {
			b.ch <- modelActivatedMsg{Handle: h}
		},
		OnTranscript: func(text string) {
			b.ch <- transcriptMsg{Text: text}
		},
	}
}

// CaptureError surfaces a mid-recording device failure as a chat line.
func (b *Bridge) CaptureError(err error) {
	detail := err.Error()
	if f, ok := types.FailureOf(err); ok {
		detail = f.Message
	}
	b.ch <- chatMsg{Kind: "system", Text: "🎤 Recording stopped: " + detail}
}

// The bridge doubles as the coordinator's progress reporter.

func (b *Bridge) Start()           { b.ch <- progressStartMsg{} }
func (b *Bridge) Tick(pct float64) { b.ch <- progressTickMsg{Pct: pct} }
func (b *Bridge) Complete()        { b.ch <- progressCompleteMsg{} }
func (b *Bridge) Hide()            { b.ch <- progressHideMsg{} }

// waitForEvent re-arms the bridge listener after every delivered message.
func waitForEvent(b *Bridge) tea.Cmd {
	return func() tea.Msg {
		return <-b.ch
	}
}
