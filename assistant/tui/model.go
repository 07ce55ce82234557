package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"meshbot/coordinator"
	"meshbot/recording"
	"meshbot/session"
)

const maxVisibleMessages = 12

// Downloader saves a model addressed by URL to a local file.
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

// Model is the bubbletea model for the assistant.
type Model struct {
	coordinator *coordinator.Coordinator
	recorder    *recording.Recorder
	session     *session.Session
	downloader  Downloader
	bridge      *Bridge

	input    textinput.Model
	messages []chatMsg

	progressVisible bool
	progressPct     float64

	activeHandle *session.Handle
	infoVisible  bool

	width    int
	quitting bool
}

// Deps carries the wired collaborators into the TUI.
type Deps struct {
	Coordinator *coordinator.Coordinator
	Recorder    *recording.Recorder
	Session     *session.Session
	Downloader  Downloader
	Bridge      *Bridge
}

// NewModel creates the initial TUI state.
func NewModel(deps Deps) Model {
	ti := textinput.New()
	ti.Placeholder = "Describe a 3D model to create..."
	ti.CharLimit = 500
	ti.Width = 60
	ti.Focus()

	return Model{
		coordinator: deps.Coordinator,
		recorder:    deps.Recorder,
		session:     deps.Session,
		downloader:  deps.Downloader,
		bridge:      deps.Bridge,
		input:       ti,
		messages: []chatMsg{
			{Kind: "bot", Text: "Hi! Describe a 3D model and I'll build it for you."},
		},
	}
}

// Init starts the cursor blink and the bridge listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.bridge))
}

func (m *Model) addMessage(kind, text string) {
	m.messages = append(m.messages, chatMsg{Kind: kind, Text: text})
	if len(m.messages) > maxVisibleMessages {
		m.messages = m.messages[len(m.messages)-maxVisibleMessages:]
	}
}
