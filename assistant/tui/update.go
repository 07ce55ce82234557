package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"meshbot/recording"
	"meshbot/types"
)

// Update handles all TUI events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case chatMsg:
		m.addMessage(msg.Kind, msg.Text)
		return m, waitForEvent(m.bridge)

	case transcriptMsg:
		m.input.SetValue(msg.Text)
		m.input.CursorEnd()
		m.addMessage("system", "🎤 Transcript ready. Press enter to send.")
		return m, waitForEvent(m.bridge)

	case modelActivatedMsg:
		m.activeHandle = msg.Handle
		return m, waitForEvent(m.bridge)

	case progressStartMsg:
		m.progressVisible = true
		m.progressPct = 0
		return m, waitForEvent(m.bridge)

	case progressTickMsg:
		m.progressPct = msg.Pct
		return m, waitForEvent(m.bridge)

	case progressCompleteMsg:
		m.progressPct = 100
		return m, waitForEvent(m.bridge)

	case progressHideMsg:
		m.progressVisible = false
		return m, waitForEvent(m.bridge)

	case recordStartedMsg:
		if msg.Err != nil {
			m.addMessage("system", recordingErrorText(msg.Err))
		} else {
			m.addMessage("system", "🎤 Recording... press ctrl+r again to stop.")
		}
		return m, nil

	case voiceDoneMsg:
		if msg.Err != nil && !errors.Is(msg.Err, recording.ErrNotRecording) {
			m.addMessage("system", "❌ Could not finish the recording: "+msg.Err.Error())
		}
		return m, nil

	case downloadDoneMsg:
		if msg.Err != nil {
			m.addMessage("system", "❌ Download failed: "+msg.Err.Error())
		} else {
			m.addMessage("system", "💾 Saved model to "+msg.Path)
		}
		return m, nil

	case submitDoneMsg:
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		return m.handleSend()

	case "ctrl+r":
		return m.handleRecordToggle()

	case "tab":
		return m.handleVariantToggle()

	case "ctrl+d":
		return m.handleDownload()

	case "ctrl+o":
		m.infoVisible = !m.infoVisible
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSend() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.coordinator.Busy() {
		// A submission is already in flight; keep the draft text.
		return m, nil
	}

	m.addMessage("user", text)
	m.input.SetValue("")
	return m, submitCmd(m.coordinator, types.Submission{Text: text})
}

func (m Model) handleRecordToggle() (tea.Model, tea.Cmd) {
	switch m.recorder.State() {
	case recording.StateIdle:
		return m, startRecordingCmd(m.recorder)
	case recording.StateRecording:
		m.addMessage("system", "🎤 Transcribing...")
		return m, stopAndTranscribeCmd(m.recorder, m.coordinator)
	default:
		// Transcription still settling; ignore the toggle.
		return m, nil
	}
}

func (m Model) handleVariantToggle() (tea.Model, tea.Cmd) {
	active, ok := m.session.ActiveVariant()
	if !ok {
		m.addMessage("system", "No model loaded yet.")
		return m, nil
	}

	target := types.VariantRefined
	if active == types.VariantRefined {
		target = types.VariantDraft
	}

	handle, err := m.session.SwitchTo(target)
	if err != nil {
		detail := err.Error()
		if f, ok := types.FailureOf(err); ok {
			detail = f.Message
		}
		m.addMessage("system", "⚠️  "+detail)
		return m, nil
	}

	m.activeHandle = handle
	m.addMessage("system", fmt.Sprintf("🔄 Showing the %s model.", target))
	return m, nil
}

func (m Model) handleDownload() (tea.Model, tea.Cmd) {
	url, ok := m.session.CurrentURL()
	if !ok {
		m.addMessage("system", "No model to download yet.")
		return m, nil
	}
	return m, downloadCmd(m.downloader, url)
}

// recordingErrorText maps capture failures onto the phrasing shown in
// the chat log.
func recordingErrorText(err error) string {
	if errors.Is(err, recording.ErrBusy) {
		return "🎤 Already recording."
	}
	switch types.KindOf(err) {
	case types.FailurePermissionDenied:
		return "🎤 Microphone access was denied. Check your audio permissions."
	case types.FailureDeviceUnavailable:
		return "🎤 No microphone available. Is a capture device connected?"
	default:
		return "🎤 Could not start recording: " + err.Error()
	}
}
