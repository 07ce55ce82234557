package tui

import (
	"fmt"
	"strings"

	"meshbot/recording"
)

const progressBarWidth = 30

// View renders the assistant screen.
func (m Model) View() string {
	if m.quitting {
		return "Bye! 👋\n"
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render("🧊 Meshbot: text to 3D assistant"))
	b.WriteString("\n\n")

	for _, msg := range m.messages {
		b.WriteString(renderMessage(msg))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.progressVisible {
		b.WriteString(ProgressStyle.Render(renderProgressBar(m.progressPct)))
		b.WriteString("\n\n")
	}

	if m.recorder.State() == recording.StateRecording {
		b.WriteString(ErrorStyle.Render("● REC"))
		b.WriteString("\n\n")
	}

	if m.infoVisible && m.activeHandle != nil {
		x, y, z := m.activeHandle.SizeVector()
		info := fmt.Sprintf("Variant: %s\nSource:  %s\nSize:    %.2f × %.2f × %.2f",
			m.activeHandle.Variant, m.activeHandle.SourceURL, x, y, z)
		b.WriteString(BoxStyle.Render(info))
		b.WriteString("\n\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(InfoStyle.Render(
		"enter: send • ctrl+r: record • tab: draft/refined • ctrl+d: download • ctrl+o: model info • esc: quit"))
	b.WriteString("\n")

	return b.String()
}

func renderMessage(msg chatMsg) string {
	switch msg.Kind {
	case "user":
		return UserStyle.Render("You: ") + msg.Text
	case "bot":
		return BotStyle.Render("Bot: ") + msg.Text
	default:
		return SystemStyle.Render(msg.Text)
	}
}

func renderProgressBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * progressBarWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
	return fmt.Sprintf("[%s] %3.0f%%", bar, pct)
}
