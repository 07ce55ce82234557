package main

import (
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"meshbot/assistant/tui"
	"meshbot/client"
	"meshbot/coordinator"
	"meshbot/recording"
	"meshbot/session"
	"meshbot/viewer"
)

func main() {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	api := client.NewClient(client.GetEnvOrDefault("API_URL", "http://localhost:8080"))
	surface := viewer.NewSurface()
	sess := session.New(surface)
	recorder := recording.New(recording.NewMicDeviceFromEnv())
	bridge := tui.NewBridge()
	recorder.OnCaptureError(bridge.CaptureError)

	coord := coordinator.New(coordinator.Config{
		Client:   api,
		Session:  sess,
		Recorder: recorder,
		Progress: bridge,
		Events:   bridge.Events(),
	})

	model := tui.NewModel(tui.Deps{
		Coordinator: coord,
		Recorder:    recorder,
		Session:     sess,
		Downloader:  api,
		Bridge:      bridge,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("assistant error: %v", err)
	}
}
