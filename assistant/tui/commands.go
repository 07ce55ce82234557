package tui

import (
	"context"
	"path"

	tea "github.com/charmbracelet/bubbletea"

	"meshbot/coordinator"
	"meshbot/recording"
	"meshbot/types"
)

// submitCmd runs one full submission cycle off the UI goroutine. All
// user-visible output arrives through the bridge; the returned message
// only marks the cycle as finished.
func submitCmd(c *coordinator.Coordinator, sub types.Submission) tea.Cmd {
	return func() tea.Msg {
		c.Submit(context.Background(), sub)
		return submitDoneMsg{}
	}
}

// startRecordingCmd acquires the microphone and begins capture.
func startRecordingCmd(r *recording.Recorder) tea.Cmd {
	return func() tea.Msg {
		return recordStartedMsg{Err: r.Start(context.Background())}
	}
}

// stopAndTranscribeCmd finalizes the capture and feeds it through the
// transcription pipeline. The coordinator settles the recorder back to
// idle whatever happens downstream.
func stopAndTranscribeCmd(r *recording.Recorder, c *coordinator.Coordinator) tea.Cmd {
	return func() tea.Msg {
		audio, err := r.Stop()
		if err != nil {
			return voiceDoneMsg{Err: err}
		}
		c.Transcribe(context.Background(), audio)
		return voiceDoneMsg{}
	}
}

// downloadCmd saves the model at url into the working directory under
// its conventional filename.
func downloadCmd(dl Downloader, url string) tea.Cmd {
	return func() tea.Msg {
		dest := path.Base(url)
		if err := dl.Download(context.Background(), url, dest); err != nil {
			return downloadDoneMsg{Err: err}
		}
		return downloadDoneMsg{Path: dest}
	}
}
