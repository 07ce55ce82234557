package recording

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"meshbot/config"
	"meshbot/types"
)

// MicDevice captures mono WAV audio from the host microphone through an
// ffmpeg pipe.
type MicDevice struct {
	// Source is the capture input, e.g. "default"
	Source string
	// Format is the capture backend, e.g. "pulse" or "alsa"
	Format string
}

// NewMicDeviceFromEnv builds a device from MIC_SOURCE / MIC_FORMAT with
// pulse defaults.
func NewMicDeviceFromEnv() *MicDevice {
	source := os.Getenv("MIC_SOURCE")
	if source == "" {
		source = "default"
	}
	format := os.Getenv("MIC_FORMAT")
	if format == "" {
		format = "pulse"
	}
	return &MicDevice{Source: source, Format: format}
}

// Acquire probes the device with a minimal capture, then starts the real
// one. Probe failures distinguish a missing backend or device from
// declined access.
func (d *MicDevice) Acquire(ctx context.Context) (io.ReadCloser, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, types.NewFailure(types.FailureDeviceUnavailable,
			"audio capture backend (ffmpeg) not installed", err)
	}

	if err := d.probe(ctx); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	var stderr bytes.Buffer

	cmd := ffmpeg.Input(d.Source, ffmpeg.KwArgs{"f": d.Format}).
		Output("pipe:1", ffmpeg.KwArgs{
			"f":  "wav",
			"ac": 1,
			"ar": config.CaptureSampleRate,
		}).
		WithOutput(pw).
		WithErrorOutput(&stderr).
		Compile()

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, types.NewFailure(types.FailureDeviceUnavailable,
			"failed to start audio capture", err)
	}

	stream := &micStream{pr: pr, cmd: cmd}
	go func() {
		err := cmd.Wait()
		pw.CloseWithError(err)
	}()
	return stream, nil
}

// probe runs a 100ms throwaway capture so access problems surface at
// start time instead of as a silent empty recording. A backend that
// hangs counts as unavailable; the probe is killed at the bound.
func (d *MicDevice) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var stderr bytes.Buffer
	cmd := ffmpeg.Input(d.Source, ffmpeg.KwArgs{"f": d.Format, "t": "0.1"}).
		Output("pipe:1", ffmpeg.KwArgs{"f": "null"}).
		WithErrorOutput(&stderr).
		Compile()

	if err := cmd.Start(); err != nil {
		return types.NewFailure(types.FailureDeviceUnavailable,
			"failed to start capture probe", err)
	}
	err := waitBounded(probeCtx, cmd)
	if err == nil {
		return nil
	}

	detail := stderr.String()
	if strings.Contains(detail, "Permission denied") || strings.Contains(detail, "Access denied") {
		return types.NewFailure(types.FailurePermissionDenied,
			"microphone access was denied", err)
	}
	return types.NewFailure(types.FailureDeviceUnavailable,
		fmt.Sprintf("capture device %q unavailable", d.Source), err)
}

// waitBounded waits for cmd to exit within the context bound, killing
// the process when the bound is exceeded.
func waitBounded(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		return ctx.Err()
	}
}

// micStream adapts the ffmpeg pipe to the recorder's stream contract.
type micStream struct {
	pr   *io.PipeReader
	cmd  *exec.Cmd
	once sync.Once
}

func (s *micStream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close stops all capture tracks. Idempotent.
func (s *micStream) Close() error {
	s.once.Do(func() {
		if s.cmd.Process != nil {
			// Interrupt lets ffmpeg flush the WAV trailer; the Wait
			// goroutine closes the pipe writer when it exits.
			_ = s.cmd.Process.Signal(os.Interrupt)
		}
		go func() {
			time.Sleep(2 * time.Second)
			if s.cmd.ProcessState == nil && s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
		}()
	})
	return nil
}
