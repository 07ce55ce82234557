package recording

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"meshbot/config"
	"meshbot/types"
)

// State represents the capture state machine
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
)

// ErrBusy is returned when Start is called while a capture or
// transcription is already underway. Callers are rejected, not queued.
var ErrBusy = errors.New("recorder busy")

// ErrNotRecording is returned when Stop is called outside StateRecording.
var ErrNotRecording = errors.New("recorder is not recording")

// Device grants exclusive access to the host capture capability.
// Acquire errors carry a types.Failure categorized as device-unavailable
// or permission-denied.
type Device interface {
	Acquire(ctx context.Context) (io.ReadCloser, error)
}

// Recorder owns the single capture-device session for the process.
// Idle --Start--> Recording --Stop--> Transcribing --Finish--> Idle.
// A device error during Start leaves the state at Idle.
type Recorder struct {
	device      Device
	maxDuration time.Duration

	mu        sync.Mutex
	state     State
	stream    io.ReadCloser
	startedAt time.Time
	watchdog  *time.Timer
	closing   bool
	onError   func(error)

	bufMu sync.Mutex
	buf   bytes.Buffer

	done chan struct{}
}

// New creates an idle recorder bound to a capture device.
func New(device Device) *Recorder {
	return &Recorder{
		device:      device,
		maxDuration: config.MaxRecordingDuration,
		state:       StateIdle,
	}
}

// OnCaptureError registers fn to be invoked when the capture stream
// fails while recording. The recorder has already returned to idle by
// the time fn runs.
func (r *Recorder) OnCaptureError(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

// State returns the current machine state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start acquires the capture device and begins buffering audio. A second
// Start while recording or transcribing returns ErrBusy.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return ErrBusy
	}

	stream, err := r.device.Acquire(ctx)
	if err != nil {
		// No state change: a failed acquisition never leaves Idle.
		return err
	}

	r.state = StateRecording
	r.stream = stream
	r.startedAt = time.Now()
	r.done = make(chan struct{})
	r.closing = false
	r.bufMu.Lock()
	r.buf.Reset()
	r.bufMu.Unlock()

	// The device is released at the duration cap even if the user never
	// presses stop; buffered audio up to that point survives.
	r.watchdog = time.AfterFunc(r.maxDuration, func() {
		r.mu.Lock()
		r.closing = true
		r.mu.Unlock()
		stream.Close()
	})

	go r.drain(stream, r.done)
	return nil
}

// drain copies audio chunks off the stream until it closes or fails. A
// stream ending that was not requested by Stop or the watchdog is a
// device failure.
func (r *Recorder) drain(stream io.Reader, done chan struct{}) {
	defer close(done)
	chunk := make([]byte, 4096)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			r.bufMu.Lock()
			r.buf.Write(chunk[:n])
			r.bufMu.Unlock()
		}
		if err != nil {
			r.captureFailed(err)
			return
		}
	}
}

// captureFailed handles a stream that ended while still recording: the
// device is released, the machine returns to idle and the failure is
// reported. Ends requested by Stop or the watchdog are not failures.
func (r *Recorder) captureFailed(cause error) {
	r.mu.Lock()
	if r.closing || r.state != StateRecording {
		r.mu.Unlock()
		return
	}
	r.state = StateIdle
	stream := r.stream
	r.stream = nil
	if r.watchdog != nil {
		r.watchdog.Stop()
		r.watchdog = nil
	}
	onError := r.onError
	r.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	if onError != nil {
		onError(types.NewFailure(types.FailureDeviceUnavailable,
			"capture device failed during recording", cause))
	}
}

// Stop releases the capture device, finalizes the buffered chunks and
// moves to StateTranscribing. The device release does not depend on what
// the caller does with the payload afterward; it has already happened by
// the time Stop returns. Stopping immediately is fine: the payload may be
// empty.
func (r *Recorder) Stop() (types.AudioPayload, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return types.AudioPayload{}, ErrNotRecording
	}
	r.state = StateTranscribing
	stream := r.stream
	r.stream = nil
	done := r.done
	startedAt := r.startedAt
	if r.watchdog != nil {
		r.watchdog.Stop()
		r.watchdog = nil
	}
	r.mu.Unlock()

	stream.Close()
	<-done

	r.bufMu.Lock()
	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.buf.Reset()
	r.bufMu.Unlock()

	return types.AudioPayload{
		Format:   "wav",
		Data:     data,
		Duration: time.Since(startedAt),
	}, nil
}

// Finish returns the machine to Idle once the downstream transcription
// has settled, successfully or not. Calling it from Idle is a no-op.
func (r *Recorder) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateTranscribing {
		r.state = StateIdle
	}
}
