package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestFailureWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	failure := NewFailure(FailureTransport, "request failed", cause)

	if !errors.Is(failure, cause) {
		t.Error("failure must unwrap to its cause")
	}
	if failure.Error() == "" {
		t.Error("failure must render a message")
	}
}

func TestFailureOfFindsWrappedFailure(t *testing.T) {
	inner := NewFailure(FailurePermissionDenied, "mic access denied", nil)
	wrapped := fmt.Errorf("starting capture: %w", inner)

	f, ok := FailureOf(wrapped)
	if !ok {
		t.Fatal("expected to find the wrapped failure")
	}
	if f.Kind != FailurePermissionDenied {
		t.Errorf("unexpected kind %v", f.Kind)
	}
}

func TestKindOfDefaultsToTransport(t *testing.T) {
	if kind := KindOf(errors.New("plain error")); kind != FailureTransport {
		t.Errorf("plain errors must read as transport failures, got %v", kind)
	}
	if kind := KindOf(NewFailure(FailureRemote, "nope", nil)); kind != FailureRemote {
		t.Errorf("unexpected kind %v", kind)
	}
}

func TestSubmissionEmpty(t *testing.T) {
	if !(Submission{}).Empty() {
		t.Error("zero submission must be empty")
	}
	if !(Submission{Text: "   "}).Empty() {
		t.Error("whitespace-only text must be empty")
	}
	if (Submission{Text: "a dragon"}).Empty() {
		t.Error("text makes a submission non-empty")
	}
	if (Submission{Files: []NamedBlob{{Name: "x"}}}).Empty() {
		t.Error("files make a submission non-empty")
	}
}

func TestAudioPayloadEmpty(t *testing.T) {
	if !(AudioPayload{}).Empty() {
		t.Error("zero payload must be empty")
	}
	if (AudioPayload{Data: []byte{1}}).Empty() {
		t.Error("payload with data must be non-empty")
	}
}
