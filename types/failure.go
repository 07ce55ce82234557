package types

import "errors"

// FailureKind categorizes user-reportable failures. Every failure maps to
// a stable state: nothing in this taxonomy is fatal to the process.
type FailureKind string

const (
	// FailureTransport covers an unreachable service or a broken response
	FailureTransport FailureKind = "transport"
	// FailureRemote covers a service that responded but reported its own error
	FailureRemote FailureKind = "remote"
	// FailureAssetLoad covers an invalid or unparsable fetched asset
	FailureAssetLoad FailureKind = "asset_load"
	// FailureDeviceUnavailable covers a missing capture capability
	FailureDeviceUnavailable FailureKind = "device_unavailable"
	// FailurePermissionDenied covers declined capture-device access
	FailurePermissionDenied FailureKind = "permission_denied"
	// FailureNoSuchVariant covers switching to a variant never loaded
	FailureNoSuchVariant FailureKind = "no_such_variant"
)

// Failure is an error carrying a reportable category and a user-facing
// message.
type Failure struct {
	Kind    FailureKind
	Message string
	Cause   error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return string(f.Kind) + ": " + f.Message + ": " + f.Cause.Error()
	}
	return string(f.Kind) + ": " + f.Message
}

func (f *Failure) Unwrap() error { return f.Cause }

// NewFailure builds a categorized failure.
func NewFailure(kind FailureKind, message string, cause error) *Failure {
	return &Failure{Kind: kind, Message: message, Cause: cause}
}

// FailureOf extracts a Failure from an error chain. The second return is
// false when the error carries no category.
func FailureOf(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf returns the failure category of err, defaulting to
// FailureTransport for uncategorized errors from the network boundary.
func KindOf(err error) FailureKind {
	if f, ok := FailureOf(err); ok {
		return f.Kind
	}
	return FailureTransport
}
