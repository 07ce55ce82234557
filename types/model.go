package types

import (
	"strings"
	"time"
)

// ModelVariant identifies one of the two quality tiers the generation
// service produces for a prompt.
type ModelVariant string

const (
	VariantDraft   ModelVariant = "draft"
	VariantRefined ModelVariant = "refined"
)

// Intent selects which remote operation a submission maps to.
type Intent string

const (
	IntentGenerate Intent = "generate"
	IntentRemix    Intent = "remix"
)

// NamedBlob is a raw byte payload handed over by the file picker.
type NamedBlob struct {
	Name string
	Data []byte
}

// Submission is a single user request as captured at input time.
// It is immutable after dispatch and consumed exactly once.
type Submission struct {
	Text  string
	Files []NamedBlob
}

// Empty reports whether the submission carries neither text nor files.
func (s Submission) Empty() bool {
	return strings.TrimSpace(s.Text) == "" && len(s.Files) == 0
}

// GenerationRequest is the wire-level request derived from a Submission.
// ReferenceAssetPath is mandatory for IntentRemix.
type GenerationRequest struct {
	Kind               Intent
	Text               string
	ReferenceAssetPath string
}

// GenerationResult is the settled outcome of a generate or remix call.
// DraftURL/RefinedURL are only meaningful when OK is true; which of them
// is set depends on the operation (generate fills both, remix fills the
// draft only).
type GenerationResult struct {
	OK         bool
	Message    string
	DraftURL   string
	RefinedURL string
}

// AudioPayload is finalized captured audio ready for transcription.
type AudioPayload struct {
	Format   string
	Data     []byte
	Duration time.Duration
}

// Empty reports whether any audio was buffered before the stream closed.
func (p AudioPayload) Empty() bool {
	return len(p.Data) == 0
}
