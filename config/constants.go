package config

import "time"

// Generation Pipeline Constants
const (
	// TaskPollInterval is the wait between upstream task status checks
	TaskPollInterval = 5 * time.Second

	// GenerateTimeout bounds a full generate/remix round trip. The remote
	// protocol has no cancellation channel, so this is the only bound.
	GenerateTimeout = 10 * time.Minute

	// TranscribeTimeout bounds a transcription round trip
	TranscribeTimeout = 60 * time.Second

	// UploadTimeout bounds a reference-file upload
	UploadTimeout = 60 * time.Second
)

// Progress Reporting Constants
const (
	// ProgressTickInterval is the cadence of synthetic progress updates
	ProgressTickInterval = 400 * time.Millisecond

	// ProgressCeiling is the maximum synthetic value while a request is
	// still outstanding; 100 is reserved for settlement
	ProgressCeiling = 90.0

	// ProgressGraceDelay keeps the bar visible briefly after completion
	ProgressGraceDelay = 500 * time.Millisecond
)

// Recording Constants
const (
	// MaxRecordingDuration caps a single voice capture. The capture device
	// is released when the cap is hit even if the user never presses stop.
	MaxRecordingDuration = 120 * time.Second

	// CaptureSampleRate is the mono sample rate requested from the device
	CaptureSampleRate = 16000
)

// Model File Conventions
// The generation service writes fixed filenames under the save path; the
// frontend addresses them by URL only.
const (
	DraftModelFile   = "draft_model.glb"
	RefinedModelFile = "refined_model.glb"
	RemixModelFile   = "remixed_draft_model.glb"

	// DefaultSavePath is the server-side directory for generated assets
	DefaultSavePath = "3d_files"

	// ModelsRoute is the public route the save path is served under
	ModelsRoute = "/models"
)

// Remix Pipeline Conventions
// Server-side working paths for the staged remix pipeline.
const (
	RemixViewsDir   = "remix_views"
	RemixGuideImage = "remix_guide.png"
)

// DefaultArtStyle is used when a request does not specify one
const DefaultArtStyle = "realistic"

// ArtStyles maps friendly preset names to the styles the generation
// service accepts
var ArtStyles = map[string]string{
	"realistic": "realistic",
	"sculpture": "sculpture",
	"pbr":       "pbr",
}

// ResolveArtStyle resolves a preset name to a service art style.
// Unknown values fall back to the default rather than failing the request.
func ResolveArtStyle(name string) string {
	if style, exists := ArtStyles[name]; exists {
		return style
	}
	return DefaultArtStyle
}
