package session

import (
	"context"
	"fmt"
	"sync"

	"meshbot/types"
)

// RenderAsset is an opaque renderable owned by the render surface.
type RenderAsset interface {
	// Size returns the bounding extents of the asset in model units.
	Size() (x, y, z float64)
}

// Surface is the render surface the session attaches assets to.
type Surface interface {
	// Load fetches and prepares a renderable from a URL.
	Load(ctx context.Context, url string) (RenderAsset, error)
	// Dispose releases a renderable. Disposing twice is a no-op.
	Dispose(a RenderAsset)
}

// Handle is a live reference to a loaded model variant.
type Handle struct {
	SourceURL string
	Variant   types.ModelVariant
	Asset     RenderAsset
}

// SizeVector returns the asset extents for the model info panel.
func (h *Handle) SizeVector() (x, y, z float64) {
	return h.Asset.Size()
}

// Session owns the draft/refined handles for the current model and the
// active-variant selector. At most one live handle exists per variant;
// replacing a handle disposes the previous one. Switching variants keeps
// the other variant's handle so toggling never re-downloads.
type Session struct {
	mu      sync.Mutex
	surface Surface
	handles map[types.ModelVariant]*Handle
	active  types.ModelVariant
}

// New creates an empty session attached to the given render surface.
func New(surface Surface) *Session {
	return &Session{
		surface: surface,
		handles: make(map[types.ModelVariant]*Handle),
	}
}

// Activate loads url for the given variant and makes it active. On load
// failure the prior handle (if any) stays live and untouched, so a failed
// replacement never loses a working model.
func (s *Session) Activate(ctx context.Context, variant types.ModelVariant, url string) (*Handle, error) {
	asset, err := s.surface.Load(ctx, url)
	if err != nil {
		if _, ok := types.FailureOf(err); ok {
			return nil, err
		}
		return nil, types.NewFailure(types.FailureAssetLoad,
			fmt.Sprintf("failed to load %s model", variant), err)
	}

	handle := &Handle{SourceURL: url, Variant: variant, Asset: asset}

	// Load completed over an await point, so take stock of the stored
	// handle only now: whatever is registered for this variant at this
	// instant is the one that must be disposed.
	s.mu.Lock()
	previous := s.handles[variant]
	s.handles[variant] = handle
	s.active = variant
	s.mu.Unlock()

	if previous != nil {
		s.surface.Dispose(previous.Asset)
	}
	return handle, nil
}

// SwitchTo re-activates an already-loaded variant without re-fetching.
func (s *Session) SwitchTo(variant types.ModelVariant) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, exists := s.handles[variant]
	if !exists {
		return nil, types.NewFailure(types.FailureNoSuchVariant,
			fmt.Sprintf("no %s model loaded yet", variant), nil)
	}
	s.active = variant
	return handle, nil
}

// Current returns the active handle, or false for an empty session.
func (s *Session) Current() (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == "" {
		return nil, false
	}
	handle, exists := s.handles[s.active]
	return handle, exists
}

// CurrentURL returns the source URL of the active handle. Used for
// downloads and for deriving remix reference paths.
func (s *Session) CurrentURL() (string, bool) {
	handle, ok := s.Current()
	if !ok {
		return "", false
	}
	return handle.SourceURL, true
}

// Handle returns the stored handle for a variant whether or not it is
// active.
func (s *Session) Handle(variant types.ModelVariant) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, exists := s.handles[variant]
	return handle, exists
}

// ActiveVariant reports which variant is attached, or false when empty.
func (s *Session) ActiveVariant() (types.ModelVariant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == "" {
		return "", false
	}
	return s.active, true
}
