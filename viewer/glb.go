package viewer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"meshbot/session"
	"meshbot/types"
)

const (
	glbMagic     = 0x46546C67 // "glTF"
	glbChunkJSON = 0x4E4F534A // "JSON"

	// maxModelBytes caps a fetched model at 256 MB
	maxModelBytes = 256 << 20
)

// Surface fetches GLB models over HTTP and exposes their bounding metrics.
// It satisfies session.Surface. Rendering itself happens elsewhere; this
// surface only owns asset bytes and their lifecycle.
type Surface struct {
	httpClient *http.Client
}

// NewSurface creates a surface with a bounded fetch timeout.
func NewSurface() *Surface {
	return &Surface{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Asset is a fetched GLB with its bounding box.
type Asset struct {
	url      string
	min, max [3]float64

	mu       sync.Mutex
	data     []byte
	released bool
}

// Size returns the bounding extents of the model.
func (a *Asset) Size() (x, y, z float64) {
	return a.max[0] - a.min[0], a.max[1] - a.min[1], a.max[2] - a.min[2]
}

// Bytes returns the raw GLB for download. Returns nil after disposal.
func (a *Asset) Bytes() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data
}

// Load implements session.Surface.
func (s *Surface) Load(ctx context.Context, url string) (session.RenderAsset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewFailure(types.FailureAssetLoad, "invalid model URL", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, types.NewFailure(types.FailureAssetLoad, "failed to fetch model", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewFailure(types.FailureAssetLoad,
			fmt.Sprintf("model fetch returned status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxModelBytes))
	if err != nil {
		return nil, types.NewFailure(types.FailureAssetLoad, "failed to read model body", err)
	}

	min, max, err := parseBounds(data)
	if err != nil {
		return nil, types.NewFailure(types.FailureAssetLoad, "model is not a valid GLB", err)
	}

	return &Asset{url: url, min: min, max: max, data: data}, nil
}

// Dispose implements session.Surface. Safe to call more than once.
func (s *Surface) Dispose(a session.RenderAsset) {
	asset, ok := a.(*Asset)
	if !ok || asset == nil {
		return
	}
	asset.mu.Lock()
	defer asset.mu.Unlock()
	if asset.released {
		return
	}
	asset.released = true
	asset.data = nil
}

// glbDocument is the subset of the glTF JSON chunk needed for bounds.
// Per the glTF spec, POSITION accessors must carry min/max.
type glbDocument struct {
	Accessors []struct {
		Type string    `json:"type"`
		Min  []float64 `json:"min"`
		Max  []float64 `json:"max"`
	} `json:"accessors"`
}

// parseBounds validates the GLB container and computes the union of all
// VEC3 accessor bounds.
func parseBounds(data []byte) (min, max [3]float64, err error) {
	if len(data) < 20 {
		return min, max, fmt.Errorf("truncated header (%d bytes)", len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != glbMagic {
		return min, max, fmt.Errorf("bad magic %#x", binary.LittleEndian.Uint32(data[0:4]))
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != 2 {
		return min, max, fmt.Errorf("unsupported GLB version %d", v)
	}

	chunkLen := binary.LittleEndian.Uint32(data[12:16])
	if binary.LittleEndian.Uint32(data[16:20]) != glbChunkJSON {
		return min, max, fmt.Errorf("first chunk is not JSON")
	}
	if uint64(20+chunkLen) > uint64(len(data)) {
		return min, max, fmt.Errorf("JSON chunk overruns file")
	}

	var doc glbDocument
	if err := json.Unmarshal(data[20:20+chunkLen], &doc); err != nil {
		return min, max, fmt.Errorf("invalid JSON chunk: %w", err)
	}

	found := false
	for _, acc := range doc.Accessors {
		if acc.Type != "VEC3" || len(acc.Min) != 3 || len(acc.Max) != 3 {
			continue
		}
		if !found {
			copy(min[:], acc.Min)
			copy(max[:], acc.Max)
			found = true
			continue
		}
		for i := 0; i < 3; i++ {
			if acc.Min[i] < min[i] {
				min[i] = acc.Min[i]
			}
			if acc.Max[i] > max[i] {
				max[i] = acc.Max[i]
			}
		}
	}
	if !found {
		// A valid container with no geometry bounds still renders; report
		// a zero-size box rather than failing the load.
		return [3]float64{}, [3]float64{}, nil
	}
	return min, max, nil
}
