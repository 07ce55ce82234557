package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"meshbot/config"
	"meshbot/types"
)

// Client talks to the meshbot gateway over HTTP+JSON. It is the concrete
// GenerationClient the coordinator consumes.
type Client struct {
	baseURL string

	// Generation runs for minutes server-side; everything else settles
	// fast. Two HTTP clients keep the timeouts honest.
	genClient  *http.Client
	fastClient *http.Client
}

// NewClient creates a client for the given gateway base URL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		baseURL:    baseURL,
		genClient:  &http.Client{Timeout: config.GenerateTimeout},
		fastClient: &http.Client{Timeout: config.TranscribeTimeout},
	}
}

// GetEnvOrDefault returns the value of an environment variable or a default value
func GetEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// statusResponse is the gateway's uniform JSON envelope.
type statusResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Text     string `json:"text,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func (r *statusResponse) success() bool { return r.Status == "success" }

// ModelURL returns the public URL for a conventionally named model file.
func (c *Client) ModelURL(filename string) string {
	return c.baseURL + config.ModelsRoute + "/" + filename
}

// Generate requests a fresh text-to-3D generation. A non-nil error means
// the service was unreachable; a result with OK=false carries the
// service's own failure message.
func (c *Client) Generate(ctx context.Context, text, artstyle string) (*types.GenerationResult, error) {
	body := map[string]string{
		"text":      text,
		"artstyle":  artstyle,
		"save_path": config.DefaultSavePath,
	}

	resp, err := c.postJSON(ctx, c.genClient, "/api/generate", body)
	if err != nil {
		return nil, err
	}
	if !resp.success() {
		return &types.GenerationResult{OK: false, Message: resp.Message}, nil
	}

	return &types.GenerationResult{
		OK:         true,
		Message:    resp.Message,
		DraftURL:   c.ModelURL(config.DraftModelFile),
		RefinedURL: c.ModelURL(config.RefinedModelFile),
	}, nil
}

// Remix requests a follow-up generation conditioned on an existing model.
// The output location is fixed by server convention.
func (c *Client) Remix(ctx context.Context, text, referencePath string) (*types.GenerationResult, error) {
	body := map[string]string{
		"glb_path":      referencePath,
		"images_output": config.RemixViewsDir,
		"text":          text,
		"image_output":  config.RemixGuideImage,
		"threeD_output": config.RemixModelFile,
	}

	resp, err := c.postJSON(ctx, c.genClient, "/api/remix", body)
	if err != nil {
		return nil, err
	}
	if !resp.success() {
		return &types.GenerationResult{OK: false, Message: resp.Message}, nil
	}

	return &types.GenerationResult{
		OK:       true,
		Message:  resp.Message,
		DraftURL: c.ModelURL(config.RemixModelFile),
	}, nil
}

// Transcribe sends captured audio for speech-to-text.
func (c *Client) Transcribe(ctx context.Context, audio types.AudioPayload) (string, error) {
	resp, err := c.postMultipart(ctx, "/api/transcribe", "audio", "recording."+audio.Format, audio.Data)
	if err != nil {
		return "", err
	}
	if !resp.success() {
		return "", types.NewFailure(types.FailureRemote, resp.Message, nil)
	}
	return resp.Text, nil
}

// Upload sends a reference file to the gateway's ingestion path.
func (c *Client) Upload(ctx context.Context, file types.NamedBlob) (string, error) {
	resp, err := c.postMultipart(ctx, "/api/upload", "file", file.Name, file.Data)
	if err != nil {
		return "", err
	}
	if !resp.success() {
		return "", types.NewFailure(types.FailureRemote, resp.Message, nil)
	}
	return resp.Filename, nil
}

// Download fetches a model by URL and writes it to dest.
func (c *Client) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.fastClient.Do(req)
	if err != nil {
		return types.NewFailure(types.FailureTransport, "download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewFailure(types.FailureTransport,
			fmt.Sprintf("download returned status %d", resp.StatusCode), nil)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

func (c *Client) postJSON(ctx context.Context, hc *http.Client, route string, body any) (*statusResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, types.NewFailure(types.FailureTransport, "request failed", err)
	}
	defer resp.Body.Close()

	return decodeStatus(resp)
}

func (c *Client) postMultipart(ctx context.Context, route, field, filename string, data []byte) (*statusResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.fastClient.Do(req)
	if err != nil {
		return nil, types.NewFailure(types.FailureTransport, "request failed", err)
	}
	defer resp.Body.Close()

	return decodeStatus(resp)
}

// decodeStatus maps responses onto the failure taxonomy: a body that
// parses as the service envelope is the service speaking (remote
// failure when not success); anything else on a bad status is transport.
func decodeStatus(resp *http.Response) (*statusResponse, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewFailure(types.FailureTransport, "failed to read response", err)
	}

	var status statusResponse
	if err := json.Unmarshal(raw, &status); err != nil || status.Status == "" {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, types.NewFailure(types.FailureTransport,
				fmt.Sprintf("service returned HTTP %d", resp.StatusCode), nil)
		}
		return nil, types.NewFailure(types.FailureTransport, "unparsable service response", err)
	}
	return &status, nil
}
