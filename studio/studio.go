// Package studio is the client for the upstream 3D studio task API. Every
// operation follows the same shape: create a task, poll it until it
// settles, then download the produced artifacts.
package studio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"meshbot/config"
)

// Task statuses reported by the studio API.
const (
	TaskSucceeded = "SUCCEEDED"
	TaskFailed    = "FAILED"
	TaskCanceled  = "CANCELED"
)

// Client talks to the studio task API.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewClient creates a client for an explicit endpoint.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: config.TaskPollInterval,
	}
}

// NewClientFromEnv builds a client from STUDIO_API_URL / STUDIO_API_KEY.
func NewClientFromEnv() *Client {
	baseURL := os.Getenv("STUDIO_API_URL")
	if baseURL == "" {
		baseURL = "https://api.meshy.ai/openapi"
	}
	return NewClient(baseURL, os.Getenv("STUDIO_API_KEY"))
}

// Task is the studio's view of an asynchronous job.
type Task struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Progress  int               `json:"progress"`
	ModelURLs map[string]string `json:"model_urls"`
	ImageURLs []string          `json:"image_urls"`
	TaskError *struct {
		Message string `json:"message"`
	} `json:"task_error"`
}

// createResponse wraps the task ID returned by task-creating endpoints.
type createResponse struct {
	Result string `json:"result"`
}

// CreateTextTo3D starts a preview (draft) text-to-3D task.
func (c *Client) CreateTextTo3D(ctx context.Context, prompt, artStyle string) (string, error) {
	payload := map[string]any{
		"mode":          "preview",
		"prompt":        prompt,
		"art_style":     artStyle,
		"should_remesh": true,
	}
	return c.createTask(ctx, "/v2/text-to-3d", payload)
}

// CreateRefine starts a refine task for a finished preview task.
func (c *Client) CreateRefine(ctx context.Context, previewTaskID string) (string, error) {
	payload := map[string]any{
		"mode":            "refine",
		"preview_task_id": previewTaskID,
	}
	return c.createTask(ctx, "/v2/text-to-3d", payload)
}

// CreateImageTo3D starts an image-to-3D task from raw PNG bytes.
func (c *Client) CreateImageTo3D(ctx context.Context, imagePNG []byte) (string, error) {
	payload := map[string]any{
		"image_url":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(imagePNG),
		"enable_pbr":     true,
		"should_remesh":  true,
		"should_texture": true,
	}
	return c.createTask(ctx, "/v1/image-to-3d", payload)
}

// CreateRenderViews starts a task rendering fixed camera views (front,
// back, left, right) of an uploaded GLB.
func (c *Client) CreateRenderViews(ctx context.Context, glb []byte) (string, error) {
	payload := map[string]any{
		"model_data": base64.StdEncoding.EncodeToString(glb),
		"views":      []string{"front", "back", "left", "right"},
	}
	return c.createTask(ctx, "/v1/render-views", payload)
}

// GetTask fetches the current state of a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/text-to-3d/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("task status returned HTTP %d", resp.StatusCode)
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// Await polls a task until it settles. A failed or canceled task is an
// error carrying the studio's message when one was provided.
func (c *Client) Await(ctx context.Context, taskID string) (*Task, error) {
	for {
		task, err := c.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		switch task.Status {
		case TaskSucceeded:
			return task, nil
		case TaskFailed, TaskCanceled:
			if task.TaskError != nil && task.TaskError.Message != "" {
				return nil, fmt.Errorf("task %s %s: %s", taskID, task.Status, task.TaskError.Message)
			}
			return nil, fmt.Errorf("task %s %s", taskID, task.Status)
		}

		log.Printf("  ⏳ Task %s: %s (%d%%)", taskID, task.Status, task.Progress)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// DownloadGLB writes the task's GLB artifact to path.
func (c *Client) DownloadGLB(ctx context.Context, task *Task, path string) error {
	url, exists := task.ModelURLs["glb"]
	if !exists {
		return fmt.Errorf("task %s has no glb artifact", task.ID)
	}
	return c.downloadFile(ctx, url, path)
}

// DownloadImages writes each rendered view to dir, returning the paths.
func (c *Client) DownloadImages(ctx context.Context, task *Task, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(task.ImageURLs))
	for i, url := range task.ImageURLs {
		path := fmt.Sprintf("%s/view_%d.png", dir, i)
		if err := c.downloadFile(ctx, url, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (c *Client) createTask(ctx context.Context, route string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("task creation returned HTTP %d: %s", resp.StatusCode, detail)
	}

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode task creation response: %w", err)
	}
	if created.Result == "" {
		return "", fmt.Errorf("task creation returned empty task ID")
	}

	log.Printf("  📋 Task created: %s", created.Result)
	return created.Result, nil
}

func (c *Client) downloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("artifact download returned HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
