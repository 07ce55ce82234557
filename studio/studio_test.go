package studio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	c := NewClient(baseURL, "test-key")
	c.pollInterval = time.Millisecond
	return c
}

func TestCreateTextTo3D(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/text-to-3d" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"result": "task-123"})
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL).CreateTextTo3D(context.Background(), "a dragon", "realistic")
	if err != nil {
		t.Fatalf("CreateTextTo3D failed: %v", err)
	}
	if id != "task-123" {
		t.Errorf("unexpected task ID %q", id)
	}
	if got["mode"] != "preview" || got["prompt"] != "a dragon" || got["art_style"] != "realistic" {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestCreateTaskRejectsEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"result": ""})
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).CreateRefine(context.Background(), "task-1"); err == nil {
		t.Fatal("expected error for empty task ID")
	}
}

func TestAwaitPollsUntilSucceeded(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		task := map[string]any{"id": "task-1", "status": "IN_PROGRESS", "progress": int(n) * 30}
		if n >= 3 {
			task["status"] = TaskSucceeded
			task["model_urls"] = map[string]string{"glb": "http://example.invalid/model.glb"}
		}
		json.NewEncoder(w).Encode(task)
	}))
	defer srv.Close()

	task, err := newTestClient(srv.URL).Await(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if task.Status != TaskSucceeded {
		t.Errorf("unexpected status %q", task.Status)
	}
	if polls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", polls.Load())
	}
}

func TestAwaitSurfacesTaskError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":         "task-1",
			"status":     TaskFailed,
			"task_error": map[string]string{"message": "prompt rejected"},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Await(context.Background(), "task-1")
	if err == nil {
		t.Fatal("expected error for failed task")
	}
	if !strings.Contains(err.Error(), "prompt rejected") {
		t.Errorf("error %q does not carry the studio message", err)
	}
}

func TestAwaitHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "task-1", "status": "PENDING"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, "")
	c.pollInterval = time.Hour

	if _, err := c.Await(ctx, "task-1"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestDownloadGLB(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("glb-bytes"))
	}))
	defer srv.Close()

	task := &Task{ID: "task-1", ModelURLs: map[string]string{"glb": srv.URL + "/model.glb"}}
	dest := filepath.Join(t.TempDir(), "draft_model.glb")

	if err := newTestClient(srv.URL).DownloadGLB(context.Background(), task, dest); err != nil {
		t.Fatalf("DownloadGLB failed: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "glb-bytes" {
		t.Errorf("unexpected file contents %q", data)
	}
}

func TestDownloadGLBMissingArtifact(t *testing.T) {
	task := &Task{ID: "task-1", ModelURLs: map[string]string{}}
	err := newTestClient("http://unused.invalid").DownloadGLB(context.Background(), task, "x.glb")
	if err == nil {
		t.Fatal("expected error for missing glb artifact")
	}
}

func TestDownloadImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png"))
	}))
	defer srv.Close()

	task := &Task{ID: "task-1", ImageURLs: []string{srv.URL + "/0.png", srv.URL + "/1.png"}}
	dir := t.TempDir()

	paths, err := newTestClient(srv.URL).DownloadImages(context.Background(), task, dir)
	if err != nil {
		t.Fatalf("DownloadImages failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 images, got %d", len(paths))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing downloaded image %s: %v", p, err)
		}
	}
}
