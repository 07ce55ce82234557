package coordinator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"meshbot/recording"
	"meshbot/session"
	"meshbot/types"
)

type fakeAsset struct{}

func (fakeAsset) Size() (x, y, z float64) { return 1, 1, 1 }

type fakeSurface struct {
	mu     sync.Mutex
	failOn map[string]error
	loads  []string
	onLoad func(url string)
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{failOn: make(map[string]error)}
}

func (s *fakeSurface) Load(ctx context.Context, url string) (session.RenderAsset, error) {
	s.mu.Lock()
	s.loads = append(s.loads, url)
	onLoad := s.onLoad
	err := s.failOn[url]
	s.mu.Unlock()

	if onLoad != nil {
		onLoad(url)
	}
	if err != nil {
		return nil, err
	}
	return fakeAsset{}, nil
}

func (s *fakeSurface) Dispose(a session.RenderAsset) {}

type fakeClient struct {
	mu sync.Mutex

	generateResult *types.GenerationResult
	generateErr    error
	generateCalls  int
	generateBlock  chan struct{} // when set, Generate waits on it

	remixResult *types.GenerationResult
	remixErr    error
	remixCalls  int
	remixRefs   []string

	transcript    string
	transcribeErr error

	uploads []string
}

func (c *fakeClient) Generate(ctx context.Context, text, artstyle string) (*types.GenerationResult, error) {
	c.mu.Lock()
	c.generateCalls++
	block := c.generateBlock
	c.mu.Unlock()

	if block != nil {
		<-block
	}
	return c.generateResult, c.generateErr
}

func (c *fakeClient) Remix(ctx context.Context, text, referencePath string) (*types.GenerationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remixCalls++
	c.remixRefs = append(c.remixRefs, referencePath)
	return c.remixResult, c.remixErr
}

func (c *fakeClient) Transcribe(ctx context.Context, audio types.AudioPayload) (string, error) {
	return c.transcript, c.transcribeErr
}

func (c *fakeClient) Upload(ctx context.Context, file types.NamedBlob) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads = append(c.uploads, file.Name)
	return file.Name, nil
}

func (c *fakeClient) counts() (generates, remixes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generateCalls, c.remixCalls
}

// eventLog records coordinator callbacks.
type eventLog struct {
	mu          sync.Mutex
	messages    []string
	activations []*session.Handle
	transcripts []string
}

func (e *eventLog) events() Events {
	return Events{
		OnMessage: func(kind, text string) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.messages = append(e.messages, kind+": "+text)
		},
		OnModelActivated: func(h *session.Handle) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.activations = append(e.activations, h)
		},
		OnTranscript: func(text string) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.transcripts = append(e.transcripts, text)
		},
	}
}

func (e *eventLog) messageContaining(substr string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func okGenerate() *types.GenerationResult {
	return &types.GenerationResult{
		OK:         true,
		Message:    "Rendering complete.",
		DraftURL:   "http://host/models/draft_model.glb",
		RefinedURL: "http://host/models/refined_model.glb",
	}
}

func newTestCoordinator(client *fakeClient, surface *fakeSurface, events *eventLog) (*Coordinator, *session.Session) {
	sess := session.New(surface)
	c := New(Config{
		Client:       client,
		Session:      sess,
		Events:       events.events(),
		TickInterval: time.Millisecond,
		GraceDelay:   time.Millisecond,
	})
	return c, sess
}

func TestEmptySubmissionIsDropped(t *testing.T) {
	client := &fakeClient{generateResult: okGenerate()}
	events := &eventLog{}
	c, _ := newTestCoordinator(client, newFakeSurface(), events)

	c.Submit(context.Background(), types.Submission{Text: "   "})
	c.Submit(context.Background(), types.Submission{})

	if g, r := client.counts(); g != 0 || r != 0 {
		t.Errorf("empty submissions must not reach the client (generate=%d remix=%d)", g, r)
	}
	if len(events.messages) != 0 {
		t.Errorf("empty submissions must be silent, got %v", events.messages)
	}
}

func TestSecondSubmissionDuringFlightIsDropped(t *testing.T) {
	client := &fakeClient{
		generateResult: okGenerate(),
		generateBlock:  make(chan struct{}),
	}
	events := &eventLog{}
	c, _ := newTestCoordinator(client, newFakeSurface(), events)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Submit(context.Background(), types.Submission{Text: "a dragon"})
	}()

	waitFor(t, c.Busy)

	// Returns immediately without touching the client.
	c.Submit(context.Background(), types.Submission{Text: "a castle"})
	if g, _ := client.counts(); g != 1 {
		t.Errorf("expected 1 generate call during flight, got %d", g)
	}

	close(client.generateBlock)
	wg.Wait()

	if c.Busy() {
		t.Error("coordinator must be idle after the flight")
	}
	if sub := c.LastSubmission(); sub == nil || sub.Text != "a dragon" {
		t.Errorf("dropped submission must not be recorded, got %+v", sub)
	}

	// The slot is free again.
	c.Submit(context.Background(), types.Submission{Text: "a castle"})
	if g, _ := client.counts(); g != 2 {
		t.Errorf("expected submission after flight to go through, got %d calls", g)
	}
}

func TestGenerateFlowPopulatesSession(t *testing.T) {
	client := &fakeClient{generateResult: okGenerate()}
	events := &eventLog{}
	c, sess := newTestCoordinator(client, newFakeSurface(), events)

	c.Submit(context.Background(), types.Submission{Text: "a small dragon"})

	if _, exists := sess.Handle(types.VariantDraft); !exists {
		t.Error("draft handle missing after generation")
	}
	active, _ := sess.ActiveVariant()
	if active != types.VariantRefined {
		t.Errorf("refined variant must end up active, got %q", active)
	}
	if !events.messageContaining("✅ Successfully generated 3D model") {
		t.Errorf("missing success message, got %v", events.messages)
	}
	if len(events.activations) != 1 || events.activations[0].Variant != types.VariantRefined {
		t.Errorf("expected one activation for the refined model, got %v", events.activations)
	}
}

func TestRefinedSessionDispatchesRemix(t *testing.T) {
	client := &fakeClient{
		generateResult: okGenerate(),
		remixResult: &types.GenerationResult{
			OK:       true,
			DraftURL: "http://host/models/remixed_draft_model.glb",
		},
	}
	events := &eventLog{}
	c, sess := newTestCoordinator(client, newFakeSurface(), events)

	c.Submit(context.Background(), types.Submission{Text: "a dragon"})
	refined, _ := sess.Handle(types.VariantRefined)

	c.Submit(context.Background(), types.Submission{Text: "make it breathe fire"})

	if g, r := client.counts(); g != 1 || r != 1 {
		t.Fatalf("expected one generate then one remix, got generate=%d remix=%d", g, r)
	}
	if client.remixRefs[0] != refined.SourceURL {
		t.Errorf("remix must reference the refined model, got %q", client.remixRefs[0])
	}

	// The draft is replaced and active; the refined source survives.
	active, _ := sess.ActiveVariant()
	if active != types.VariantDraft {
		t.Errorf("remix must activate the draft, got %q", active)
	}
	draft, _ := sess.Handle(types.VariantDraft)
	if draft.SourceURL != "http://host/models/remixed_draft_model.glb" {
		t.Errorf("draft not replaced by remix output: %q", draft.SourceURL)
	}
	if after, _ := sess.Handle(types.VariantRefined); after != refined {
		t.Error("refined handle must be untouched by a remix")
	}
	if !events.messageContaining("✅ Remix complete") {
		t.Errorf("missing remix message, got %v", events.messages)
	}
}

func TestTransportErrorMessage(t *testing.T) {
	client := &fakeClient{
		generateErr: types.NewFailure(types.FailureTransport, "request failed", errors.New("refused")),
	}
	events := &eventLog{}
	c, sess := newTestCoordinator(client, newFakeSurface(), events)

	c.Submit(context.Background(), types.Submission{Text: "a dragon"})

	if !events.messageContaining("Cannot reach the generation service") {
		t.Errorf("missing transport message, got %v", events.messages)
	}
	if _, ok := sess.Current(); ok {
		t.Error("session must stay empty after a transport failure")
	}
	if c.Busy() {
		t.Error("coordinator must not stay busy after a failure")
	}
}

func TestRemoteFailureMessage(t *testing.T) {
	client := &fakeClient{
		generateResult: &types.GenerationResult{OK: false, Message: "quota exceeded"},
	}
	events := &eventLog{}
	c, _ := newTestCoordinator(client, newFakeSurface(), events)

	c.Submit(context.Background(), types.Submission{Text: "a dragon"})

	if !events.messageContaining("❌ Generation failed: quota exceeded") {
		t.Errorf("missing remote failure message, got %v", events.messages)
	}
}

func TestLoadFailureIsReported(t *testing.T) {
	surface := newFakeSurface()
	surface.failOn["http://host/models/refined_model.glb"] = errors.New("corrupt download")
	client := &fakeClient{generateResult: okGenerate()}
	events := &eventLog{}
	c, sess := newTestCoordinator(client, surface, events)

	c.Submit(context.Background(), types.Submission{Text: "a dragon"})

	if !events.messageContaining("Could not display the refined model") {
		t.Errorf("missing load failure message, got %v", events.messages)
	}
	if _, exists := sess.Handle(types.VariantDraft); !exists {
		t.Error("draft must still be loaded when only the refined load fails")
	}
}

func TestProgressSettlesBeforeAssetLoad(t *testing.T) {
	progress := &progressLog{}
	surface := newFakeSurface()
	surface.onLoad = func(string) {
		calls, _ := progress.snapshot()
		settled := false
		for _, call := range calls {
			if call == "complete" {
				settled = true
			}
		}
		if !settled {
			t.Error("asset load started before the progress bar settled")
		}
	}

	client := &fakeClient{generateResult: okGenerate()}
	sess := session.New(surface)
	c := New(Config{
		Client:       client,
		Session:      sess,
		Progress:     progress,
		TickInterval: time.Millisecond,
		GraceDelay:   time.Millisecond,
	})

	c.Submit(context.Background(), types.Submission{Text: "a dragon"})
}

func TestFileOnlySubmissionUploadsWithoutGenerating(t *testing.T) {
	client := &fakeClient{generateResult: okGenerate()}
	events := &eventLog{}
	c, _ := newTestCoordinator(client, newFakeSurface(), events)

	c.Submit(context.Background(), types.Submission{
		Files: []types.NamedBlob{{Name: "ref.png", Data: []byte{1}}},
	})

	if g, _ := client.counts(); g != 0 {
		t.Errorf("file-only submission must not generate, got %d calls", g)
	}
	if len(client.uploads) != 1 || client.uploads[0] != "ref.png" {
		t.Errorf("expected one upload, got %v", client.uploads)
	}
	if !events.messageContaining("📎 Uploaded 1 file(s): ref.png") {
		t.Errorf("missing upload message, got %v", events.messages)
	}
}

func TestFilesWithTextUploadThenGenerate(t *testing.T) {
	client := &fakeClient{generateResult: okGenerate()}
	events := &eventLog{}
	c, _ := newTestCoordinator(client, newFakeSurface(), events)

	c.Submit(context.Background(), types.Submission{
		Text:  "a dragon like this",
		Files: []types.NamedBlob{{Name: "ref.png", Data: []byte{1}}},
	})

	if g, _ := client.counts(); g != 1 {
		t.Errorf("expected generation after upload, got %d calls", g)
	}
	if len(client.uploads) != 1 {
		t.Errorf("expected one upload, got %v", client.uploads)
	}
}

// idleStream is a capture stream with no audio that waits for Close.
type idleStream struct {
	closed chan struct{}
	once   sync.Once
}

func (s *idleStream) Read(p []byte) (int, error) {
	<-s.closed
	return 0, io.EOF
}

func (s *idleStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type idleDevice struct{}

func (idleDevice) Acquire(ctx context.Context) (io.ReadCloser, error) {
	return &idleStream{closed: make(chan struct{})}, nil
}

func transcribingRecorder(t *testing.T) (*recording.Recorder, types.AudioPayload) {
	t.Helper()
	r := recording.New(idleDevice{})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	payload, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	return r, payload
}

func TestTranscribeEmptyPayload(t *testing.T) {
	recorder, payload := transcribingRecorder(t)
	client := &fakeClient{transcript: "unused"}
	events := &eventLog{}
	sess := session.New(newFakeSurface())
	c := New(Config{Client: client, Session: sess, Recorder: recorder, Events: events.events()})

	c.Transcribe(context.Background(), payload)

	if !events.messageContaining("🎤 Nothing was recorded.") {
		t.Errorf("missing empty-recording message, got %v", events.messages)
	}
	if recorder.State() != recording.StateIdle {
		t.Errorf("recorder must settle to idle, got %s", recorder.State())
	}
}

func TestTranscribeSuccessDeliversText(t *testing.T) {
	recorder, _ := transcribingRecorder(t)
	client := &fakeClient{transcript: "a blue whale"}
	events := &eventLog{}
	sess := session.New(newFakeSurface())
	c := New(Config{Client: client, Session: sess, Recorder: recorder, Events: events.events()})

	c.Transcribe(context.Background(), types.AudioPayload{Format: "wav", Data: []byte{1, 2}})

	if len(events.transcripts) != 1 || events.transcripts[0] != "a blue whale" {
		t.Errorf("expected transcript callback, got %v", events.transcripts)
	}
	if recorder.State() != recording.StateIdle {
		t.Errorf("recorder must settle to idle, got %s", recorder.State())
	}
}

func TestTranscribeFailureSettlesRecorder(t *testing.T) {
	recorder, _ := transcribingRecorder(t)
	client := &fakeClient{
		transcribeErr: types.NewFailure(types.FailureRemote, "speech service down", nil),
	}
	events := &eventLog{}
	sess := session.New(newFakeSurface())
	c := New(Config{Client: client, Session: sess, Recorder: recorder, Events: events.events()})

	c.Transcribe(context.Background(), types.AudioPayload{Format: "wav", Data: []byte{1, 2}})

	if !events.messageContaining("❌ Transcription failed: speech service down") {
		t.Errorf("missing transcription failure message, got %v", events.messages)
	}
	if recorder.State() != recording.StateIdle {
		t.Errorf("recorder must settle to idle even on failure, got %s", recorder.State())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
