package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"meshbot/config"
	"meshbot/recording"
	"meshbot/session"
	"meshbot/types"
)

// Message kinds handed to Events.OnMessage, mirroring the chat roles the
// presentation layer renders.
const (
	MessageBot    = "bot"
	MessageSystem = "system"
)

// Client performs the remote operations. A returned error means the
// service could not be reached or answered garbage; a result with
// OK=false means the service answered and reported its own failure.
type Client interface {
	Generate(ctx context.Context, text, artstyle string) (*types.GenerationResult, error)
	Remix(ctx context.Context, text, referencePath string) (*types.GenerationResult, error)
	Transcribe(ctx context.Context, audio types.AudioPayload) (string, error)
	Upload(ctx context.Context, file types.NamedBlob) (string, error)
}

// Events are the presentation callbacks the coordinator invokes. Nil
// callbacks are skipped.
type Events struct {
	OnMessage        func(kind, text string)
	OnModelActivated func(handle *session.Handle)
	OnTranscript     func(text string)
}

func (e Events) message(kind, text string) {
	if e.OnMessage != nil {
		e.OnMessage(kind, text)
	}
}

func (e Events) modelActivated(h *session.Handle) {
	if e.OnModelActivated != nil {
		e.OnModelActivated(h)
	}
}

// Config wires the coordinator's collaborators.
type Config struct {
	Client   Client
	Session  *session.Session
	Recorder *recording.Recorder
	Progress ProgressReporter
	Events   Events

	// ArtStyle preset for generation requests; defaults to realistic.
	ArtStyle string
	// TickInterval and GraceDelay override the progress timing defaults
	// (used by tests).
	TickInterval time.Duration
	GraceDelay   time.Duration
}

// Coordinator accepts user submissions and drives them through the
// generation service and into the model session. Exactly one submission
// is in flight at a time; extra calls during flight are dropped.
type Coordinator struct {
	client   Client
	session  *session.Session
	recorder *recording.Recorder
	progress ProgressReporter
	events   Events
	artstyle string
	tick     time.Duration
	grace    time.Duration

	mu             sync.Mutex
	busy           bool
	lastSubmission *types.Submission
}

// New constructs a coordinator from explicitly injected collaborators.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		client:   cfg.Client,
		session:  cfg.Session,
		recorder: cfg.Recorder,
		progress: cfg.Progress,
		events:   cfg.Events,
		artstyle: cfg.ArtStyle,
		tick:     cfg.TickInterval,
		grace:    cfg.GraceDelay,
	}
	if c.progress == nil {
		c.progress = NopProgress{}
	}
	if c.artstyle == "" {
		c.artstyle = config.DefaultArtStyle
	}
	if c.tick <= 0 {
		c.tick = config.ProgressTickInterval
	}
	if c.grace < 0 {
		c.grace = 0
	} else if c.grace == 0 {
		c.grace = config.ProgressGraceDelay
	}
	return c
}

// Busy reports whether a submission is currently in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// LastSubmission returns the most recently dispatched submission.
func (c *Coordinator) LastSubmission() *types.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSubmission
}

// DecideIntent is the single branching rule governing every submission
// after the first successful generation: a session holding a refined
// model remixes against it, anything else generates from scratch.
func DecideIntent(s *session.Session) types.Intent {
	if _, exists := s.Handle(types.VariantRefined); exists {
		return types.IntentRemix
	}
	return types.IntentGenerate
}

// Submit dispatches one submission. Empty submissions and submissions
// arriving while another is in flight are dropped silently: both are
// guards against accidental double-fire, not user mistakes. Submit
// returns once the whole cycle (request, asset load, messages) is done.
func (c *Coordinator) Submit(ctx context.Context, sub types.Submission) {
	if strings.TrimSpace(sub.Text) == "" && len(sub.Files) == 0 {
		return
	}

	// Check-and-set under one lock: no await point between seeing idle
	// and claiming the flight.
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return
	}
	c.busy = true
	c.lastSubmission = &sub
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	c.dispatch(ctx, sub)
}

func (c *Coordinator) dispatch(ctx context.Context, sub types.Submission) {
	if len(sub.Files) > 0 {
		c.uploadFiles(ctx, sub.Files)
		if strings.TrimSpace(sub.Text) == "" {
			return
		}
	}

	intent := DecideIntent(c.session)

	driver := startProgress(c.progress, c.tick, c.grace)

	var result *types.GenerationResult
	var err error
	switch intent {
	case types.IntentRemix:
		refined, _ := c.session.Handle(types.VariantRefined)
		result, err = c.client.Remix(ctx, sub.Text, refined.SourceURL)
	default:
		result, err = c.client.Generate(ctx, sub.Text, c.artstyle)
	}

	// Settlement: the bar jumps to 100 before any session mutation or
	// asset loading happens.
	driver.settle()

	if err != nil {
		c.events.message(MessageBot,
			"❌ Cannot reach the generation service. Please make sure the backend is running.")
		return
	}
	if !result.OK {
		c.events.message(MessageBot, "❌ Generation failed: "+result.Message)
		return
	}

	switch intent {
	case types.IntentRemix:
		c.applyRemix(ctx, result)
	default:
		c.applyGenerate(ctx, result)
	}
}

// applyGenerate populates both variants and leaves the refined one
// active.
func (c *Coordinator) applyGenerate(ctx context.Context, result *types.GenerationResult) {
	if _, err := c.session.Activate(ctx, types.VariantDraft, result.DraftURL); err != nil {
		c.reportLoadFailure(types.VariantDraft, err)
	}

	handle, err := c.session.Activate(ctx, types.VariantRefined, result.RefinedURL)
	if err != nil {
		c.reportLoadFailure(types.VariantRefined, err)
		return
	}

	message := result.Message
	if message == "" {
		message = "Model created successfully"
	}
	c.events.message(MessageBot, "✅ Successfully generated 3D model: "+message)
	c.events.modelActivated(handle)
}

// applyRemix replaces and activates the draft; the refined handle is
// untouched so the remix source stays available.
func (c *Coordinator) applyRemix(ctx context.Context, result *types.GenerationResult) {
	handle, err := c.session.Activate(ctx, types.VariantDraft, result.DraftURL)
	if err != nil {
		c.reportLoadFailure(types.VariantDraft, err)
		return
	}

	c.events.message(MessageBot, "✅ Remix complete! Showing the new draft.")
	c.events.modelActivated(handle)
}

func (c *Coordinator) reportLoadFailure(variant types.ModelVariant, err error) {
	detail := err.Error()
	if f, ok := types.FailureOf(err); ok {
		detail = f.Message
	}
	c.events.message(MessageBot,
		fmt.Sprintf("❌ Could not display the %s model: %s", variant, detail))
}

func (c *Coordinator) uploadFiles(ctx context.Context, files []types.NamedBlob) {
	names := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := c.client.Upload(ctx, file); err != nil {
			c.events.message(MessageSystem, "❌ Upload failed for "+file.Name)
			continue
		}
		names = append(names, file.Name)
	}
	if len(names) > 0 {
		c.events.message(MessageSystem,
			fmt.Sprintf("📎 Uploaded %d file(s): %s", len(names), strings.Join(names, ", ")))
	}
}

// Transcribe consumes a finalized recording, feeds the text back to the
// presentation layer and settles the recorder. The recorder returns to
// idle on every path; a transcription failure never strands it.
func (c *Coordinator) Transcribe(ctx context.Context, audio types.AudioPayload) {
	defer func() {
		if c.recorder != nil {
			c.recorder.Finish()
		}
	}()

	if audio.Empty() {
		c.events.message(MessageSystem, "🎤 Nothing was recorded.")
		return
	}

	text, err := c.client.Transcribe(ctx, audio)
	if err != nil {
		detail := err.Error()
		if f, ok := types.FailureOf(err); ok {
			detail = f.Message
		}
		c.events.message(MessageBot, "❌ Transcription failed: "+detail)
		return
	}

	if c.events.OnTranscript != nil {
		c.events.OnTranscript(text)
	}
}
