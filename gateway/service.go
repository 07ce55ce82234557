package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"meshbot/common"
	"meshbot/config"
	"meshbot/studio"
)

// Service runs the generation pipelines behind the HTTP surface: it
// drives the upstream studio task API, writes the conventionally named
// model files under the save path, and feeds the optional cache and S3
// mirror.
type Service struct {
	studio   *studio.Client
	openai   openai.Client
	cache    *Cache
	mirror   *common.S3
	bucket   string
	prefix   string
	savePath string
}

// NewServiceFromEnv assembles the service. The cache and the S3 mirror
// are optional; each is skipped (and logged as skipped) when its env is
// absent.
func NewServiceFromEnv(ctx context.Context) *Service {
	savePath := os.Getenv("SAVE_PATH")
	if savePath == "" {
		savePath = config.DefaultSavePath
	}

	svc := &Service{
		studio:   studio.NewClientFromEnv(),
		openai:   openai.NewClient(option.WithAPIKey(os.Getenv("OPENAI_API_KEY"))),
		cache:    NewCacheFromEnv(),
		savePath: savePath,
	}
	if svc.cache == nil {
		log.Printf("Result cache not configured; every request runs the full pipeline")
	}

	svc.mirror, svc.bucket, svc.prefix = initializeMirror(ctx)
	if svc.mirror == nil {
		log.Printf("S3 not configured; skipping asset mirroring")
	}

	return svc
}

// initializeMirror returns an S3 client and target bucket/prefix if configured via env.
// Required: S3_BUCKET. Optional: S3_REGION, S3_PROFILE, S3_PREFIX, S3_USE_PATH_STYLE=true
func initializeMirror(ctx context.Context) (*common.S3, string, string) {
	bucket := strings.TrimSpace(os.Getenv("S3_BUCKET"))
	if bucket == "" {
		return nil, "", ""
	}

	cfg := common.S3Config{
		Region:       strings.TrimSpace(os.Getenv("S3_REGION")),
		Profile:      strings.TrimSpace(os.Getenv("S3_PROFILE")),
		UsePathStyle: strings.EqualFold(strings.TrimSpace(os.Getenv("S3_USE_PATH_STYLE")), "true"),
	}
	client, err := common.NewS3(ctx, cfg)
	if err != nil {
		log.Printf("Warning: failed to init S3 client: %v (mirroring disabled)", err)
		return nil, "", ""
	}

	prefix := strings.TrimSpace(os.Getenv("S3_PREFIX"))
	if prefix != "" {
		prefix = strings.Trim(prefix, "/") + "/"
	}
	return client, bucket, prefix
}

// SavePath returns the directory generated models are written to.
func (s *Service) SavePath() string { return s.savePath }

// Generate runs the two-phase text-to-3D pipeline: preview task for the
// draft model, then a refine task. Both files must exist at the end for
// the run to count as a success.
func (s *Service) Generate(ctx context.Context, text, artstyle, savePath string) (string, error) {
	style := config.ResolveArtStyle(artstyle)
	dir := s.resolveSavePath(savePath)

	key := CacheKey("generate", text, style)
	if s.cacheHit(ctx, key, dir, config.DraftModelFile, config.RefinedModelFile) {
		log.Printf("♻️  Cache hit for prompt %q", text)
		return "Rendering complete.", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create save path: %w", err)
	}

	draftPath := filepath.Join(dir, config.DraftModelFile)
	refinedPath := filepath.Join(dir, config.RefinedModelFile)

	log.Printf("🎨 Generating draft for prompt %q (style: %s)", text, style)
	previewID, err := s.studio.CreateTextTo3D(ctx, text, style)
	if err != nil {
		return "", fmt.Errorf("failed to create preview task: %w", err)
	}
	previewTask, err := s.studio.Await(ctx, previewID)
	if err != nil {
		return "", fmt.Errorf("preview task did not succeed: %w", err)
	}
	if err := s.studio.DownloadGLB(ctx, previewTask, draftPath); err != nil {
		return "", fmt.Errorf("failed to download draft model: %w", err)
	}

	log.Printf("✨ Refining draft (task %s)", previewID)
	refineID, err := s.studio.CreateRefine(ctx, previewID)
	if err != nil {
		return "", fmt.Errorf("failed to create refine task: %w", err)
	}
	refineTask, err := s.studio.Await(ctx, refineID)
	if err != nil {
		return "", fmt.Errorf("refine task did not succeed: %w", err)
	}
	if err := s.studio.DownloadGLB(ctx, refineTask, refinedPath); err != nil {
		return "", fmt.Errorf("failed to download refined model: %w", err)
	}

	if !fileExists(draftPath) || !fileExists(refinedPath) {
		return "", fmt.Errorf("rendering finished but model files are missing")
	}

	s.cacheStore(ctx, key, "Rendering complete.", draftPath, refinedPath)
	s.mirrorFiles(ctx, draftPath, refinedPath)

	log.Printf("✅ Generation complete for prompt %q", text)
	return "Rendering complete.", nil
}

// RemixRequest carries the staged-pipeline parameters for a remix.
type RemixRequest struct {
	GLBPath      string
	ImagesOutput string
	Text         string
	ImageOutput  string
	ThreeDOutput string
}

// Remix runs the staged pipeline: render views of the reference model,
// edit them into a guide image with the prompt, then rebuild a 3D draft
// from the guide image.
func (s *Service) Remix(ctx context.Context, req RemixRequest) (string, error) {
	refPath := s.resolveReference(req.GLBPath)
	glb, err := os.ReadFile(refPath)
	if err != nil {
		return "", fmt.Errorf("reference model unavailable: %w", err)
	}

	log.Printf("📷 Rendering views of %s", path.Base(refPath))
	viewsID, err := s.studio.CreateRenderViews(ctx, glb)
	if err != nil {
		return "", fmt.Errorf("failed to create render-views task: %w", err)
	}
	viewsTask, err := s.studio.Await(ctx, viewsID)
	if err != nil {
		return "", fmt.Errorf("render-views task did not succeed: %w", err)
	}

	viewsDir := filepath.Join(s.savePath, sanitizeSubpath(req.ImagesOutput, config.RemixViewsDir))
	viewPaths, err := s.studio.DownloadImages(ctx, viewsTask, viewsDir)
	if err != nil {
		return "", fmt.Errorf("failed to download rendered views: %w", err)
	}
	if len(viewPaths) == 0 {
		return "", fmt.Errorf("render-views task produced no images")
	}

	log.Printf("🖌️  Editing views into a guide image")
	guidePath := filepath.Join(s.savePath, sanitizeSubpath(req.ImageOutput, config.RemixGuideImage))
	guide, err := s.editImage(ctx, req.Text, viewPaths)
	if err != nil {
		return "", fmt.Errorf("guide image generation failed: %w", err)
	}
	if err := os.WriteFile(guidePath, guide, 0o644); err != nil {
		return "", fmt.Errorf("failed to write guide image: %w", err)
	}

	log.Printf("🧱 Rebuilding 3D draft from guide image")
	remixID, err := s.studio.CreateImageTo3D(ctx, guide)
	if err != nil {
		return "", fmt.Errorf("failed to create image-to-3d task: %w", err)
	}
	remixTask, err := s.studio.Await(ctx, remixID)
	if err != nil {
		return "", fmt.Errorf("image-to-3d task did not succeed: %w", err)
	}

	outPath := s.remixOutputPath(req.ThreeDOutput)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create remix output path: %w", err)
	}
	if err := s.studio.DownloadGLB(ctx, remixTask, outPath); err != nil {
		return "", fmt.Errorf("failed to download remixed model: %w", err)
	}

	s.mirrorFiles(ctx, outPath)

	log.Printf("✅ Remix complete")
	return "Remix complete.", nil
}

// editImage sends the first rendered view plus the prompt through the
// image-edit model and returns the produced PNG.
func (s *Service) editImage(ctx context.Context, prompt string, viewPaths []string) ([]byte, error) {
	view, err := os.ReadFile(viewPaths[0])
	if err != nil {
		return nil, err
	}

	res, err := s.openai.Images.Edit(ctx, openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(view), "view.png", "image/png"),
		},
		Prompt: prompt,
		Model:  openai.ImageModelGPTImage1,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Data) == 0 || res.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image edit returned no image data")
	}
	return base64.StdEncoding.DecodeString(res.Data[0].B64JSON)
}

// Transcribe converts captured audio to text via the speech model.
func (s *Service) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	res, err := s.openai.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), filename, "audio/wav"),
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// SaveUpload persists a user-provided reference file under the save path
// and mirrors it if configured. Only the basename of the client-supplied
// name is honored.
func (s *Service) SaveUpload(ctx context.Context, filename string, data []byte) (string, error) {
	uploadDir := filepath.Join(s.savePath, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", err
	}

	name := filepath.Base(filepath.Clean(filename))
	if name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("upload_%d", time.Now().UnixNano())
	}

	dest := filepath.Join(uploadDir, name)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}

	s.mirrorFiles(ctx, dest)
	return name, nil
}

func (s *Service) cacheHit(ctx context.Context, key, dir string, files ...string) bool {
	if s.cache == nil {
		return false
	}
	_, found, err := s.cache.Lookup(ctx, key)
	if err != nil {
		log.Printf("Warning: cache lookup failed: %v", err)
		return false
	}
	if !found {
		return false
	}
	for _, f := range files {
		if !fileExists(filepath.Join(dir, f)) {
			return false
		}
	}
	return true
}

func (s *Service) cacheStore(ctx context.Context, key, message string, files ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Store(ctx, key, &CachedResult{Message: message, Files: files}); err != nil {
		log.Printf("Warning: cache store failed: %v", err)
	}
}

func (s *Service) mirrorFiles(ctx context.Context, paths ...string) {
	if s.mirror == nil {
		return
	}
	for _, p := range paths {
		uctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := s.mirror.PutModelFile(uctx, s.bucket, s.prefix, p)
		cancel()
		if err != nil {
			log.Printf("  S3 mirror failed for %s: %v", path.Base(p), err)
			continue
		}
	}
}

// resolveSavePath confines a client-supplied save path to the service
// directory; anything suspicious falls back to the default.
func (s *Service) resolveSavePath(requested string) string {
	cleaned := filepath.Clean(requested)
	if requested == "" || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return s.savePath
	}
	return cleaned
}

// remixOutputPath resolves the client-supplied remix destination under
// the save path, defaulting to the conventional remix filename.
func (s *Service) remixOutputPath(requested string) string {
	return filepath.Join(s.savePath, sanitizeSubpath(requested, config.RemixModelFile))
}

// sanitizeSubpath confines a client-supplied relative path to a single
// path element under the save directory.
func sanitizeSubpath(requested, fallback string) string {
	cleaned := filepath.Clean(requested)
	if requested == "" || filepath.IsAbs(cleaned) || strings.Contains(cleaned, "..") {
		return fallback
	}
	return cleaned
}

// resolveReference maps a reference given as URL or path onto the local
// model file it names.
func (s *Service) resolveReference(ref string) string {
	base := path.Base(ref)
	return filepath.Join(s.savePath, base)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
