package gateway

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"meshbot/config"
)

// NewRouter constructs a Gin engine with the gateway routes registered.
func NewRouter(svc *Service) *gin.Engine {
	r := gin.New()
	// Minimal middleware: recovery; logger optional to reduce verbosity
	r.Use(gin.Recovery())

	registerGenerationRoutes(r, svc)
	registerHealthRoutes(r)

	// Generated models are addressed by URL only; the frontend never
	// sees server-side paths.
	r.Static(config.ModelsRoute, svc.SavePath())
	return r
}

func registerHealthRoutes(r *gin.Engine) {
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
}

func registerGenerationRoutes(r *gin.Engine, svc *Service) {
	g := r.Group("/api")
	g.POST("/generate", handleGenerate(svc))
	g.POST("/remix", handleRemix(svc))
	g.POST("/transcribe", handleTranscribe(svc))
	g.POST("/upload", handleUpload(svc))
}

// GenerateRequest mirrors the original txtgen3d contract.
type GenerateRequest struct {
	Text     string `json:"text" binding:"required"`
	ArtStyle string `json:"artstyle"`
	SavePath string `json:"save_path"`
}

// RemixBody carries the staged remix pipeline parameters.
type RemixBody struct {
	GLBPath      string `json:"glb_path" binding:"required"`
	ImagesOutput string `json:"images_output"`
	Text         string `json:"text" binding:"required"`
	ImageOutput  string `json:"image_output"`
	ThreeDOutput string `json:"threeD_output"`
}

func handleGenerate(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}

		log.Printf("📥 Generate request: %q", req.Text)
		message, err := svc.Generate(c.Request.Context(), req.Text, req.ArtStyle, req.SavePath)
		if err != nil {
			log.Printf("❌ Generation failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "message": message})
	}
}

func handleRemix(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RemixBody
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}

		log.Printf("📥 Remix request: %q against %s", req.Text, req.GLBPath)
		message, err := svc.Remix(c.Request.Context(), RemixRequest{
			GLBPath:      req.GLBPath,
			ImagesOutput: req.ImagesOutput,
			Text:         req.Text,
			ImageOutput:  req.ImageOutput,
			ThreeDOutput: req.ThreeDOutput,
		})
		if err != nil {
			log.Printf("❌ Remix failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "message": message})
	}
}

func handleTranscribe(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("audio")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "audio file is required"})
			return
		}

		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}
		defer f.Close()

		audio, err := io.ReadAll(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}

		text, err := svc.Transcribe(c.Request.Context(), audio, header.Filename)
		if err != nil {
			log.Printf("❌ Transcription failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "text": text})
	}
}

func handleUpload(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "file is required"})
			return
		}

		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}

		filename, err := svc.SaveUpload(c.Request.Context(), header.Filename, data)
		if err != nil {
			log.Printf("❌ Upload failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "filename": filename})
	}
}
