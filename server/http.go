package server

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Epistemic-Technology/production-breakdown/internal/breakdown"
	"github.com/Epistemic-Technology/production-breakdown/internal/export"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/internal/uploads"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

// multipart parts above this size spill to temporary files
const maxMultipartMemory = 32 << 20

// BreakdownService is the generate/revise surface the transports call
type BreakdownService interface {
	Generate(ctx context.Context, files []models.UploadedFile) (*models.BreakdownResult, error)
	Revise(ctx context.Context, req breakdown.ReviseRequest) (*models.BreakdownResult, error)
}

// HealthInfo is reported by GET /healthz
type HealthInfo struct {
	Extractor           string `json:"extractor"`
	RasterizerAvailable bool   `json:"rasterizer_available"`
	Provider            string `json:"provider"`
	Sessions            bool   `json:"sessions"`
}

type HTTPOptions struct {
	MaxBodySize int64
	CORSOrigins []string
	Release     bool
}

// ExportRequest is the body of POST /api/export
type ExportRequest struct {
	Breakdown string `json:"breakdown" binding:"required"`
	Filename  string `json:"filename,omitempty"`
}

type httpHandler struct {
	svc      BreakdownService
	uploads  *uploads.Store
	exporter *export.DocxExporter
	health   HealthInfo
	opts     HTTPOptions
	log      logger.Logger
}

// NewHTTPServer builds the gin engine serving the browser API.
func NewHTTPServer(svc BreakdownService, store *uploads.Store, exporter *export.DocxExporter, health HealthInfo, opts HTTPOptions, log logger.Logger) *gin.Engine {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	h := &httpHandler{
		svc:      svc,
		uploads:  store,
		exporter: exporter,
		health:   health,
		opts:     opts,
		log:      log.With("http"),
	}

	engine := gin.New()
	engine.MaxMultipartMemory = maxMultipartMemory
	engine.Use(gin.Recovery())
	engine.Use(h.requestLog())
	engine.Use(corsMiddleware(opts.CORSOrigins))

	engine.GET("/healthz", h.healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		api.POST("/generate", h.generate)
		api.POST("/revise", h.revise)
		api.POST("/export", h.export)
	}
	return engine
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		// the export response is a download
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func (h *httpHandler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Info("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (h *httpHandler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": h.health,
	})
}

func (h *httpHandler) generate(c *gin.Context) {
	if h.opts.MaxBodySize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodySize)
	}

	var headers []*multipart.FileHeader
	form, err := c.MultipartForm()
	switch {
	case err == nil:
		headers = form.File["files"]
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		// no files; the service reports it
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		h.log.Warn("Failed to parse multipart form: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload form"})
		return
	}

	files, err := h.saveUploads(headers)
	if err != nil {
		h.log.Error("Failed to store uploads: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store uploads"})
		return
	}

	result, err := h.svc.Generate(c.Request.Context(), files)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// saveUploads writes each part to upload storage. On failure the files
// already written are removed.
func (h *httpHandler) saveUploads(headers []*multipart.FileHeader) ([]models.UploadedFile, error) {
	files := make([]models.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.uploads.Cleanup(files)
			return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
		}
		saved, err := h.uploads.Save(fh.Filename, fh.Header.Get("Content-Type"), f)
		f.Close()
		if err != nil {
			h.uploads.Cleanup(files)
			return nil, err
		}
		files = append(files, saved)
	}
	return files, nil
}

func (h *httpHandler) revise(c *gin.Context) {
	var req breakdown.ReviseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.svc.Revise(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Breakdown) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "breakdown is required"})
		return
	}
	data, err := h.exporter.ExportBytes(req.Breakdown)
	if err != nil {
		h.log.Error("Export failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export breakdown"})
		return
	}
	name := exportFilename(req.Filename)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, export.MediaTypeDocx, data)
}

// writeError maps a breakdown failure to a status code and a short message.
// The underlying detail is logged only.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed: %v", err)
	} else {
		h.log.Info("Rejected request: %v", err)
	}
	c.JSON(status, gin.H{"error": breakdown.PublicMessage(err)})
}

// StatusForError returns the HTTP status of a breakdown error kind
func StatusForError(err error) int {
	switch breakdown.KindOf(err) {
	case breakdown.KindInput:
		return http.StatusBadRequest
	case breakdown.KindSummarization:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func exportFilename(name string) string {
	name = strings.TrimSuffix(uploads.SanitizeName(name), ".docx")
	if name == "" || name == "upload" {
		name = "production-breakdown"
	}
	return name + ".docx"
}
