// Package server is the HTTP boundary: it turns form posts into render
// requests and serves the exposed artifacts.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/introspection"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aretw0/mahina/pkg/core"
	"github.com/aretw0/mahina/pkg/pipeline"
	"github.com/aretw0/mahina/pkg/retention"
)

// DefaultMaxUploadBytes caps a /generate request body.
const DefaultMaxUploadBytes = 15 << 20

// workspaceIDKey holds the render's workspace id on the gin context.
const workspaceIDKey = "request_id"

// Renderer runs one render.
type Renderer interface {
	Run(ctx context.Context, req core.Request) (*pipeline.Result, error)
}

// Handler serves the HTTP API.
type Handler struct {
	Renderer       Renderer
	Store          retention.Store
	State          introspection.Introspectable
	MaxUploadBytes int64
	PublicPrefix   string
	Logger         *slog.Logger
	Now            func() time.Time
}

// NewHandler creates a Handler with defaults for unset limits.
func NewHandler(r Renderer, store retention.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Renderer:       r,
		Store:          store,
		MaxUploadBytes: DefaultMaxUploadBytes,
		PublicPrefix:   "/tmp",
		Logger:         logger,
		Now:            time.Now,
	}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestID())
	router.MaxMultipartMemory = h.MaxUploadBytes
	h.RegisterRoutes(&router.RouterGroup)
	return router
}

// RegisterRoutes mounts the API on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/generate", h.generate)
	rg.GET(strings.TrimRight(h.PublicPrefix, "/")+"/:id/:name", h.artifact)
	rg.GET("/health", h.health)
	rg.GET("/debug/state", h.debugState)
}

func (h *Handler) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Request = c.Request.WithContext(pipeline.ContextWithTraceID(c.Request.Context(), id))

		start := time.Now()
		c.Next()
		attrs := []any{
			"trace_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if ws := c.GetString(workspaceIDKey); ws != "" {
			attrs = append(attrs, "request_id", ws)
		}
		h.Logger.Debug("http request", attrs...)
	}
}

// GenerateResponse is the body of a successful /generate.
type GenerateResponse struct {
	ID        string     `json:"id"`
	Links     core.Links `json:"links"`
	ExpiresAt time.Time  `json:"expires_at"`
	Degraded  []string   `json:"degraded,omitempty"`
}

func (h *Handler) generate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	if err := parseForm(c.Request, h.MaxUploadBytes); err != nil {
		h.formError(c, err)
		return
	}

	background, err := readUpload(c, "background")
	if err != nil {
		h.formError(c, err)
		return
	}

	options := c.PostFormArray("options")
	options = append(options, c.PostFormArray("options[]")...)

	req, unknown, err := core.ParseRequest(core.RequestInput{
		Month:      c.PostForm("startMonth"),
		Year:       c.PostForm("startYear"),
		Station:    c.PostForm("station"),
		CustomText: c.PostForm("customText"),
		Region:     c.PostForm("region"),
		Options:    options,
		Background: background,
	})
	if err != nil {
		var verr *core.ValidationError
		body := gin.H{"error": err.Error()}
		if errors.As(err, &verr) {
			body["field"] = verr.Field
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}
	if len(unknown) > 0 {
		h.Logger.Debug("ignoring unknown options", "options", unknown)
	}

	// A render runs to completion even if the client goes away; the stage
	// timeouts still bound it.
	res, err := h.Renderer.Run(context.WithoutCancel(c.Request.Context()), req)
	if res != nil && res.ID != "" {
		c.Set(workspaceIDKey, res.ID)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if core.IsValidation(err) {
			status = http.StatusBadRequest
		}
		body := gin.H{"error": err.Error()}
		if detail := core.Detail(err); detail != "" {
			body["detail"] = detail
		}
		var stageErr *core.StageError
		if errors.As(err, &stageErr) {
			body["stage"] = stageErr.Stage.String()
		}
		if res != nil && res.ID != "" {
			body["id"] = res.ID
		}
		c.JSON(status, body)
		return
	}

	resp := GenerateResponse{ID: res.ID, Links: res.Links, ExpiresAt: res.ExpiresAt}
	for _, src := range res.Degraded {
		resp.Degraded = append(resp.Degraded, string(src))
	}
	c.JSON(http.StatusOK, resp)
}

func parseForm(r *http.Request, maxMemory int64) error {
	err := r.ParseMultipartForm(maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

// readUpload returns the bytes of an optional uploaded file.
func readUpload(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return readFileHeader(fh)
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) formError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "upload exceeds " + humanize.IBytes(uint64(tooLarge.Limit)),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form: " + err.Error()})
}

func (h *Handler) artifact(c *gin.Context) {
	name := c.Param("name")
	if !slices.Contains(core.ArtifactNames, name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	entry, err := h.Store.Get(c.Request.Context(), c.Param("id"), h.Now())
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrExpired) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.Logger.Error("exposure lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.File(filepath.Join(entry.Path, name))
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) debugState(c *gin.Context) {
	if h.State == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, h.State.State())
}
