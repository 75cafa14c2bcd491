package api

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"hwgrader/internal/extract"
	"hwgrader/internal/models"
	"hwgrader/internal/service/assistant"
	"hwgrader/internal/worker"
)

//go:embed web/index.html
var indexHTML []byte

const (
	defaultMaxUploadBytes = 10 << 20 // 10 MB per file
	multipartOverhead     = 1 << 20
)

// Assistant is the grading workflow behind the routes.
type Assistant interface {
	Evaluate(ctx context.Context, question, student *models.Document) (*models.EvaluationSession, error)
	Ask(ctx context.Context, sessionID, question string) (models.ChatReply, error)
	Session(ctx context.Context, sessionID string) (*models.EvaluationSession, error)
	Discard(ctx context.Context, sessionID string) error
}

// Dispatcher runs requests on the bounded worker pool.
type Dispatcher interface {
	Submit(ctx context.Context, key string, task worker.Task) error
}

// Options tunes a Handler.
type Options struct {
	MaxUploadBytes int64
	Logger         *slog.Logger
	// HealthCheck, when set, is consulted by /healthz.
	HealthCheck func(ctx context.Context) error
}

// Handler wires HTTP routes to the assistant service through the worker pool.
type Handler struct {
	assistant Assistant
	workers   Dispatcher
	maxUpload int64
	health    func(ctx context.Context) error
	log       *slog.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(asst Assistant, workers Dispatcher, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		assistant: asst,
		workers:   workers,
		maxUpload: opts.MaxUploadBytes,
		health:    opts.HealthCheck,
		log:       opts.Logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.index)
	router.GET("/healthz", h.healthz)

	api := router.Group("/api")
	api.POST("/evaluations", h.createEvaluation)
	api.GET("/evaluations/:id", h.getEvaluation)
	api.POST("/evaluations/:id/ask", h.askQuestion)
	api.DELETE("/evaluations/:id", h.deleteEvaluation)
}

func (h *Handler) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (h *Handler) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.log.Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) createEvaluation(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.maxUpload+multipartOverhead)
	if err := c.Request.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	question, status, err := h.readUpload(c, "question_file")
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	student, status, err := h.readUpload(c, "student_file")
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if question == nil || student == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": assistant.ErrMissingDocuments.Error()})
		return
	}

	var sess *models.EvaluationSession
	err = h.workers.Submit(c.Request.Context(), c.ClientIP(), func(ctx context.Context) error {
		var err error
		sess, err = h.assistant.Evaluate(ctx, question, student)
		return err
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":    sess.ID,
		"score":         sess.Evaluation.Score,
		"max_score":     sess.Evaluation.MaxScore,
		"feedback":      sess.Evaluation.Feedback,
		"outcome":       sess.Evaluation.Outcome,
		"question_text": sess.QuestionText,
		"student_text":  sess.StudentText,
		"expires_at":    sess.ExpiresAt,
	})
}

func (h *Handler) getEvaluation(c *gin.Context) {
	sess, err := h.assistant.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) deleteEvaluation(c *gin.Context) {
	if err := h.assistant.Discard(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *Handler) askQuestion(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// the task may outlive this request if the client goes away
	id := c.Param("id")
	var reply models.ChatReply
	err := h.workers.Submit(c.Request.Context(), c.ClientIP(), func(ctx context.Context) error {
		var err error
		reply, err = h.assistant.Ask(ctx, id, req.Question)
		return err
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// readUpload returns nil without error when the field is absent.
func (h *Handler) readUpload(c *gin.Context, field string) (*models.Document, int, error) {
	file, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, http.StatusOK, nil
		}
		return nil, http.StatusBadRequest, errors.New("invalid upload " + field)
	}
	if file.Size > h.maxUpload {
		return nil, http.StatusRequestEntityTooLarge, errors.New(field + " too large")
	}
	data, err := readFileHeader(file, h.maxUpload)
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("read " + field + " failed")
	}
	if len(data) == 0 {
		return nil, http.StatusOK, nil
	}
	return &models.Document{
		FileName:  filepath.Base(file.Filename),
		MediaType: file.Header.Get("Content-Type"),
		Data:      data,
	}, http.StatusOK, nil
}

func readFileHeader(file *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
	case errors.Is(err, assistant.ErrNoEvaluation):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, assistant.ErrMissingDocuments),
		errors.Is(err, assistant.ErrEmptyQuestion),
		errors.Is(err, extract.ErrInvalidText),
		errors.Is(err, extract.ErrUnsupportedMedia),
		errors.Is(err, extract.ErrEmptyDocument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, extract.ErrNoRecognizer):
		h.log.Error("extractor misconfigured", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "text extraction is not configured"})
	case errors.Is(err, assistant.ErrExtraction):
		h.log.Warn("text extraction failed", "err", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		c.Status(499)
	default:
		h.log.Error("request failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
