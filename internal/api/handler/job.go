package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/voicelog/internal/domain"
	"github.com/timmy/voicelog/internal/prompts"
	"github.com/timmy/voicelog/internal/service"
)

// maxUploadBytes caps accepted audio payloads at 100 MB.
const maxUploadBytes = 100 << 20

var allowedAudioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
}

// JobHandler handles audio upload and job lifecycle endpoints.
type JobHandler struct {
	scheduler *service.JobScheduler
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - scheduler: job scheduler instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(scheduler *service.JobScheduler) *JobHandler {
	return &JobHandler{scheduler: scheduler}
}

// Upload handles POST /api/v1/logs.
// Accepts a multipart "file" field with the audio payload and an optional
// "summary_type" field. Returns 202 with the admitted job, or 429 when the
// admission ceiling is reached.
func (h *JobHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing file field: " + err.Error(),
		})
		return
	}

	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File too large",
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedAudioExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unsupported audio format: " + ext,
		})
		return
	}

	summaryType := c.PostForm("summary_type")
	if summaryType != "" && !prompts.ValidType(summaryType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown summary type: " + summaryType,
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to open upload: " + err.Error(),
		})
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read upload: " + err.Error(),
		})
		return
	}

	job, err := h.scheduler.Submit(c.Request.Context(), &service.SubmitRequest{
		SourceName:  filepath.Base(fileHeader.Filename),
		ContentType: fileHeader.Header.Get("Content-Type"),
		Audio:       audio,
		SummaryType: summaryType,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCapacityExceeded) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many active jobs, try again later",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Submission failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// GetStatus handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetStatus(c *gin.Context) {
	job, err := h.scheduler.GetStatus(c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

// Cancel handles DELETE /api/v1/jobs/:id.
// Cancellation is cooperative: terminal jobs are returned unchanged.
func (h *JobHandler) Cancel(c *gin.Context) {
	job, err := h.scheduler.Cancel(c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

// Acknowledge handles POST /api/v1/jobs/:id/ack.
// Removes a terminal job from the registry.
func (h *JobHandler) Acknowledge(c *gin.Context) {
	err := h.scheduler.Acknowledge(c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}
