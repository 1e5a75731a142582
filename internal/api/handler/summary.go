package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/voicelog/internal/prompts"
	"github.com/timmy/voicelog/internal/service"
)

// SummaryHandler exposes summarization directly, bypassing the job pipeline.
type SummaryHandler struct {
	summarizer service.Summarizer
}

// NewSummaryHandler creates a new summary handler.
// Parameters:
//   - summarizer: summary client instance.
// Returns:
//   - *SummaryHandler: initialized handler.
func NewSummaryHandler(summarizer service.Summarizer) *SummaryHandler {
	return &SummaryHandler{summarizer: summarizer}
}

// SummarizeRequest is the body for the standalone summary endpoint.
type SummarizeRequest struct {
	Text        string `json:"text" binding:"required"`
	SummaryType string `json:"summary_type"`
}

// Summarize handles POST /api/v1/summary.
func (h *SummaryHandler) Summarize(c *gin.Context) {
	var req SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if req.SummaryType != "" && !prompts.ValidType(req.SummaryType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown summary type: " + req.SummaryType,
		})
		return
	}

	summary, err := h.summarizer.Summarize(c.Request.Context(), req.Text, req.SummaryType)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Summarization failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":      summary,
		"summary_type": req.SummaryType,
	})
}
