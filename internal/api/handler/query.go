package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/voicelog/internal/domain"
	"github.com/timmy/voicelog/internal/repository"
	"github.com/timmy/voicelog/internal/service"
)

// QueryHandler handles query and log retrieval endpoints.
type QueryHandler struct {
	queryService *service.QueryService
	logRepo      *repository.LogEntryRepository
}

// NewQueryHandler creates a new query handler.
// Parameters:
//   - queryService: query service instance.
//   - logRepo: log entry repository for listing and latest lookups.
// Returns:
//   - *QueryHandler: initialized handler.
func NewQueryHandler(queryService *service.QueryService, logRepo *repository.LogEntryRepository) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		logRepo:      logRepo,
	}
}

// Answer handles GET /api/v1/query.
// Returns 404 when the store is empty, so clients can distinguish "nothing
// recorded yet" from "nothing relevant".
func (h *QueryHandler) Answer(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'q' is required",
		})
		return
	}

	result, err := h.queryService.Answer(c.Request.Context(), query)
	if err != nil {
		if errors.Is(err, domain.ErrNoLogsAvailable) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No logs recorded yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Query failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Latest handles GET /api/v1/logs/latest.
func (h *QueryHandler) Latest(c *gin.Context) {
	entry, err := h.logRepo.Latest(c.Request.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No logs recorded yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entry)
}

// List handles GET /api/v1/logs.
func (h *QueryHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := h.logRepo.ListNewestFirst(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
		"limit":   limit,
		"offset":  offset,
	})
}
