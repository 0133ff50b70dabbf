package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"PriceScanner/internal/domain"
)

// ScrapeController is the run coordinator as seen by the HTTP layer.
type ScrapeController interface {
	Trigger(ctx context.Context, retailerID string) error
	Status() domain.ScrapeJobStatus
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	scrapes ScrapeController
	metrics http.Handler
}

// NewHandler creates a new HTTP handler. metrics may be nil.
func NewHandler(scrapes ScrapeController, metrics http.Handler) *Handler {
	return &Handler{scrapes: scrapes, metrics: metrics}
}

type scrapeRequest struct {
	Retailer string `json:"retailer"`
}

// HealthCheck returns the health status of the service
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pricescanner",
	})
}

// ScrapeStatus returns the job status snapshot
func (h *Handler) ScrapeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scrapes.Status())
}

// TriggerScrape starts a run for one retailer, or all when none is given.
// The run continues after the response is written.
func (h *Handler) TriggerScrape(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	err := h.scrapes.Trigger(c.Request.Context(), req.Retailer)
	switch {
	case errors.Is(err, domain.ErrUnknownRetailer):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error":  err.Error(),
			"status": h.scrapes.Status(),
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, h.scrapes.Status())
	}
}

// Metrics serves the Prometheus exposition
func (h *Handler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.metrics.ServeHTTP(c.Writer, c.Request)
}
