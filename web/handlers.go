package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cellar/syncer"
)

const (
	defaultErrorWindow = 60
	maxErrorWindow     = 24 * 60
)

// Handlers contains all HTTP handlers
type Handlers struct {
	deps      Dependencies
	startTime time.Time
}

// NewHandlers creates new handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		deps:      deps,
		startTime: time.Now(),
	}
}

// HandleHealthz answers 200 while the database is reachable and 503 otherwise
func (h *Handlers) HandleHealthz(c *gin.Context) {
	if h.deps.Health == nil {
		c.JSON(http.StatusOK, HealthResponse{Status: "ok", Database: true})
		return
	}

	resp := HealthResponse{
		Status:    "ok",
		Database:  h.deps.Health.IsHealthy(),
		CheckedAt: h.deps.Health.GetLastHealthCheck(),
	}
	if err := h.deps.Health.LastError(); err != nil {
		resp.Error = err.Error()
	}
	if !resp.Database {
		resp.Status = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleStatus returns the sync cursor plus store counts
func (h *Handlers) HandleStatus(c *gin.Context) {
	resp := h.status(c.Request.Context())
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) status(ctx context.Context) StatusResponse {
	var state syncer.State
	if h.deps.Sync != nil {
		state = h.deps.Sync.Snapshot()
	}
	resp := newStatusResponse(state, h.startTime)

	if h.deps.Statistics != nil {
		stats, err := h.deps.Statistics(ctx)
		if err != nil {
			resp.StoreError = err.Error()
		} else {
			resp.Store = stats
		}
	}
	return resp
}

// HandleErrors returns error statistics and the errors seen in the last ?minutes= (default 60)
func (h *Handlers) HandleErrors(c *gin.Context) {
	minutes := defaultErrorWindow
	if raw := c.Query("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxErrorWindow {
			c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must be between 1 and 1440"})
			return
		}
		minutes = n
	}

	c.JSON(http.StatusOK, ErrorsResponse{
		Minutes:    minutes,
		Statistics: h.deps.Errors.GetStatistics(),
		Recent:     h.deps.Errors.GetRecentErrors(minutes),
	})
}
