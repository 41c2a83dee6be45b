package web

import (
	"context"
	"time"

	"cellar/database"
	unifiederrors "cellar/errors"
	"cellar/syncer"
)

// SyncStateProvider exposes the sync loop cursor
type SyncStateProvider interface {
	Snapshot() syncer.State
}

// HealthProvider reports database reachability
type HealthProvider interface {
	IsHealthy() bool
	GetLastHealthCheck() time.Time
	LastError() error
}

// StatisticsFunc collects store row counts
type StatisticsFunc func(ctx context.Context) (*database.SyncStatistics, error)

// Dependencies are the read-only sources the server reports on
type Dependencies struct {
	Sync       SyncStateProvider
	Health     HealthProvider
	Statistics StatisticsFunc
	Errors     *unifiederrors.UnifiedErrorSystem
}

// HealthResponse is the /healthz body
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  bool      `json:"database"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// StatusResponse is the /api/status body and the websocket "status" payload
type StatusResponse struct {
	Sync       syncer.State             `json:"sync"`
	Store      *database.SyncStatistics `json:"store,omitempty"`
	StoreError string                   `json:"store_error,omitempty"`
	Behind     uint64                   `json:"behind"`
	Synced     bool                     `json:"synced"`
	Uptime     string                   `json:"uptime"`
}

// ErrorsResponse is the /api/errors body
type ErrorsResponse struct {
	Minutes    int                          `json:"minutes"`
	Statistics map[string]interface{}       `json:"statistics"`
	Recent     []unifiederrors.UnifiedError `json:"recent"`
}

// Update is one websocket message
type Update struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

func newStatusResponse(state syncer.State, startTime time.Time) StatusResponse {
	resp := StatusResponse{
		Sync:   state,
		Uptime: time.Since(startTime).Truncate(time.Second).String(),
	}
	// NextHeight is one past the last stored block
	if state.Tip+1 > state.NextHeight {
		resp.Behind = state.Tip + 1 - state.NextHeight
	}
	resp.Synced = resp.Behind == 0 && state.NextHeight > 0
	return resp
}
