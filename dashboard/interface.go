package dashboard

import (
	"context"
)

// Dashboard is an interactive progress display driven by the sync state
type Dashboard interface {
	// Start begins rendering until Stop or ctx ends
	Start(ctx context.Context) error

	// Stop gracefully shuts down the display
	Stop()
}

// NullDashboard is a no-op dashboard implementation
type NullDashboard struct{}

func (n *NullDashboard) Start(ctx context.Context) error { return nil }
func (n *NullDashboard) Stop()                           {}
