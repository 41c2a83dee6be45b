package dashboard

import (
	"fmt"

	"cellar/config"
	"cellar/logger"
	"cellar/terminal"
)

// DashboardType represents the type of dashboard to create
type DashboardType string

const (
	DashboardTypeTerminal DashboardType = "terminal"
	DashboardTypeNone     DashboardType = "none"
)

var log = logger.New("Dashboard")

// CreateDashboard creates a dashboard based on the configuration
func CreateDashboard(cfg config.DashboardConfig, source terminal.StateSource) (Dashboard, error) {
	switch DashboardType(cfg.Type) {
	case DashboardTypeTerminal:
		log.Debug("CreateDashboard", "creating terminal progress indicator")
		return terminal.NewProgressIndicator(source), nil

	case DashboardTypeNone, "":
		return &NullDashboard{}, nil

	default:
		return nil, fmt.Errorf("unknown dashboard type: %s", cfg.Type)
	}
}
