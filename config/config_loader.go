package config

import (
	"fmt"
	"os"
)

// InitCommand writes the default configuration to configPath, refusing to
// replace an existing file unless force is set.
func InitCommand(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}
	cfg := Default()
	cfg.Database.DSN = "host=localhost port=5432 dbname=cellar user=postgres sslmode=disable"
	cfg.RPC.URL = "http://127.0.0.1:8114"
	return writeConfig(configPath, cfg)
}
