package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellar/config"
	"cellar/database"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"CELLAR_DB_DRIVER", "CELLAR_DSN", "CELLAR_RPC_URL", "DB_MAX_OPEN_CONNS", "RPC_RATE_LIMIT", "DASHBOARD_TYPE", "WEB_PORT", "WEB_ENABLED", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cellar dev\n", out)
}

func TestInitCommand(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cellar.toml")

	out, err := execute(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8114", cfg.RPC.URL)

	_, err = execute(t, "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestDestroyRequiresConfirmation(t *testing.T) {
	_, err := execute(t, "destroy", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "--yes")
}

func TestDestroyDropsTables(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cellar.db")
	path := filepath.Join(dir, "cellar.toml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`
[database]
driver = "sqlite"
dsn = %q

[rpc]
url = "http://127.0.0.1:8114"

[web]
enabled = false
`, dbPath)), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	db, err := database.Open(context.Background(), cfg.Database)
	require.NoError(t, err)
	require.NoError(t, database.CreateSchema(db))
	require.True(t, database.HasSchema(db))
	require.NoError(t, database.Close(db))

	_, err = execute(t, "destroy", "--config", path, "--yes")
	require.NoError(t, err)

	db, err = database.Open(context.Background(), cfg.Database)
	require.NoError(t, err)
	defer database.Close(db)
	assert.False(t, database.HasSchema(db))
}

func TestUnknownConfigIsRejected(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cellar.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\ndriver = \"oracle\"\n"), 0o644))

	_, err := execute(t, "sync", "--config", path)
	assert.ErrorContains(t, err, "database.driver")
}
