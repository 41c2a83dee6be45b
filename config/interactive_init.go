package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// InteractiveInit runs a setup wizard that asks for the node endpoint and the
// database, then writes the resulting config to configPath.
func InteractiveInit(configPath string, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "🚀 Welcome to cellar setup")
	fmt.Fprintln(out, "==========================")
	fmt.Fprintln(out, "Press Enter to use the [default] values shown.")

	reader := bufio.NewReader(in)
	ask := func(prompt, def string) string {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, def)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return def
		}
		return answer
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "⚠️  Configuration file already exists at: %s\n", configPath)
		response := strings.ToLower(ask("Do you want to overwrite it? (y/N)", "n"))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Setup cancelled.")
			return nil
		}
	}

	cfg := Default()

	fmt.Fprintln(out, "\n📡 Node")
	cfg.RPC.URL = ask("CKB node JSON-RPC URL", "http://127.0.0.1:8114")

	fmt.Fprintln(out, "\n💾 Database")
	fmt.Fprintln(out, "  postgres, mysql or sqlite")
	cfg.Database.Driver = strings.ToLower(ask("Driver", cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "sqlite":
		cfg.Database.DSN = ask("Database file", "cellar.db")
	case "mysql":
		host := ask("Database host", "localhost")
		port := ask("Database port", "3306")
		name := ask("Database name", "cellar")
		user := ask("Database user", "root")
		pass := ask("Database password (will be stored in config)", "")
		cfg.Database.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True", user, pass, host, port, name)
	default:
		host := ask("Database host", "localhost")
		port := ask("Database port", "5432")
		name := ask("Database name", "cellar")
		user := ask("Database user", "postgres")
		pass := ask("Database password (will be stored in config)", "")
		cfg.Database.DSN = fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable", host, port, name, user, pass)
	}

	fmt.Fprintln(out, "\n📊 Status")
	if port, err := strconv.Atoi(ask("Status server port (0 disables it)", strconv.Itoa(cfg.Web.Port))); err == nil {
		cfg.Web.Port = port
		cfg.Web.Enabled = port > 0
	}
	cfg.Dashboard.Type = ask("Dashboard (terminal, none)", "terminal")

	if err := cfg.validate(); err != nil {
		return err
	}
	if err := writeConfig(configPath, cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n✅ Configuration saved to: %s\n", configPath)
	fmt.Fprintf(out, "   cellar sync --config %s\n", configPath)
	return nil
}

func writeConfig(configPath string, cfg *Config) error {
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
