package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"cellar/config"
	"cellar/dashboard"
	"cellar/database"
	unifiederrors "cellar/errors"
	"cellar/logger"
	"cellar/processors"
	"cellar/rpc"
	"cellar/syncer"
	"cellar/web"
)

// set by -ldflags "-X main.version=..."
var version = "dev"

const healthCheckInterval = 30 * time.Second

var log = logger.New("Cellar")

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "cellar",
		Short:         "CKB chain indexer",
		Long:          "cellar follows a CKB node over JSON-RPC and mirrors its canonical chain into a relational database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the TOML configuration file")

	root.AddCommand(
		newSyncCommand(&configPath),
		newInitCommand(&configPath),
		newDestroyCommand(&configPath),
		newVersionCommand(),
	)
	return root
}

func newSyncCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Follow the node and keep the database in step with its chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg)
		},
	}
}

func newInitCommand(configPath *string) *cobra.Command {
	var interactive, force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !interactive {
				if err := config.InitCommand(*configPath, force); err != nil {
					return report(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", *configPath)
				return nil
			}
			if _, err := os.Stat(*configPath); err == nil && !force {
				return report(fmt.Errorf("configuration file already exists at %s", *configPath))
			}
			return report(config.InteractiveInit(*configPath, cmd.InOrStdin(), cmd.OutOrStdout()))
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask for each setting")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newDestroyCommand(configPath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Drop every indexer table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return report(fmt.Errorf("destroy drops all indexed data, rerun with --yes to confirm"))
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runDestroy(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping all tables")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cellar %s\n", version)
		},
	}
}

// loadConfig reads the file, then applies the log level and the error log
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, report(err)
	}
	if level, ok := logger.ParseLevel(cfg.Logging.Level); ok {
		logger.SetLevel(level)
	}
	unifiederrors.Initialize(unifiederrors.Options{PersistencePath: cfg.Logging.ErrorLog})
	return cfg, nil
}

func runSync(ctx context.Context, cfg *config.Config) error {
	defer unifiederrors.Get().Close()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return report(err)
	}
	defer database.Close(db)

	client, err := rpc.Dial(ctx, cfg.RPC)
	if err != nil {
		return report(err)
	}
	defer client.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := processors.NewBlockProcessor(db)
	loop, err := syncer.New(client, store, syncer.OptionsFromConfig(cfg.Sync, reg))
	if err != nil {
		return report(err)
	}

	health := database.NewHealthMonitor(db, healthCheckInterval)
	health.Start(ctx)
	defer health.Stop()

	if cfg.Web.Enabled {
		server := web.NewServer(cfg.Web.Port, web.Dependencies{
			Sync:   loop,
			Health: health,
			Statistics: func(ctx context.Context) (*database.SyncStatistics, error) {
				return database.GetSyncStatistics(ctx, db)
			},
			Errors: unifiederrors.Get(),
		}, reg)
		if err := server.Start(ctx); err != nil {
			return report(err)
		}
		defer server.Stop()
	}

	dash, err := dashboard.CreateDashboard(cfg.Dashboard, loop)
	if err != nil {
		return report(err)
	}
	if err := dash.Start(ctx); err != nil {
		return report(err)
	}
	defer dash.Stop()

	log.Info("Sync", "following %s into %s", client.URL(), cfg.Database.Driver)
	if err := loop.Run(ctx); err != nil {
		return err
	}
	log.Info("Sync", "shutdown complete")
	return nil
}

func runDestroy(ctx context.Context, cfg *config.Config) error {
	defer unifiederrors.Get().Close()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return report(err)
	}
	defer database.Close(db)

	if !database.HasSchema(db) {
		log.Info("Destroy", "no indexer tables found")
	}
	if err := processors.NewBlockProcessor(db).Destroy(ctx); err != nil {
		return report(err)
	}
	log.Info("Destroy", "all indexer tables dropped")
	return nil
}

// report logs err once through the registry and hands it back to cobra
func report(err error) error {
	if err != nil {
		log.Error("main", err)
	}
	return err
}
