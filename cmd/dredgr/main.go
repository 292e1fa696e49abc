// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/dredgr/internal/api"
	"github.com/autobrr/dredgr/internal/availability"
	"github.com/autobrr/dredgr/internal/buildinfo"
	"github.com/autobrr/dredgr/internal/config"
	"github.com/autobrr/dredgr/internal/database"
	"github.com/autobrr/dredgr/internal/domain"
	"github.com/autobrr/dredgr/internal/metrics"
	"github.com/autobrr/dredgr/internal/models"
	"github.com/autobrr/dredgr/internal/orchestrator"
	"github.com/autobrr/dredgr/internal/pipeline"
	"github.com/autobrr/dredgr/internal/scraper"
	"github.com/autobrr/dredgr/internal/tracker"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "dredgr",
		Short: "A self-hosted torrent metadata aggregator",
		Long: `dredgr - aggregates torrent search results from multiple upstream
sources, filters the junk, and adaptively routes requests to the
sources that actually answer.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/dredgr/ or %APPDATA%\\dredgr\\). For backward compatibility, can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for database and other files (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, dataDir, logPath)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dredgr",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/dredgr/config.toml
- Windows: %APPDATA%\dredgr\config.toml

You can specify either a directory path or a direct file path:
- Directory: dredgr generate-config --config-dir /path/to/config/
- File: dredgr generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

type Application struct {
	configDir string
	dataDir   string
	logPath   string
}

func NewApplication(configDir, dataDir, logPath string) *Application {
	return &Application{
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
	}
}

func (app *Application) runServer() {
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		os.Setenv("DREDGR__DATA_DIR", app.dataDir)
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		os.Setenv("DREDGR__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting dredgr")

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	sweepInterval := 5 * time.Minute
	if cfg.Config.SweepIntervalMinutes > 0 {
		sweepInterval = time.Duration(cfg.Config.SweepIntervalMinutes) * time.Minute
	}
	store := models.NewKVStore(db.Conn(), models.WithSweepInterval(sweepInterval))

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()
	store.StartSweeper(backgroundCtx)

	trk := tracker.New(store)
	pipe := pipeline.New(nil, cfg.Config.TargetLanguages)

	sourceTimeout := time.Duration(cfg.Config.SourceTimeoutSeconds) * time.Second
	httpClient := scraper.NewHTTPClient(sourceTimeout)
	adapters := scraper.BuildAdapters(cfg.Config.Sources, httpClient, cfg.Config.SourceMaxPages)
	if len(adapters) == 0 {
		log.Warn().Msg("No enabled sources configured, searches will fail until sources are added")
	}

	var collector *metrics.Collector
	if cfg.Config.MetricsEnabled {
		collector = metrics.New()
	}

	searchOrchestrator := orchestrator.New(cfg.Config, adapters, trk, store, pipe, collector)

	// Config file edits swap the source set and filter targets in without a
	// restart. The orchestrator works on snapshots, so in-flight searches
	// are unaffected.
	cfg.RegisterReloadListener(func(newCfg *domain.Config) {
		searchOrchestrator.Reload(newCfg, scraper.BuildAdapters(newCfg.Sources, httpClient, newCfg.SourceMaxPages))
	})

	refreshInterval := time.Duration(cfg.Config.SearchCacheTTLMinutes) * time.Minute
	orchestrator.NewRefresher(searchOrchestrator, store, refreshInterval).Start(backgroundCtx)

	availabilityTTL := 7 * 24 * time.Hour
	if cfg.Config.AvailabilityCacheTTLDays > 0 {
		availabilityTTL = time.Duration(cfg.Config.AvailabilityCacheTTLDays) * 24 * time.Hour
	}
	availabilityCache := availability.New(store, availabilityTTL)

	httpServer := api.NewServer(&api.Dependencies{
		Config:            cfg,
		Version:           buildinfo.Version,
		Orchestrator:      searchOrchestrator,
		Tracker:           trk,
		Store:             store,
		AvailabilityCache: availabilityCache,
		Metrics:           collector,
	})

	errorChannel := make(chan error)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
		log.Info().Int("sources", len(adapters)).Msg("Server ready")
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")

		os.Exit(1)
	}

	os.Exit(0)
}
