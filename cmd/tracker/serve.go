package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/antoniostano/tracker/internal/app"
	"github.com/antoniostano/tracker/internal/config"
)

func serveCmd() *cobra.Command {
	var (
		addr        string
		dataFile    string
		databaseURL string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the tracker HTTP API until SIGINT or SIGTERM.

Settings come from defaults, then TRACKER_CONFIG_FILE, then the environment,
then these flags.

Examples:
  tracker serve --addr :8080
  tracker serve --data-file ./data/tasks.csv
  DATABASE_URL=postgres://localhost/tracker tracker serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, addr, dataFile, databaseURL)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides APP_BIND_ADDR)")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "CSV data file (overrides TRACKER_DATA_FILE)")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres URL (overrides DATABASE_URL)")
	return cmd
}

// loadConfig reads the environment config and applies flags the user set.
func loadConfig(cmd *cobra.Command, addr, dataFile, databaseURL string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.BindAddr = addr
	}
	if flags.Changed("data-file") {
		cfg.DataFile = dataFile
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = databaseURL
	}
	return cfg, nil
}

func runServe(cfg config.Config) error {
	if cfg.ConfigFile != "" {
		log.Printf("config file: %s", cfg.ConfigFile)
	}
	log.Printf("configured store: %s", cfg.StoreMode())
	built, err := app.Build(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Printf("cleanup failed: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	listenErr := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err, ok := <-listenErr:
		if ok {
			return err
		}
		return nil
	case <-sigCh:
		log.Printf("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
	return nil
}
