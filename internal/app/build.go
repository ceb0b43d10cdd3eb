package app

import (
	"context"
	"fmt"
	"log"

	"github.com/antoniostano/tracker/internal/config"
	"github.com/antoniostano/tracker/internal/httpapi"
	"github.com/antoniostano/tracker/internal/observability"
	"github.com/antoniostano/tracker/internal/tasks"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Manager   *tasks.Manager
	Metrics   *observability.Metrics
	StoreMode string

	// Cleanup should be called on shutdown to release the store.
	Cleanup func() error
}

// Build wires config, store, manager and API. The stored snapshot is fully
// restored before the manager is handed to the API; a failed restore aborts
// the build.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	manager, store, mode, err := OpenManager(ctx, cfg, metrics)
	if err != nil {
		return nil, err
	}
	log.Printf("task store: %s", mode)

	api := httpapi.New(cfg, manager, metrics, mode)

	cleanup := func() error {
		if store == nil {
			return nil
		}
		if err := store.Close(); err != nil {
			return fmt.Errorf("store close failed: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Manager:   manager,
		Metrics:   metrics,
		StoreMode: mode,
		Cleanup:   cleanup,
	}, nil
}

// OpenManager opens the configured store, restores its snapshot into a new
// manager and installs the store as the manager's save hook. The returned
// store is nil in memory-only mode.
func OpenManager(ctx context.Context, cfg config.Config, metrics *observability.Metrics) (*tasks.Manager, tasks.Store, string, error) {
	store, mode, err := tasks.NewStore(ctx, tasks.StoreConfig{
		DatabaseURL: cfg.DatabaseURL,
		DataFile:    cfg.DataFile,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("task store init failed: %w", err)
	}

	manager := tasks.NewManager()
	if cfg.EventBuffer > 0 {
		manager.SetEventBuffer(cfg.EventBuffer)
	}
	if cfg.SaveTimeout > 0 {
		manager.SetSaveTimeout(cfg.SaveTimeout)
	}
	if store == nil {
		return manager, nil, mode, nil
	}

	if err := manager.LoadFrom(ctx, store); err != nil {
		_ = store.Close()
		return nil, nil, "", fmt.Errorf("task store load failed: %w", err)
	}
	instrumented := instrumentStore(store, mode, metrics)
	manager.SetStore(instrumented)
	return manager, instrumented, mode, nil
}
