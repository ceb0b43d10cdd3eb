package tasks

import (
	"context"
	"strings"
)

type StoreConfig struct {
	DatabaseURL string
	DataFile    string
}

// NewStore picks postgres when a database URL is configured, a CSV file when
// a data file is configured, and nil (memory only) otherwise.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, string, error) {
	if url := strings.TrimSpace(cfg.DatabaseURL); url != "" {
		st, err := NewPostgresStore(ctx, url)
		if err != nil {
			return nil, "", err
		}
		return st, "postgres", nil
	}
	if path := strings.TrimSpace(cfg.DataFile); path != "" {
		return NewFileStore(path), "file", nil
	}
	return nil, "in-memory", nil
}
