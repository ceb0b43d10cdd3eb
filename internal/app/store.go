package app

import (
	"context"
	"time"

	"github.com/antoniostano/tracker/internal/observability"
	"github.com/antoniostano/tracker/internal/tasks"
)

// meteredStore records save latency and outcome for the wrapped store.
type meteredStore struct {
	tasks.Store
	backend string
	metrics *observability.Metrics
}

func instrumentStore(store tasks.Store, backend string, metrics *observability.Metrics) tasks.Store {
	if metrics == nil {
		return store
	}
	return &meteredStore{Store: store, backend: backend, metrics: metrics}
}

func (s *meteredStore) Save(ctx context.Context, snap tasks.Snapshot) error {
	started := time.Now()
	err := s.Store.Save(ctx, snap)
	s.metrics.ObserveStoreSave(s.backend, err, time.Since(started))
	return err
}
