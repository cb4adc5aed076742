package keyper

import (
	"context"

	"github.com/systmms/apikeyper/internal/backends"
	"github.com/systmms/apikeyper/internal/config"
	"github.com/systmms/apikeyper/internal/metadata"
	"github.com/systmms/apikeyper/internal/metrics"
)

// Open builds a Manager from loaded configuration: it opens the metadata
// store and creates the configured backend, falling back to memory when the
// keyring is unavailable.
func Open(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) (*Manager, error) {
	s := cfg.Settings
	driver, dsn := s.DataSource()

	store, err := metadata.Open(ctx, driver, dsn, cfg.Logger)
	if err != nil {
		return nil, err
	}

	factory := &backends.Factory{Logger: cfg.Logger, Metrics: rec}
	be, err := factory.New(ctx, s.Backend)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return New(store, be, cfg.Logger, rec, Options{
		Namespace:      s.Namespace,
		Profile:        s.Profile,
		IncludeSecrets: s.IncludeSecrets,
	}), nil
}
