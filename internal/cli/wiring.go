package cli

import (
	"context"
	"errors"
	"fmt"

	"imgsearch/config"
	"imgsearch/internal/adapter/embedding"
	"imgsearch/internal/adapter/store"
	"imgsearch/internal/domain"
	"imgsearch/internal/port"
)

// openStore opens the configured store, pointing at `init` when it has not
// been provisioned yet.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	path := cfg.StorePath(GetRootDir())
	st, err := store.Open(ctx, cfg.Store.Backend, path, cfg.Store.Dimension)
	if errors.Is(err, domain.ErrNotProvisioned) {
		return nil, fmt.Errorf("no index found at %s. Run 'imgsearch init' first: %w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return st, nil
}

type backendReporter interface {
	Backend() embedding.Backend
}

// newEncoder builds the encoder named by the embedding config.
func newEncoder(cfg *config.Config) (port.Encoder, error) {
	var (
		enc port.Encoder
		err error
	)
	switch cfg.Embedding.Provider {
	case "http":
		enc, err = embedding.NewHTTPEncoder(embedding.HTTPOptions{
			BaseURL:           cfg.Embedding.BaseURL,
			Model:             cfg.Embedding.Model,
			APIKeyEnv:         cfg.Embedding.APIKeyEnv,
			Dimension:         cfg.Store.Dimension,
			Device:            cfg.Embedding.Device,
			ImageSize:         cfg.Embedding.ImageSize,
			Timeout:           cfg.Embedding.Timeout,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		})
	case "local":
		enc, err = embedding.NewLocalEncoder(cfg.Embedding.Model, cfg.Store.Dimension, cfg.Embedding.Device)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidConfig, cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	if b, ok := enc.(backendReporter); ok {
		GetLogger().Debug("encoder ready",
			"provider", cfg.Embedding.Provider,
			"model", enc.ModelName(),
			"dimension", enc.Dimension(),
			"backend", string(b.Backend()),
		)
	}
	return enc, nil
}
