package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"imgsearch/internal/domain"
	"imgsearch/internal/port"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// SchemaInfo describes a provisioned store. Dimension is fixed for the
// lifetime of the store.
type SchemaInfo struct {
	Version   int    `json:"version"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model,omitempty"`
}

// Store is an ImageStore that also reports how it was provisioned.
type Store interface {
	port.ImageStore
	Schema() SchemaInfo
	Backend() string
	Path() string
}

// Provision creates the store layout at path and records its schema info.
// Provisioning an existing store with the same dimension is a no-op; a
// different dimension is rejected.
func Provision(ctx context.Context, backend, path string, dimension int, model string) (SchemaInfo, error) {
	if dimension <= 0 {
		return SchemaInfo{}, fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrInvalidConfig, dimension)
	}
	want := SchemaInfo{Version: CurrentSchemaVersion, Dimension: dimension, Model: model}

	switch backend {
	case BackendBolt:
		return provisionBolt(path, want)
	case BackendSQLite:
		return provisionSQLite(ctx, path, want)
	default:
		return SchemaInfo{}, fmt.Errorf("%w: unknown store backend %q", domain.ErrInvalidConfig, backend)
	}
}

// Open opens a provisioned store and checks that its dimension matches.
func Open(ctx context.Context, backend, path string, dimension int) (Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", domain.ErrNotProvisioned, path)
	}

	switch backend {
	case BackendBolt:
		return OpenBoltStore(path, dimension)
	case BackendSQLite:
		return OpenSQLiteStore(ctx, path, dimension)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", domain.ErrInvalidConfig, backend)
	}
}

// checkSchema compares stored schema info against what the caller expects.
func checkSchema(have SchemaInfo, dimension int) error {
	if have.Version > CurrentSchemaVersion {
		return fmt.Errorf("%w: store created by newer version (v%d > v%d)", domain.ErrInvalidConfig, have.Version, CurrentSchemaVersion)
	}
	if dimension > 0 && have.Dimension != dimension {
		return fmt.Errorf("%w: store dimension is %d, configured %d", domain.ErrDimensionMismatch, have.Dimension, dimension)
	}
	return nil
}

// checkRecords rejects a batch before any write if a record is malformed.
func checkRecords(records []domain.ImageRecord, dimension int) error {
	for _, r := range records {
		if r.Path == "" {
			return fmt.Errorf("%w: record with empty path", domain.ErrInvalidConfig)
		}
		if len(r.Embedding) != dimension {
			return fmt.Errorf("%w: record %s has %d values, store dimension is %d", domain.ErrDimensionMismatch, r.Path, len(r.Embedding), dimension)
		}
		if !domain.IsUnit(r.Embedding) {
			return fmt.Errorf("%w: record %s is not unit length (norm %.6f)", domain.ErrInvalidConfig, r.Path, domain.Norm(r.Embedding))
		}
	}
	return nil
}

func checkQuery(query []float32, dimension int) error {
	if len(query) != dimension {
		return fmt.Errorf("%w: query has %d values, store dimension is %d", domain.ErrDimensionMismatch, len(query), dimension)
	}
	if !domain.IsUnit(query) {
		return fmt.Errorf("%w: query is not unit length (norm %.6f)", domain.ErrInvalidConfig, domain.Norm(query))
	}
	return nil
}

// Describe summarises an open store.
func Describe(ctx context.Context, s Store) (domain.Stats, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	schema := s.Schema()
	return domain.Stats{
		Backend:   s.Backend(),
		Path:      s.Path(),
		Dimension: schema.Dimension,
		Model:     schema.Model,
		Records:   n,
	}, nil
}
