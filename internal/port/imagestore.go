package port

import (
	"context"

	"imgsearch/internal/domain"
)

// ImageStore persists image embeddings keyed by unique path.
type ImageStore interface {
	// InsertOrIgnore inserts every record whose path is not yet stored and
	// silently skips the rest. The call is a single transaction: on error no
	// record from the batch is persisted. It returns the number inserted.
	InsertOrIgnore(ctx context.Context, records []domain.ImageRecord) (int, error)

	// NearestNeighbors returns up to k stored paths ordered by ascending
	// cosine distance to query, ties broken by insertion order.
	NearestNeighbors(ctx context.Context, query []float32, k int) ([]domain.Match, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Dimension returns the vector dimension fixed at provisioning.
	Dimension() int

	Close() error
}
