package port

import (
	"context"

	"imgsearch/internal/domain"
)

// Encoder turns images or text into unit-length embedding vectors.
type Encoder interface {
	// Encode returns one result per input, in input order. An input that
	// cannot be decoded yields a per-item domain.ErrDecode; the returned
	// error is reserved for failures of the whole call (domain.ErrEncode).
	Encode(ctx context.Context, inputs []domain.Input) ([]domain.Encoded, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
