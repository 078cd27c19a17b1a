package usecase

import (
	"context"
	"fmt"
	"strings"

	"imgsearch/internal/domain"
	"imgsearch/internal/logging"
	"imgsearch/internal/port"
)

// SearchUseCase answers text queries against the image store.
type SearchUseCase struct {
	store   port.ImageStore
	encoder port.Encoder
	logger  *logging.Logger
}

// NewSearchUseCase creates a new search use case. Wrap the encoder in a
// cache.CachedEncoder to reuse query vectors.
func NewSearchUseCase(store port.ImageStore, encoder port.Encoder, logger *logging.Logger) (*SearchUseCase, error) {
	if encoder.Dimension() != store.Dimension() {
		return nil, fmt.Errorf("%w: encoder %s produces %d values, store holds %d",
			domain.ErrDimensionMismatch, encoder.ModelName(), encoder.Dimension(), store.Dimension())
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &SearchUseCase{
		store:   store,
		encoder: encoder,
		logger:  logger,
	}, nil
}

// Search returns up to k image paths, most similar first.
func (u *SearchUseCase) Search(ctx context.Context, description string, k int) ([]string, error) {
	matches, err := u.Matches(ctx, description, k)
	if err != nil {
		return nil, err
	}
	return domain.Paths(matches), nil
}

// Matches returns up to k images with their cosine distance to the
// description, ascending.
func (u *SearchUseCase) Matches(ctx context.Context, description string, k int) ([]domain.Match, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: empty search description", domain.ErrInvalidConfig)
	}
	if k <= 0 {
		u.logger.LogSearch(ctx, k, 0, nil)
		return []domain.Match{}, nil
	}

	query, err := u.embed(ctx, description)
	if err != nil {
		u.logger.LogSearch(ctx, k, 0, err)
		return nil, err
	}

	matches, err := u.store.NearestNeighbors(ctx, query, k)
	u.logger.LogSearch(ctx, k, len(matches), err)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (u *SearchUseCase) embed(ctx context.Context, description string) ([]float32, error) {
	encoded, err := u.encoder.Encode(ctx, []domain.Input{domain.TextInput(description)})
	if err != nil {
		return nil, err
	}
	if len(encoded) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query vector, got %d", domain.ErrEncode, len(encoded))
	}
	if !encoded[0].OK() {
		if encoded[0].Err != nil {
			return nil, encoded[0].Err
		}
		return nil, fmt.Errorf("%w: no query vector returned", domain.ErrEncode)
	}
	return encoded[0].Vector, nil
}
