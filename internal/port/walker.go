package port

import (
	"context"

	"imgsearch/internal/domain"
)

// PathSource produces the ordered, deduplicated candidate path list.
type PathSource interface {
	Walk(root string) ([]string, error)
}

// ImageLoader reads and decodes images. Failures are reported per item.
type ImageLoader interface {
	Load(ctx context.Context, paths []string) []domain.Loaded
}
