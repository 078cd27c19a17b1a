package fs

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"imgsearch/internal/domain"
)

// Loader decodes image files with bounded parallelism.
type Loader struct {
	workers int
}

func NewLoader(workers int) *Loader {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Loader{workers: workers}
}

// Load decodes every path, returning results in input order. A file that
// cannot be opened or decoded yields a domain.ErrDecode result; it never
// fails the call.
func (l *Loader) Load(ctx context.Context, paths []string) []domain.Loaded {
	out := make([]domain.Loaded, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range paths {
		g.Go(func() error {
			out[i] = loadOne(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func loadOne(ctx context.Context, path string) domain.Loaded {
	if err := ctx.Err(); err != nil {
		return domain.Loaded{Path: path, Err: fmt.Errorf("%w: %s: %w", domain.ErrDecode, path, err)}
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Loaded{Path: path, Err: fmt.Errorf("%w: %w", domain.ErrDecode, err)}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return domain.Loaded{Path: path, Err: fmt.Errorf("%w: %s: %w", domain.ErrDecode, path, err)}
	}
	return domain.Loaded{Path: path, Image: img}
}
