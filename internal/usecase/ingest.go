package usecase

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"imgsearch/internal/domain"
	"imgsearch/internal/logging"
	"imgsearch/internal/port"
)

// IngestOptions bounds one ingestion run.
type IngestOptions struct {
	MaxItems  int // 0 means no cap
	BatchSize int // 0 means runtime.GOMAXPROCS(0)
}

// Progress is reported after every batch.
type Progress struct {
	Processed int // candidates attempted so far
	Completed int // candidates that produced an embedding
	Inserted  int // rows newly written
	Total     int // candidates in this run after the cap
}

// IngestResult summarises a finished (or aborted) run.
type IngestResult struct {
	RunID     string
	Total     int
	Completed int
	Inserted  int
	Skipped   int
	Batches   int
	Failures  []ItemFailure
	Duration  time.Duration
}

func (r *IngestResult) finish(start time.Time) {
	r.Skipped = len(r.Failures)
	r.Duration = time.Since(start)
}

// ItemFailure records a candidate excluded from the run.
type ItemFailure struct {
	Path string
	Err  error
}

// BatchError aborts a run when a whole batch cannot be encoded or stored.
type BatchError struct {
	Batch int
	Op    string // "encode" or "insert"
	Paths []string
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d: %s %d items: %v", e.Batch, e.Op, len(e.Paths), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// IngestUseCase turns candidate paths into stored embeddings.
type IngestUseCase struct {
	store   port.ImageStore
	encoder port.Encoder
	loader  port.ImageLoader
	logger  *logging.Logger
	opts    IngestOptions
}

// NewIngestUseCase creates a new ingest use case. The encoder must produce
// vectors of the store's dimension.
func NewIngestUseCase(
	store port.ImageStore,
	encoder port.Encoder,
	loader port.ImageLoader,
	logger *logging.Logger,
	opts IngestOptions,
) (*IngestUseCase, error) {
	if opts.MaxItems < 0 {
		return nil, fmt.Errorf("%w: max items must not be negative, got %d", domain.ErrInvalidConfig, opts.MaxItems)
	}
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("%w: batch size must not be negative, got %d", domain.ErrInvalidConfig, opts.BatchSize)
	}
	if encoder.Dimension() != store.Dimension() {
		return nil, fmt.Errorf("%w: encoder %s produces %d values, store holds %d",
			domain.ErrDimensionMismatch, encoder.ModelName(), encoder.Dimension(), store.Dimension())
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &IngestUseCase{
		store:   store,
		encoder: encoder,
		loader:  loader,
		logger:  logger,
		opts:    opts,
	}, nil
}

// BatchSize returns the effective batch size.
func (u *IngestUseCase) BatchSize() int { return u.opts.BatchSize }

// Ingest processes paths in order, one batch at a time. Unreadable images are
// skipped and listed in the result; an encoder or store failure stops the run
// with a *BatchError, leaving earlier batches committed.
func (u *IngestUseCase) Ingest(ctx context.Context, paths []string, progress func(Progress)) (*IngestResult, error) {
	start := time.Now()
	if u.opts.MaxItems > 0 && len(paths) > u.opts.MaxItems {
		paths = paths[:u.opts.MaxItems]
	}

	result := &IngestResult{
		RunID: uuid.NewString(),
		Total: len(paths),
	}
	logger := u.logger.WithRun(result.RunID)
	logger.InfoContext(ctx, "ingestion started",
		"candidates", len(paths),
		"batch_size", u.opts.BatchSize,
		"model", u.encoder.ModelName(),
	)

	processed := 0
	for batch := 0; processed < len(paths); batch++ {
		if err := ctx.Err(); err != nil {
			result.finish(start)
			return result, err
		}

		end := min(processed+u.opts.BatchSize, len(paths))
		chunk := paths[processed:end]

		completed, inserted, err := u.ingestBatch(ctx, logger.WithBatch(batch), batch, chunk, result)
		result.Batches++
		if err != nil {
			result.finish(start)
			return result, err
		}

		processed = end
		result.Completed += completed
		result.Inserted += inserted
		if progress != nil {
			progress(Progress{
				Processed: processed,
				Completed: result.Completed,
				Inserted:  result.Inserted,
				Total:     result.Total,
			})
		}
	}

	result.finish(start)
	logger.InfoContext(ctx, "ingestion finished",
		"batches", result.Batches,
		"completed", result.Completed,
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"duration", result.Duration,
	)
	return result, nil
}

func (u *IngestUseCase) ingestBatch(
	ctx context.Context,
	logger *logging.Logger,
	batch int,
	paths []string,
	result *IngestResult,
) (completed, inserted int, err error) {
	loaded := u.loader.Load(ctx, paths)

	inputs := make([]domain.Input, 0, len(loaded))
	for _, l := range loaded {
		if l.Err != nil {
			logger.LogDecodeFailure(ctx, l.Path, l.Err)
			result.Failures = append(result.Failures, ItemFailure{Path: l.Path, Err: l.Err})
			continue
		}
		inputs = append(inputs, domain.ImageInput(l.Path, l.Image))
	}

	records := make([]domain.ImageRecord, 0, len(inputs))
	if len(inputs) > 0 {
		encoded, err := u.encoder.Encode(ctx, inputs)
		if err != nil {
			logger.LogBatch(ctx, len(paths), 0, 0, err)
			return 0, 0, &BatchError{Batch: batch, Op: "encode", Paths: paths, Err: err}
		}
		if len(encoded) != len(inputs) {
			err := fmt.Errorf("%w: encoder returned %d results for %d images", domain.ErrEncode, len(encoded), len(inputs))
			logger.LogBatch(ctx, len(paths), 0, 0, err)
			return 0, 0, &BatchError{Batch: batch, Op: "encode", Paths: paths, Err: err}
		}
		for i, enc := range encoded {
			if !enc.OK() {
				if enc.Err == nil {
					enc.Err = fmt.Errorf("%w: %s: no vector returned", domain.ErrEncode, inputs[i].Path)
				}
				logger.LogDecodeFailure(ctx, inputs[i].Path, enc.Err)
				result.Failures = append(result.Failures, ItemFailure{Path: inputs[i].Path, Err: enc.Err})
				continue
			}
			records = append(records, domain.ImageRecord{Path: inputs[i].Path, Embedding: enc.Vector})
		}
	}

	inserted, err = u.store.InsertOrIgnore(ctx, records)
	if err != nil {
		logger.LogBatch(ctx, len(paths), len(records), 0, err)
		return 0, 0, &BatchError{Batch: batch, Op: "insert", Paths: paths, Err: err}
	}
	logger.LogBatch(ctx, len(paths), len(records), inserted, nil)
	return len(records), inserted, nil
}
