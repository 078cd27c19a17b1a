package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgsearch/internal/domain"
)

var backends = []string{BackendBolt, BackendSQLite}

// setupTestStore provisions and opens a store of the given backend in a
// temporary directory.
func setupTestStore(t *testing.T, backend string, dimension int) Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "index."+backend)
	ctx := context.Background()

	_, err := Provision(ctx, backend, path, dimension, "test-model")
	require.NoError(t, err)

	st, err := Open(ctx, backend, path, dimension)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func unit(v ...float32) []float32 {
	out := append([]float32(nil), v...)
	domain.Normalize(out)
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, backend string)) {
	for _, b := range backends {
		t.Run(b, func(t *testing.T) { fn(t, b) })
	}
}

func TestProvisionAndOpen(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "index")

		info, err := Provision(ctx, backend, path, 4, "clip")
		require.NoError(t, err)
		assert.Equal(t, SchemaInfo{Version: CurrentSchemaVersion, Dimension: 4, Model: "clip"}, info)

		// same dimension again is a no-op
		_, err = Provision(ctx, backend, path, 4, "clip")
		require.NoError(t, err)

		_, err = Provision(ctx, backend, path, 8, "clip")
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

		st, err := Open(ctx, backend, path, 4)
		require.NoError(t, err)
		assert.Equal(t, 4, st.Dimension())
		assert.Equal(t, backend, st.Backend())
		assert.Equal(t, "clip", st.Schema().Model)
		require.NoError(t, st.Close())

		_, err = Open(ctx, backend, path, 3)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

		st, err = Open(ctx, backend, path, 0)
		require.NoError(t, err)
		assert.Equal(t, 4, st.Dimension())
		require.NoError(t, st.Close())
	})
}

func TestOpen_NotProvisioned(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		_, err := Open(context.Background(), backend, filepath.Join(t.TempDir(), "missing"), 2)
		assert.ErrorIs(t, err, domain.ErrNotProvisioned)
	})
}

func TestInsertOrIgnore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		st := setupTestStore(t, backend, 2)

		n, err := st.InsertOrIgnore(ctx, []domain.ImageRecord{
			{Path: "a", Embedding: unit(1, 0)},
			{Path: "b", Embedding: unit(0, 1)},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		// existing path is skipped, duplicate inside the batch too
		n, err = st.InsertOrIgnore(ctx, []domain.ImageRecord{
			{Path: "a", Embedding: unit(0, 1)},
			{Path: "c", Embedding: unit(1, 1)},
			{Path: "c", Embedding: unit(1, -1)},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		count, err := st.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		// "a" keeps its original vector
		matches, err := st.NearestNeighbors(ctx, unit(1, 0), 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].Path)
		assert.InDelta(t, 0, matches[0].Distance, 1e-6)

		n, err = st.InsertOrIgnore(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestInsertOrIgnore_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		st := setupTestStore(t, backend, 2)

		batch := []domain.ImageRecord{
			{Path: "x", Embedding: unit(1, 0)},
			{Path: "y", Embedding: unit(0, 1)},
		}
		_, err := st.InsertOrIgnore(ctx, batch)
		require.NoError(t, err)
		n, err := st.InsertOrIgnore(ctx, batch)
		require.NoError(t, err)
		assert.Zero(t, n)

		count, err := st.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestInsertOrIgnore_RejectsWholeBatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		st := setupTestStore(t, backend, 2)

		_, err := st.InsertOrIgnore(ctx, []domain.ImageRecord{
			{Path: "ok", Embedding: unit(1, 0)},
			{Path: "bad", Embedding: unit(1, 0, 0)},
		})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

		count, err := st.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestStore_RejectsNonUnitVectors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		st := setupTestStore(t, backend, 2)

		_, err := st.InsertOrIgnore(ctx, []domain.ImageRecord{
			{Path: "a", Embedding: unit(1, 0)},
			{Path: "b", Embedding: []float32{10, 10}},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)

		count, err := st.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		_, err = st.InsertOrIgnore(ctx, []domain.ImageRecord{{Path: "a", Embedding: unit(1, 0)}})
		require.NoError(t, err)

		_, err = st.NearestNeighbors(ctx, []float32{10, 10}, 2)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		_, err = st.NearestNeighbors(ctx, []float32{0, 0}, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)

		matches, err := st.NearestNeighbors(ctx, unit(1, 0), 2)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].Path)
		assert.InDelta(t, 0, matches[0].Distance, 1e-6)
	})
}

func TestInsertOrIgnore_ConcurrentSamePath(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		st := setupTestStore(t, backend, 2)

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			total int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := st.InsertOrIgnore(ctx, []domain.ImageRecord{
					{Path: "same", Embedding: unit(1, 0)},
				})
				assert.NoError(t, err)
				mu.Lock()
				total += n
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, total)
		count, err := st.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestNearestNeighbors_ToyScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		st := setupTestStore(t, backend, 2)

		_, err := st.InsertOrIgnore(ctx, []domain.ImageRecord{
			{Path: "a", Embedding: unit(1, 0)},
			{Path: "b", Embedding: unit(0, 1)},
			{Path: "c", Embedding: unit(0.7, 0.714)},
		})
		require.NoError(t, err)

		matches, err := st.NearestNeighbors(ctx, unit(1, 0), 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, domain.Paths(matches))
		assert.InDelta(t, 0, matches[0].Distance, 1e-6)
	})
}

func TestNearestNeighbors_Bounds(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		st := setupTestStore(t, backend, 2)

		var records []domain.ImageRecord
		for i := 0; i < 12; i++ {
			angle := float64(i) * math.Pi / 12
			records = append(records, domain.ImageRecord{
				Path:      fmt.Sprintf("img-%02d", i),
				Embedding: unit(float32(math.Cos(angle)), float32(math.Sin(angle))),
			})
		}
		_, err := st.InsertOrIgnore(ctx, records)
		require.NoError(t, err)

		q := unit(1, 0)

		matches, err := st.NearestNeighbors(ctx, q, 0)
		require.NoError(t, err)
		assert.Empty(t, matches)

		matches, err = st.NearestNeighbors(ctx, q, -3)
		require.NoError(t, err)
		assert.Empty(t, matches)

		matches, err = st.NearestNeighbors(ctx, q, 100)
		require.NoError(t, err)
		require.Len(t, matches, 12)
		for i := range matches {
			assert.Equal(t, fmt.Sprintf("img-%02d", i), matches[i].Path)
			if i > 0 {
				assert.GreaterOrEqual(t, matches[i].Distance, matches[i-1].Distance)
			}
		}

		matches, err = st.NearestNeighbors(ctx, q, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"img-00", "img-01", "img-02"}, domain.Paths(matches))
	})
}

func TestNearestNeighbors_TiesKeepInsertionOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		st := setupTestStore(t, backend, 2)

		for _, p := range []string{"third", "first", "second"} {
			_, err := st.InsertOrIgnore(ctx, []domain.ImageRecord{{Path: p, Embedding: unit(0, 1)}})
			require.NoError(t, err)
		}

		matches, err := st.NearestNeighbors(ctx, unit(1, 0), 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"third", "first"}, domain.Paths(matches))
	})
}

func TestNearestNeighbors_DimensionMismatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		st := setupTestStore(t, backend, 2)

		_, err := st.NearestNeighbors(context.Background(), unit(1, 0, 0), 5)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})
}

func TestNearestNeighbors_ClosedStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		st := setupTestStore(t, backend, 2)
		require.NoError(t, st.Close())

		_, err := st.NearestNeighbors(context.Background(), unit(1, 0), 5)
		assert.ErrorIs(t, err, domain.ErrStore)

		_, err = st.InsertOrIgnore(context.Background(), []domain.ImageRecord{{Path: "a", Embedding: unit(1, 0)}})
		assert.ErrorIs(t, err, domain.ErrStore)
	})
}

func TestBoltStore_Get(t *testing.T) {
	st := setupTestStore(t, BackendBolt, 2).(*BoltStore)
	ctx := context.Background()

	_, err := st.InsertOrIgnore(ctx, []domain.ImageRecord{{Path: "a", Embedding: unit(3, 4)}})
	require.NoError(t, err)

	rec, ok, err := st.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.ID)
	assert.Len(t, rec.Embedding, 2)
	assert.True(t, domain.IsUnit(rec.Embedding))

	_, ok, err = st.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordEncoding(t *testing.T) {
	rec := domain.ImageRecord{Path: "photos/cat.jpg", Embedding: []float32{0, 1.5, -2.25}}

	got, err := decodeRecord(7, encodeRecord(rec))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.ID)
	assert.Equal(t, rec.Path, got.Path)
	assert.Equal(t, rec.Embedding, got.Embedding)

	_, err = decodeRecord(1, []byte{0xff})
	assert.Error(t, err)

	_, err = DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestVecCosineDistance(t *testing.T) {
	v, err := vecCosineDistance(nil, []driver.Value{EncodeEmbedding(unit(1, 0)), EncodeEmbedding(unit(0, 1))})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v.(float64), 1e-9)

	_, err = vecCosineDistance(nil, []driver.Value{"text", EncodeEmbedding(unit(1, 0))})
	assert.Error(t, err)
}

func TestRegisterVectorFunctions(t *testing.T) {
	require.NoError(t, registerVectorFunctions())
	// repeated calls report the first registration, not a duplicate-name error
	require.NoError(t, registerVectorFunctions())

	db, err := openSQLite(filepath.Join(t.TempDir(), "fn.db"))
	require.NoError(t, err)
	defer db.Close()

	var d float64
	err = db.QueryRow("SELECT vec_cosine_distance(?, ?)", EncodeEmbedding(unit(1, 0)), EncodeEmbedding(unit(1, 0))).Scan(&d)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-6)
}

func TestDescribe(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		st := setupTestStore(t, backend, 2)

		_, err := st.InsertOrIgnore(ctx, []domain.ImageRecord{
			{Path: "a", Embedding: unit(1, 0)},
			{Path: "b", Embedding: unit(0, 1)},
		})
		require.NoError(t, err)

		stats, err := Describe(ctx, st)
		require.NoError(t, err)
		assert.Equal(t, backend, stats.Backend)
		assert.Equal(t, st.Path(), stats.Path)
		assert.Equal(t, 2, stats.Dimension)
		assert.Equal(t, "test-model", stats.Model)
		assert.Equal(t, 2, stats.Records)
	})
}
