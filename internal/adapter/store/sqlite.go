package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"

	sqlite "modernc.org/sqlite"

	"imgsearch/internal/domain"
)

const schemaTableDDL = `
CREATE TABLE IF NOT EXISTS imgsearch_schema (
    id        INTEGER PRIMARY KEY CHECK (id = 1),
    version   INTEGER NOT NULL,
    dimension INTEGER NOT NULL,
    model     TEXT NOT NULL DEFAULT ''
);`

// imagesTableDDL sizes the embedding check to the provisioned dimension.
func imagesTableDDL(dimension int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS images (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    path      TEXT NOT NULL UNIQUE,
    embedding BLOB NOT NULL CHECK (length(embedding) = %d)
);`, dimension*4)
}

const (
	insertImageSQL = `INSERT INTO images(path, embedding) VALUES(?, ?) ON CONFLICT(path) DO NOTHING`
	nearestSQL     = `SELECT path, vec_cosine_distance(embedding, ?) AS distance FROM images ORDER BY distance ASC, id ASC LIMIT ?`
)

var (
	registerOnce sync.Once
	registerErr  error
)

// registerVectorFunctions makes vec_cosine_distance available on connections
// opened after the call. The first outcome is returned on every call.
func registerVectorFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction("vec_cosine_distance", 2, vecCosineDistance)
	})
	return registerErr
}

func vecCosineDistance(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_cosine_distance: expected 2 arguments, got %d", len(args))
	}
	a, ok := args[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("vec_cosine_distance: unsupported argument type %T; want BLOB", args[0])
	}
	b, ok := args[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("vec_cosine_distance: unsupported argument type %T; want BLOB", args[1])
	}
	va, err := DecodeEmbedding(a)
	if err != nil {
		return nil, err
	}
	vb, err := DecodeEmbedding(b)
	if err != nil {
		return nil, err
	}
	if len(va) != len(vb) {
		return nil, fmt.Errorf("vec_cosine_distance: dimension mismatch %d vs %d", len(va), len(vb))
	}
	return domain.CosineDistance(va, vb), nil
}

func openSQLite(path string) (*sql.DB, error) {
	if err := registerVectorFunctions(); err != nil {
		return nil, fmt.Errorf("%w: registering vec_cosine_distance: %w", domain.ErrStore, err)
	}
	// WAL for concurrent readers; immediate transactions so concurrent
	// writers queue on the busy timeout instead of failing on lock upgrade.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", domain.ErrStore, err)
	}
	return db, nil
}

func provisionSQLite(ctx context.Context, path string, want SchemaInfo) (SchemaInfo, error) {
	db, err := openSQLite(path)
	if err != nil {
		return SchemaInfo{}, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return SchemaInfo{}, fmt.Errorf("%w: begin: %w", domain.ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaTableDDL); err != nil {
		return SchemaInfo{}, fmt.Errorf("%w: creating schema table: %w", domain.ErrStore, err)
	}

	have, err := readSchema(ctx, tx)
	switch {
	case err == nil:
		if err := checkSchema(have, want.Dimension); err != nil {
			return SchemaInfo{}, err
		}
		return have, nil
	case !errors.Is(err, domain.ErrNotProvisioned):
		return SchemaInfo{}, err
	}

	if _, err := tx.ExecContext(ctx, imagesTableDDL(want.Dimension)); err != nil {
		return SchemaInfo{}, fmt.Errorf("%w: creating images table: %w", domain.ErrStore, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO imgsearch_schema(id, version, dimension, model) VALUES(1, ?, ?, ?)`,
		want.Version, want.Dimension, want.Model,
	); err != nil {
		return SchemaInfo{}, fmt.Errorf("%w: recording schema info: %w", domain.ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return SchemaInfo{}, fmt.Errorf("%w: commit: %w", domain.ErrStore, err)
	}
	return want, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readSchema(ctx context.Context, q queryRower) (SchemaInfo, error) {
	var info SchemaInfo
	err := q.QueryRowContext(ctx,
		`SELECT version, dimension, model FROM imgsearch_schema WHERE id = 1`,
	).Scan(&info.Version, &info.Dimension, &info.Model)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return SchemaInfo{}, domain.ErrNotProvisioned
	case err != nil && strings.Contains(err.Error(), "no such table"):
		return SchemaInfo{}, domain.ErrNotProvisioned
	case err != nil:
		return SchemaInfo{}, fmt.Errorf("%w: reading schema info: %w", domain.ErrStore, err)
	}
	return info, nil
}

// SQLiteStore keeps image records in a SQLite images table. Uniqueness of
// path is enforced by the table, so concurrent inserts need no extra locking.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	schema SchemaInfo
}

// OpenSQLiteStore opens a provisioned SQLite store. A dimension of 0 accepts
// whatever the store was provisioned with.
func OpenSQLiteStore(ctx context.Context, path string, dimension int) (*SQLiteStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	info, err := readSchema(ctx, db)
	if err != nil {
		db.Close()
		if errors.Is(err, domain.ErrNotProvisioned) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotProvisioned, path)
		}
		return nil, err
	}
	if err := checkSchema(info, dimension); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path, schema: info}, nil
}

// InsertOrIgnore inserts the batch in one transaction, skipping paths that
// already exist.
func (s *SQLiteStore) InsertOrIgnore(ctx context.Context, records []domain.ImageRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := checkRecords(records, s.schema.Dimension); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", domain.ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertImageSQL)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare insert: %w", domain.ErrStore, err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.Path, EncodeEmbedding(r.Embedding))
		if err != nil {
			return 0, fmt.Errorf("%w: insert %s: %w", domain.ErrStore, r.Path, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: rows affected: %w", domain.ErrStore, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", domain.ErrStore, err)
	}
	return inserted, nil
}

// NearestNeighbors ranks every row with vec_cosine_distance inside SQLite.
func (s *SQLiteStore) NearestNeighbors(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	if err := checkQuery(query, s.schema.Dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.Match{}, nil
	}

	rows, err := s.db.QueryContext(ctx, nearestSQL, EncodeEmbedding(query), k)
	if err != nil {
		return nil, fmt.Errorf("%w: nearest neighbor query: %w", domain.ErrStore, err)
	}
	defer rows.Close()

	out := make([]domain.Match, 0, min(k, 1024))
	for rows.Next() {
		var m domain.Match
		if err := rows.Scan(&m.Path, &m.Distance); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrStore, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: nearest neighbor query: %w", domain.ErrStore, err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrStore, err)
	}
	return n, nil
}

func (s *SQLiteStore) Dimension() int     { return s.schema.Dimension }
func (s *SQLiteStore) Schema() SchemaInfo { return s.schema }
func (s *SQLiteStore) Backend() string    { return BackendSQLite }
func (s *SQLiteStore) Path() string       { return s.path }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var (
	_ Store = (*BoltStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
