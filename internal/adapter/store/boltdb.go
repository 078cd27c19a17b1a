package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"imgsearch/internal/domain"
)

var (
	bucketImages = []byte("images")
	bucketPaths  = []byte("paths")
	bucketMeta   = []byte("meta")
	keySchema    = []byte("schema")
)

// BoltStore keeps image records in BoltDB. Records live in the images bucket
// keyed by a big-endian sequence id, so cursor order is insertion order; the
// paths bucket maps each path to its id and enforces uniqueness.
type BoltStore struct {
	db     *bbolt.DB
	path   string
	schema SchemaInfo
}

func openBolt(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bolt db: %w", domain.ErrStore, err)
	}
	return db, nil
}

func provisionBolt(path string, want SchemaInfo) (SchemaInfo, error) {
	db, err := openBolt(path)
	if err != nil {
		return SchemaInfo{}, err
	}
	defer db.Close()

	info := want
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketImages, bucketPaths, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if data := meta.Get(keySchema); data != nil {
			var have SchemaInfo
			if err := json.Unmarshal(data, &have); err != nil {
				return fmt.Errorf("corrupt schema info: %w", err)
			}
			if err := checkSchema(have, want.Dimension); err != nil {
				return err
			}
			info = have
			return nil
		}
		data, err := json.Marshal(want)
		if err != nil {
			return err
		}
		return meta.Put(keySchema, data)
	})
	return info, err
}

// OpenBoltStore opens a provisioned BoltDB store. A dimension of 0 accepts
// whatever the store was provisioned with.
func OpenBoltStore(path string, dimension int) (*BoltStore, error) {
	db, err := openBolt(path)
	if err != nil {
		return nil, err
	}

	var info SchemaInfo
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil || tx.Bucket(bucketImages) == nil || tx.Bucket(bucketPaths) == nil {
			return fmt.Errorf("%w: %s", domain.ErrNotProvisioned, path)
		}
		data := meta.Get(keySchema)
		if data == nil {
			return fmt.Errorf("%w: %s has no schema info", domain.ErrNotProvisioned, path)
		}
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("%w: corrupt schema info: %w", domain.ErrStore, err)
		}
		return checkSchema(info, dimension)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: path, schema: info}, nil
}

// InsertOrIgnore inserts records whose path is not yet stored, in one
// read-write transaction. BoltDB serialises writers, so concurrent callers
// with overlapping paths insert each path at most once.
func (s *BoltStore) InsertOrIgnore(ctx context.Context, records []domain.ImageRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := checkRecords(records, s.schema.Dimension); err != nil {
		return 0, err
	}

	inserted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		images := tx.Bucket(bucketImages)
		paths := tx.Bucket(bucketPaths)

		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := []byte(r.Path)
			if paths.Get(key) != nil {
				continue
			}
			id, err := images.NextSequence()
			if err != nil {
				return err
			}
			if err := images.Put(itob(id), encodeRecord(r)); err != nil {
				return err
			}
			if err := paths.Put(key, itob(id)); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: insert batch of %d: %w", domain.ErrStore, len(records), err)
	}
	return inserted, nil
}

// NearestNeighbors scans every record and keeps the k closest.
func (s *BoltStore) NearestNeighbors(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	if err := checkQuery(query, s.schema.Dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.Match{}, nil
	}

	top := newTopK(k)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketImages).Cursor()
		for key, val := c.First(); key != nil; key, val = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := decodeRecord(btoi(key), val)
			if err != nil {
				return err
			}
			if len(rec.Embedding) != len(query) {
				return fmt.Errorf("record %d has %d values", rec.ID, len(rec.Embedding))
			}
			top.offer(candidate{
				seq:      rec.ID,
				path:     rec.Path,
				distance: domain.CosineDistance(query, rec.Embedding),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: nearest neighbor query: %w", domain.ErrStore, err)
	}
	return top.matches(), nil
}

// Get returns the record stored for path.
func (s *BoltStore) Get(path string) (domain.ImageRecord, bool, error) {
	var (
		rec   domain.ImageRecord
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		idb := tx.Bucket(bucketPaths).Get([]byte(path))
		if idb == nil {
			return nil
		}
		id := btoi(idb)
		r, err := decodeRecord(id, tx.Bucket(bucketImages).Get(idb))
		if err != nil {
			return err
		}
		rec, found = r, true
		return nil
	})
	if err != nil {
		return domain.ImageRecord{}, false, fmt.Errorf("%w: get %s: %w", domain.ErrStore, path, err)
	}
	return rec, found, nil
}

// Count returns the number of stored records.
func (s *BoltStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketPaths).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrStore, err)
	}
	return n, nil
}

func (s *BoltStore) Dimension() int     { return s.schema.Dimension }
func (s *BoltStore) Schema() SchemaInfo { return s.schema }
func (s *BoltStore) Backend() string    { return BackendBolt }
func (s *BoltStore) Path() string       { return s.path }

func (s *BoltStore) Close() error {
	return s.db.Close()
}
