package storage

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/statehouse-dev/statehouse/internal/model"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketState = []byte("state")
	bucketLog   = []byte("log")
	bucketMeta  = []byte("meta")
	bucketSnaps = []byte("snapshots")
)

// BoltBackend is the production Storage Backend, an embedded,
// persistent ordered key-value store: one bbolt.DB file, one bucket
// per key family, opened once at NewBoltBackend and reused for every
// operation.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (creating if necessary) a BoltDB database
// under dataDir and ensures its buckets exist.
func NewBoltBackend(dataDir string) (*BoltBackend, error) {
	dbPath := filepath.Join(dataDir, "statehouse.db")

	// NoSync: true hands fsync control to BatchWrite's per-commit
	// Fsync flag (the engine's fsync-on-commit config option) instead
	// of bbolt syncing unconditionally on every transaction.
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{NoSync: true})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketState, bucketLog, bucketMeta, bucketSnaps} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltBackend{db: db}, nil
}

func (s *BoltBackend) Close() error {
	return s.db.Close()
}

func (s *BoltBackend) GetState(t model.Triple) (model.StateRecord, bool, error) {
	var rec model.StateRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		data := b.Get(StateKey(t))
		if data == nil {
			return nil
		}
		found = true
		r, err := decodeStateRecord(data)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return model.StateRecord{}, false, err
	}
	return rec, found, nil
}

func (s *BoltBackend) ScanPrefix(namespace, agent, keyPrefix string, fn func(model.StateRecord) error) error {
	prefix := StatePrefix(namespace, agent, keyPrefix)

	var recs []model.StateRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rec, err := decodeStateRecord(v)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltBackend) ScanLogRange(startTS, endTS uint64, fn func(model.EventEntry) error) error {
	startKey := LogKey(startTS)
	endKey := LogKey(endTS)

	var entries []model.EventEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		c := b.Cursor()
		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			e, err := decodeLogEntry(v)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltBackend) GetMeta(name string) ([]byte, bool, error) {
	var data []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		v := b.Get(MetaKey(name))
		if v == nil {
			return nil
		}
		found = true
		data = append([]byte(nil), v...)
		return nil
	})
	return data, found, err
}

func (s *BoltBackend) GetSnapshot(id string) ([]byte, bool, error) {
	var data []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnaps)
		v := b.Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		data = append([]byte(nil), v...)
		return nil
	})
	return data, found, err
}

// BatchWrite writes all state-record updates, the log entry, the
// advanced clock, and an optional snapshot inside a single bbolt
// transaction, so the batch is atomic by construction: bbolt commits
// the whole transaction or none of it.
func (s *BoltBackend) BatchWrite(batch Batch) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		stateBucket := tx.Bucket(bucketState)
		for _, rec := range batch.StateUpserts {
			data, err := encodeStateRecord(rec)
			if err != nil {
				return err
			}
			if err := stateBucket.Put(StateKey(rec.Triple), data); err != nil {
				return err
			}
		}

		logData, err := encodeLogEntry(batch.LogEntry)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketLog).Put(LogKey(batch.LogEntry.CommitTS), logData); err != nil {
			return err
		}

		if err := tx.Bucket(bucketMeta).Put(MetaKey(MetaClock), encodeClock(batch.Clock)); err != nil {
			return err
		}

		if batch.Snapshot != nil {
			if err := tx.Bucket(bucketSnaps).Put([]byte(batch.Snapshot.ID), batch.Snapshot.Data); err != nil {
				return err
			}
			if err := tx.Bucket(bucketMeta).Put(MetaKey(MetaLastSnapshotID), []byte(batch.Snapshot.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("batch write: %w", err)
	}
	if batch.Fsync {
		return s.db.Sync()
	}
	return nil
}
