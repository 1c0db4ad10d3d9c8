// Package storage implements the Storage Backend: point lookups,
// prefix iteration, atomic multi-record batch writes, and ordered
// event-log iteration, behind a single interface with two
// implementations — an embedded BoltDB-backed production backend and
// an in-memory backend for tests and in-memory mode.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/statehouse-dev/statehouse/internal/model"
)

// Backend is the interface the rest of the engine programs against.
// Every write that must be atomic (a commit's state-record updates,
// its log entry, and its clock advance) goes through BatchWrite.
type Backend interface {
	// GetState returns the current record for a triple. ok is false
	// if the triple has never been written.
	GetState(t model.Triple) (rec model.StateRecord, ok bool, err error)

	// ScanPrefix iterates live and tombstoned records under
	// (namespace, agent, keyPrefix) in ascending key order, invoking
	// fn for each. Iteration stops at the first error fn returns.
	ScanPrefix(namespace, agent, keyPrefix string, fn func(model.StateRecord) error) error

	// ScanLogRange iterates event log entries with commit_ts in
	// [startTS, endTS] ascending, invoking fn for each.
	ScanLogRange(startTS, endTS uint64, fn func(model.EventEntry) error) error

	// GetMeta reads a metadata row.
	GetMeta(name string) (data []byte, ok bool, err error)

	// GetSnapshot reads a previously written snapshot blob by id.
	GetSnapshot(id string) (data []byte, ok bool, err error)

	// BatchWrite commits one atomic batch: state record updates, one
	// log entry, the advanced commit clock, and (optionally) a new
	// snapshot. Either the whole batch is applied, or none of it is.
	BatchWrite(b Batch) error

	// Close releases the backend's resources.
	Close() error
}

// Batch is one atomic write: the state record updates belonging to a
// single commit, its log entry, the metadata clock it advances to,
// and an optional snapshot to persist in the same transaction.
type Batch struct {
	StateUpserts []model.StateRecord
	LogEntry     model.EventEntry
	Clock        uint64
	Snapshot     *SnapshotWrite
	Fsync        bool
}

// SnapshotWrite is an optional snapshot payload persisted alongside a
// commit batch, plus the metadata pointer update that makes it the
// latest snapshot.
type SnapshotWrite struct {
	ID   string
	Data []byte
}

// encodeLogEntry/decodeLogEntry give both backend implementations a
// single, shared on-disk representation for event log entries.
func encodeLogEntry(e model.EventEntry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeLogEntry(data []byte) (model.EventEntry, error) {
	var e model.EventEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return model.EventEntry{}, fmt.Errorf("decode log entry: %w", err)
	}
	return e, nil
}

func encodeStateRecord(r model.StateRecord) ([]byte, error) {
	return json.Marshal(r)
}

func decodeStateRecord(data []byte) (model.StateRecord, error) {
	var r model.StateRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return model.StateRecord{}, fmt.Errorf("decode state record: %w", err)
	}
	return r, nil
}

func encodeClock(clock uint64) []byte {
	return []byte(fmt.Sprintf("%d", clock))
}

func decodeClock(data []byte) (uint64, error) {
	var clock uint64
	if _, err := fmt.Sscanf(string(data), "%d", &clock); err != nil {
		return 0, fmt.Errorf("decode clock: %w", err)
	}
	return clock, nil
}

// DecodeClock exposes the clock row codec to callers outside this
// package, namely the Recovery Driver reading MetaClock at startup.
func DecodeClock(data []byte) (uint64, error) {
	return decodeClock(data)
}
