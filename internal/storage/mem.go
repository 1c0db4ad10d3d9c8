package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/statehouse-dev/statehouse/internal/model"
)

// MemBackend is an in-memory Backend, used for tests and the
// in-memory configuration mode. It mirrors BoltBackend's four buckets
// (state, log, meta, snapshots) as plain Go maps behind one mutex, so BatchWrite's
// all-or-nothing guarantee is trivial: the whole batch is applied
// while holding the lock, or (on a simulated failure) nothing is.
type MemBackend struct {
	mu sync.RWMutex

	state map[string][]byte // StateKey -> encoded StateRecord
	log   map[uint64][]byte // commit_ts -> encoded EventEntry
	meta  map[string][]byte
	snaps map[string][]byte

	// failNext, when true, makes the next BatchWrite fail without
	// mutating state — used by tests to exercise the storage-error path.
	failNext bool
}

// NewMemBackend creates an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{
		state: make(map[string][]byte),
		log:   make(map[uint64][]byte),
		meta:  make(map[string][]byte),
		snaps: make(map[string][]byte),
	}
}

// FailNextBatch arms a one-shot simulated storage failure for the
// next BatchWrite call.
func (m *MemBackend) FailNextBatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

func (m *MemBackend) GetState(t model.Triple) (model.StateRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.state[string(StateKey(t))]
	if !ok {
		return model.StateRecord{}, false, nil
	}
	rec, err := decodeStateRecord(data)
	if err != nil {
		return model.StateRecord{}, false, err
	}
	return rec, true, nil
}

func (m *MemBackend) ScanPrefix(namespace, agent, keyPrefix string, fn func(model.StateRecord) error) error {
	prefix := string(StatePrefix(namespace, agent, keyPrefix))

	m.mu.RLock()
	keys := make([]string, 0, len(m.state))
	for k := range m.state {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	recs := make([]model.StateRecord, 0, len(keys))
	for _, k := range keys {
		rec, err := decodeStateRecord(m.state[k])
		if err != nil {
			m.mu.RUnlock()
			return err
		}
		recs = append(recs, rec)
	}
	m.mu.RUnlock()

	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemBackend) ScanLogRange(startTS, endTS uint64, fn func(model.EventEntry) error) error {
	m.mu.RLock()
	tsList := make([]uint64, 0, len(m.log))
	for ts := range m.log {
		if ts >= startTS && ts <= endTS {
			tsList = append(tsList, ts)
		}
	}
	sort.Slice(tsList, func(i, j int) bool { return tsList[i] < tsList[j] })
	entries := make([]model.EventEntry, 0, len(tsList))
	for _, ts := range tsList {
		e, err := decodeLogEntry(m.log[ts])
		if err != nil {
			m.mu.RUnlock()
			return err
		}
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemBackend) GetMeta(name string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.meta[name]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

func (m *MemBackend) GetSnapshot(id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.snaps[id]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

func (m *MemBackend) BatchWrite(b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext {
		m.failNext = false
		return fmt.Errorf("simulated storage failure")
	}

	stateUpdates := make(map[string][]byte, len(b.StateUpserts))
	for _, rec := range b.StateUpserts {
		data, err := encodeStateRecord(rec)
		if err != nil {
			return err
		}
		stateUpdates[string(StateKey(rec.Triple))] = data
	}

	logData, err := encodeLogEntry(b.LogEntry)
	if err != nil {
		return err
	}

	for k, v := range stateUpdates {
		m.state[k] = v
	}
	m.log[b.LogEntry.CommitTS] = logData
	m.meta[MetaClock] = encodeClock(b.Clock)
	if b.Snapshot != nil {
		m.snaps[b.Snapshot.ID] = b.Snapshot.Data
		m.meta[MetaLastSnapshotID] = []byte(b.Snapshot.ID)
	}
	return nil
}

func (m *MemBackend) Close() error { return nil }
