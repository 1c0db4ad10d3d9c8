// Package versionindex implements the Version Index: the in-memory
// mapping from triple to its latest (value, version, commit_ts),
// mutated only by the single writer and read concurrently by point
// lookups, prefix scans, and key listings.
package versionindex

import (
	"sort"
	"strings"
	"sync"

	"github.com/statehouse-dev/statehouse/internal/model"
)

// Index is the live, in-memory Version Index. It is rebuilt at
// recovery from a snapshot plus the log tail, and thereafter
// maintained in lockstep with every commit.
type Index struct {
	mu      sync.RWMutex
	records map[model.Triple]model.StateRecord
}

// New creates an empty index.
func New() *Index {
	return &Index{records: make(map[model.Triple]model.StateRecord)}
}

// Get returns the current record for a triple, including tombstones.
// ok is false only if the triple has never been written.
func (idx *Index) Get(t model.Triple) (model.StateRecord, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.records[t]
	return rec, ok
}

// CurrentVersion returns the triple's version, or 0 if it has never
// been written — used by the state machine to compute the next
// version at commit time.
func (idx *Index) CurrentVersion(t model.Triple) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.records[t].Version
}

// Put installs a single record directly, bypassing monotonicity
// checks. Used only by snapshot load during recovery; log replay goes
// through Apply.
func (idx *Index) Put(rec model.StateRecord) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.records[rec.Triple] = rec
}

// Apply installs the effects of one committed, collapsed event entry.
// It is the single application function shared by live commits and
// recovery replay, guaranteeing both reconstruct identical state.
func Apply(idx *Index, entry model.EventEntry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, op := range entry.Ops {
		idx.records[op.Triple] = model.StateRecord{
			Triple:   op.Triple,
			Value:    op.Value,
			Exists:   op.Kind == model.OpWrite,
			Version:  op.Version,
			CommitTS: entry.CommitTS,
		}
	}
}

// ListKeys returns the live (non-tombstoned) keys under
// (namespace, agent) in ascending order.
func (idx *Index) ListKeys(namespace, agent string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var keys []string
	for t, rec := range idx.records {
		if t.Namespace == namespace && t.Agent == agent && rec.Exists {
			keys = append(keys, t.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

// ScanPrefix returns live records under (namespace, agent, keyPrefix)
// in ascending key order. It is a consistent snapshot of whatever
// commit_ts frontier the index reflected at the moment of the call:
// readers never observe a half-applied commit, since Apply holds the
// write lock for its entire duration.
func (idx *Index) ScanPrefix(namespace, agent, keyPrefix string) []model.StateRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var recs []model.StateRecord
	for t, rec := range idx.records {
		if t.Namespace != namespace || t.Agent != agent || !rec.Exists {
			continue
		}
		if !strings.HasPrefix(t.Key, keyPrefix) {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Triple.Key < recs[j].Triple.Key })
	return recs
}

// Snapshot returns every live record, including tombstones, for the
// Snapshot Manager to serialize.
func (idx *Index) Snapshot() []model.StateRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]model.StateRecord, 0, len(idx.records))
	for _, rec := range idx.records {
		out = append(out, rec)
	}
	return out
}

// Len reports the number of triples the index currently tracks,
// including tombstones.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}
