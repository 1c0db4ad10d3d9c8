// Package snapshot implements the Snapshot Manager and Recovery
// Driver: periodically serializing the live Version Index to durable
// storage, and reloading it (plus replaying the log tail) on startup.
package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/statehouse-dev/statehouse/internal/model"
	"github.com/statehouse-dev/statehouse/internal/versionindex"
)

// Snapshot is a serialized view of the Version Index at a particular
// commit_ts. Tombstones are retained, since the log after the
// snapshot does not by itself carry enough history to re-derive them.
type Snapshot struct {
	CommitTS uint64               `json:"commit_ts"`
	Records  []model.StateRecord  `json:"records"`
}

// Build captures the current contents of idx as of commitTS.
func Build(idx *versionindex.Index, commitTS uint64) Snapshot {
	return Snapshot{CommitTS: commitTS, Records: idx.Snapshot()}
}

// Encode serializes a snapshot for durable storage.
func Encode(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode deserializes a snapshot previously written by Encode.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// Apply installs every record from the snapshot directly into idx.
// Used only during recovery, before any log replay.
func Apply(idx *versionindex.Index, s Snapshot) {
	for _, rec := range s.Records {
		idx.Put(rec)
	}
}

// Merge overlays a commit's state-record updates onto a prior
// snapshot's records, by triple, so a snapshot taken in the same
// storage batch as a commit reflects that commit's effects without
// mutating the live Version Index before the batch durably succeeds.
func Merge(base []model.StateRecord, overrides []model.StateRecord) []model.StateRecord {
	byTriple := make(map[model.Triple]model.StateRecord, len(base)+len(overrides))
	for _, rec := range base {
		byTriple[rec.Triple] = rec
	}
	for _, rec := range overrides {
		byTriple[rec.Triple] = rec
	}
	merged := make([]model.StateRecord, 0, len(byTriple))
	for _, rec := range byTriple {
		merged = append(merged, rec)
	}
	return merged
}

// Cadence tracks how many commits have elapsed since the last
// snapshot and decides when the next one is due; the interval is a
// configuration knob, e.g. every N commits.
type Cadence struct {
	interval uint64
	taken    uint64 // commit_ts of the most recent snapshot, 0 if none yet
}

// NewCadence creates a Cadence with the given interval. An interval
// of 0 disables periodic snapshotting entirely.
func NewCadence(interval uint64) *Cadence {
	return &Cadence{interval: interval}
}

// Due reports whether a snapshot should be taken at commitTS, and if
// so records commitTS as the new baseline.
func (c *Cadence) Due(commitTS uint64) bool {
	if c.interval == 0 {
		return false
	}
	if commitTS-c.taken >= c.interval {
		c.taken = commitTS
		return true
	}
	return false
}
