// Package eventlog implements the Replay Stream (spec §4.5): a
// bounded, pull-driven, deterministic sequence of committed events
// for (namespace, agent) over a commit_ts range. The producer/consumer
// shape is grounded on the teacher's event Broker
// (pkg/events/events.go) — a buffered channel plus a cancellation
// signal the send loop selects on — adapted from live pub/sub fan-out
// to a single bounded historical scan per call.
package eventlog

import (
	"context"

	"github.com/statehouse-dev/statehouse/internal/model"
	"github.com/statehouse-dev/statehouse/internal/storage"
)

// Event is one entry yielded to a replay consumer: a committed
// transaction's id, commit_ts, and the subset of its operations that
// matched the (namespace, agent) filter.
type Event struct {
	TxnID    string
	CommitTS uint64
	Ops      []model.Operation
}

// streamBuffer is the channel depth for a replay stream, matching the
// teacher's per-subscriber buffer size in events.Broker.
const streamBuffer = 50

// Replay scans the event log for commit_ts in [startTS, endTS],
// filters each entry's operations down to those matching
// (namespace, agent), and streams the non-empty results in commit_ts
// order. Entries with no matching operations are not yielded (spec
// §4.5). The returned cancel func stops the producer goroutine; it is
// always safe to call, including after the channel has closed.
func Replay(ctx context.Context, backend storage.Backend, namespace, agent string, startTS, endTS uint64) (<-chan Event, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Event, streamBuffer)

	go func() {
		defer close(out)
		if startTS > endTS {
			return
		}
		_ = backend.ScanLogRange(startTS, endTS, func(entry model.EventEntry) error {
			var matched []model.Operation
			for _, op := range entry.Ops {
				if op.Triple.Namespace == namespace && op.Triple.Agent == agent {
					matched = append(matched, op)
				}
			}
			if len(matched) == 0 {
				return nil
			}
			select {
			case out <- Event{TxnID: entry.TxnID, CommitTS: entry.CommitTS, Ops: matched}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	return out, cancel
}

// FindAtVersion scans the log up to upToTS for the entry that assigned
// version to triple, serving get_state_at_version (spec §4.2: "the
// index alone is insufficient; this operation is served by a scan of
// the event log"). A given (triple, version) pair is assigned by at
// most one commit, so the first match found is the only one.
func FindAtVersion(backend storage.Backend, triple model.Triple, version, upToTS uint64) (model.StateRecord, bool, error) {
	var (
		found model.StateRecord
		ok    bool
	)
	err := backend.ScanLogRange(0, upToTS, func(entry model.EventEntry) error {
		for _, op := range entry.Ops {
			if op.Triple == triple && op.Version == version {
				found = model.StateRecord{
					Triple:   triple,
					Value:    op.Value,
					Exists:   op.Kind == model.OpWrite,
					Version:  op.Version,
					CommitTS: entry.CommitTS,
				}
				ok = true
			}
		}
		return nil
	})
	return found, ok, err
}
