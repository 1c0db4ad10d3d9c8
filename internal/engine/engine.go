// Package engine is the single exported entry point: the State
// Machine (single-writer linearization point) plus the facade that
// implements every public operation. The writer loop serializes
// commits behind a single applier goroutine: hand it a transaction id,
// wait for its result on a one-shot channel.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/statehouse-dev/statehouse/internal/config"
	"github.com/statehouse-dev/statehouse/internal/eventlog"
	"github.com/statehouse-dev/statehouse/internal/metrics"
	"github.com/statehouse-dev/statehouse/internal/model"
	"github.com/statehouse-dev/statehouse/internal/slog"
	"github.com/statehouse-dev/statehouse/internal/snapshot"
	"github.com/statehouse-dev/statehouse/internal/storage"
	"github.com/statehouse-dev/statehouse/internal/txn"
	"github.com/statehouse-dev/statehouse/internal/value"
	"github.com/statehouse-dev/statehouse/internal/versionindex"
)

// Version and BuildID are overridden via -ldflags at release build time.
var (
	Version = "dev"
	BuildID = "unknown"
)

// commitQueueDepth bounds the FIFO of pending commit requests (spec
// §5: "a ready-queue (FIFO) of commit requests provides fairness").
const commitQueueDepth = 256

type commitRequest struct {
	txnID    string
	resultCh chan commitResult
}

type commitResult struct {
	commitTS uint64
	err      *model.Error
}

// Engine is the process-wide, owned, initialized-once resource: one
// Storage Backend, one Version Index, one Transaction Table, and one
// writer goroutine serializing every commit.
type Engine struct {
	cfg     config.Config
	backend storage.Backend
	idx     *versionindex.Index
	txns    *txn.Table
	cadence *snapshot.Cadence
	clock   atomic.Uint64

	commitCh chan commitRequest
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New opens the configured backend, recovers state from the latest
// snapshot and log tail, and starts the writer loop.
func New(cfg config.Config) (*Engine, error) {
	var backend storage.Backend
	var err error
	if cfg.InMemory {
		backend = storage.NewMemBackend()
	} else {
		backend, err = storage.NewBoltBackend(cfg.DataDir)
		if err != nil {
			return nil, model.WrapError("engine.New", model.ErrStorage, err)
		}
	}

	idx := versionindex.New()
	timer := metrics.NewTimer()
	restoredClock, err := snapshot.Recover(backend, idx)
	if err != nil {
		backend.Close()
		return nil, err
	}
	timer.ObserveDuration(metrics.RecoveryDuration)
	slog.WithComponent("engine").Info().Uint64("commit_ts", restoredClock).
		Msg("recovered commit clock")

	e := &Engine{
		cfg:      cfg,
		backend:  backend,
		idx:      idx,
		txns:     txn.NewTable(),
		cadence:  snapshot.NewCadence(cfg.SnapshotInterval),
		commitCh: make(chan commitRequest, commitQueueDepth),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	e.clock.Store(restoredClock)

	go e.writerLoop()
	return e, nil
}

// Close stops the writer loop, lets any in-flight commit finish, and
// releases the storage backend.
func (e *Engine) Close() error {
	close(e.stopCh)
	<-e.doneCh
	e.txns.Close()
	return e.backend.Close()
}

func (e *Engine) writerLoop() {
	defer close(e.doneCh)
	for {
		select {
		case req := <-e.commitCh:
			e.applyCommit(req)
		case <-e.stopCh:
			return
		}
	}
}

// applyCommit is the State Machine's apply procedure: validate the
// transaction, assign the next commit_ts and per-triple versions,
// build one atomic storage batch, and commit it — executed one
// request at a time on the writer goroutine.
func (e *Engine) applyCommit(req commitRequest) {
	timer := metrics.NewTimer()

	ops, txnErr := e.txns.BeginCommit(req.txnID)
	if txnErr != nil {
		req.resultCh <- commitResult{err: txnErr}
		return
	}

	newCommitTS := e.clock.Load() + 1

	assigned := make([]model.Operation, len(ops))
	upserts := make([]model.StateRecord, len(ops))
	for i, op := range ops {
		newVersion := e.idx.CurrentVersion(op.Triple) + 1
		op.Version = newVersion
		assigned[i] = op
		upserts[i] = model.StateRecord{
			Triple:   op.Triple,
			Value:    op.Value,
			Exists:   op.Kind == model.OpWrite,
			Version:  newVersion,
			CommitTS: newCommitTS,
		}
	}

	entry := model.EventEntry{TxnID: req.txnID, CommitTS: newCommitTS, Ops: assigned}
	batch := storage.Batch{
		StateUpserts: upserts,
		LogEntry:     entry,
		Clock:        newCommitTS,
		Fsync:        e.cfg.FsyncOnCommit,
	}

	var tookSnapshot bool
	if e.cadence.Due(newCommitTS) {
		merged := snapshot.Merge(e.idx.Snapshot(), upserts)
		data, err := snapshot.Encode(snapshot.Snapshot{CommitTS: newCommitTS, Records: merged})
		if err == nil {
			batch.Snapshot = &storage.SnapshotWrite{ID: fmt.Sprintf("snap-%020d", newCommitTS), Data: data}
			tookSnapshot = true
		} else {
			slog.WithComponent("snapshot").Error().Uint64("commit_ts", newCommitTS).Err(err).
				Msg("failed to encode snapshot")
		}
	}

	if err := e.backend.BatchWrite(batch); err != nil {
		e.txns.FailCommit(req.txnID)
		metrics.CommitsTotal.WithLabelValues("aborted").Inc()
		metrics.StorageErrorsTotal.WithLabelValues("commit").Inc()
		req.resultCh <- commitResult{err: model.WrapError("commit", model.ErrStorage, err)}
		return
	}

	// The batch is now durable. Before swapping it into the live index,
	// verify every assigned version is exactly one past what the index
	// currently holds. Under the single-writer rule this can never
	// actually regress; it is a fail-fast check against the invariant
	// spec.md §7 calls internal-error, not a recovery path — the
	// batch already committed, so we surface the failure rather than
	// silently corrupting the index with an out-of-order version.
	for _, op := range assigned {
		if op.Version != e.idx.CurrentVersion(op.Triple)+1 {
			e.txns.FailCommit(req.txnID)
			slog.WithCommitTS(newCommitTS).Error().Str("triple", op.Triple.String()).
				Msg("version regression detected after durable commit")
			metrics.CommitsTotal.WithLabelValues("aborted").Inc()
			req.resultCh <- commitResult{err: model.NewError("commit", model.ErrInternal)}
			return
		}
	}

	versionindex.Apply(e.idx, entry)
	e.clock.Store(newCommitTS)
	e.txns.FinishCommit(req.txnID)

	timer.ObserveDuration(metrics.CommitDuration)
	metrics.CommitsTotal.WithLabelValues("committed").Inc()
	slog.WithTxnID(req.txnID).Debug().Uint64("commit_ts", newCommitTS).Int("ops", len(assigned)).
		Msg("transaction committed")
	if tookSnapshot {
		metrics.SnapshotsTotal.Inc()
		slog.WithComponent("snapshot").Info().Uint64("commit_ts", newCommitTS).
			Msg("snapshot taken")
	}

	req.resultCh <- commitResult{commitTS: newCommitTS}
}

// Health reports engine liveness.
func (e *Engine) Health() string { return "ok" }

// BuildVersion reports the build version and build id.
func (e *Engine) BuildVersion() (string, string) { return Version, BuildID }

// BeginTransaction allocates a new transaction, defaulting the
// timeout from configuration when the caller omits one.
func (e *Engine) BeginTransaction(timeout time.Duration) string {
	if timeout <= 0 {
		timeout = e.cfg.DefaultTxnTimeout
	}
	return e.txns.Begin(timeout)
}

// Write stages a write operation on an open transaction.
func (e *Engine) Write(txnID string, t model.Triple, v value.Value) *model.Error {
	nt, err := t.Normalize()
	if err != nil {
		return model.WrapError("write", model.ErrInvalidRequest, err)
	}
	return e.txns.Stage(txnID, model.Operation{Triple: nt, Kind: model.OpWrite, Value: v})
}

// Delete stages a delete operation on an open transaction.
func (e *Engine) Delete(txnID string, t model.Triple) *model.Error {
	nt, err := t.Normalize()
	if err != nil {
		return model.WrapError("delete", model.ErrInvalidRequest, err)
	}
	return e.txns.Stage(txnID, model.Operation{Triple: nt, Kind: model.OpDelete})
}

// Commit hands the transaction off to the State Machine and blocks
// until it has been applied or rejected.
func (e *Engine) Commit(txnID string) (uint64, *model.Error) {
	resultCh := make(chan commitResult, 1)
	select {
	case e.commitCh <- commitRequest{txnID: txnID, resultCh: resultCh}:
	case <-e.stopCh:
		return 0, model.NewError("commit", model.ErrInternal)
	}
	res := <-resultCh
	return res.commitTS, res.err
}

// Abort discards a transaction's staged operations. Idempotent.
func (e *Engine) Abort(txnID string) {
	e.txns.Abort(txnID)
}

// GetState returns the current record for a triple (exists=false, no
// error, if the triple has never been written).
func (e *Engine) GetState(t model.Triple) (model.StateRecord, *model.Error) {
	nt, err := t.Normalize()
	if err != nil {
		return model.StateRecord{}, model.WrapError("get_state", model.ErrInvalidRequest, err)
	}
	rec, ok := e.idx.Get(nt)
	if !ok {
		return model.StateRecord{Triple: nt}, nil
	}
	return rec, nil
}

// GetStateAtVersion returns the record as it stood at a specific
// version, scanning the event log since the Version Index alone does
// not retain history.
func (e *Engine) GetStateAtVersion(t model.Triple, version uint64) (model.StateRecord, *model.Error) {
	nt, err := t.Normalize()
	if err != nil {
		return model.StateRecord{}, model.WrapError("get_state_at_version", model.ErrInvalidRequest, err)
	}
	current := e.idx.CurrentVersion(nt)
	if version == 0 || version > current {
		return model.StateRecord{}, model.NewError("get_state_at_version", model.ErrVersionNotFound)
	}
	rec, found, scanErr := eventlog.FindAtVersion(e.backend, nt, version, e.clock.Load())
	if scanErr != nil {
		return model.StateRecord{}, model.WrapError("get_state_at_version", model.ErrStorage, scanErr)
	}
	if !found {
		return model.StateRecord{}, model.NewError("get_state_at_version", model.ErrVersionNotFound)
	}
	return rec, nil
}

// ListKeys returns live keys under (namespace, agent) in ascending order.
func (e *Engine) ListKeys(namespace, agent string) ([]string, *model.Error) {
	ns, ag, err := model.NormalizeScope(namespace, agent)
	if err != nil {
		return nil, model.WrapError("list_keys", model.ErrInvalidRequest, err)
	}
	keys := e.idx.ListKeys(ns, ag)
	slog.WithNamespace(ns).Debug().Str("agent", ag).Int("keys", len(keys)).Msg("list_keys")
	return keys, nil
}

// ScanPrefix returns live records under (namespace, agent, keyPrefix)
// in ascending key order, a consistent snapshot as of some commit_ts
// no later than the moment of the call.
func (e *Engine) ScanPrefix(namespace, agent, keyPrefix string) ([]model.StateRecord, *model.Error) {
	ns, ag, err := model.NormalizeScope(namespace, agent)
	if err != nil {
		return nil, model.WrapError("scan_prefix", model.ErrInvalidRequest, err)
	}
	return e.idx.ScanPrefix(ns, ag, keyPrefix), nil
}

// Replay streams committed events for (namespace, agent) in
// [startTS, endTS]. endTS of 0 means the latest commit_ts at the
// moment the stream was initiated.
func (e *Engine) Replay(namespace, agent string, startTS, endTS uint64) (<-chan eventlog.Event, func(), *model.Error) {
	ns, ag, err := model.NormalizeScope(namespace, agent)
	if err != nil {
		return nil, nil, model.WrapError("replay", model.ErrInvalidRequest, err)
	}
	if endTS == 0 {
		endTS = e.clock.Load()
	}

	slog.WithAgent(ag).Debug().Str("namespace", ns).Uint64("start_ts", startTS).Uint64("end_ts", endTS).
		Msg("replay stream opened")
	metrics.ReplayStreamsActive.Inc()
	rawCh, cancel := eventlog.Replay(context.Background(), e.backend, ns, ag, startTS, endTS)

	out := make(chan eventlog.Event, replayForwardBuffer)
	go func() {
		defer close(out)
		for ev := range rawCh {
			metrics.ReplayEventsServedTotal.Inc()
			out <- ev
		}
	}()

	stop := func() {
		cancel()
		metrics.ReplayStreamsActive.Dec()
	}
	return out, stop, nil
}

// replayForwardBuffer sizes the metrics-counting relay channel placed
// between eventlog.Replay's producer and the caller.
const replayForwardBuffer = 50
