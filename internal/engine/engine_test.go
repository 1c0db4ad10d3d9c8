package engine

import (
	"testing"
	"time"

	"github.com/statehouse-dev/statehouse/internal/config"
	"github.com/statehouse-dev/statehouse/internal/model"
	"github.com/statehouse-dev/statehouse/internal/snapshot"
	"github.com/statehouse-dev/statehouse/internal/storage"
	"github.com/statehouse-dev/statehouse/internal/txn"
	"github.com/statehouse-dev/statehouse/internal/value"
	"github.com/statehouse-dev/statehouse/internal/versionindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.InMemory = true
	cfg.SnapshotInterval = 0
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func tr(agent, key string) model.Triple {
	return model.Triple{Namespace: "default", Agent: agent, Key: key}
}

func commitOne(t *testing.T, e *Engine, stage func(txnID string) *model.Error) uint64 {
	t.Helper()
	id := e.BeginTransaction(time.Minute)
	require.Nil(t, stage(id))
	commitTS, err := e.Commit(id)
	require.Nil(t, err)
	return commitTS
}

func drainReplay(t *testing.T, e *Engine, namespace, agent string, start, end uint64) []model.EventEntry {
	t.Helper()
	ch, stop, rerr := e.Replay(namespace, agent, start, end)
	require.Nil(t, rerr)
	defer stop()

	var out []model.EventEntry
	for ev := range ch {
		out = append(out, model.EventEntry{TxnID: ev.TxnID, CommitTS: ev.CommitTS, Ops: ev.Ops})
	}
	return out
}

// Scenario 1 (spec §8): single-key lifecycle.
func TestSingleKeyLifecycle(t *testing.T) {
	e := newTestEngine(t)
	k := tr("a", "x")

	ts1 := commitOne(t, e, func(id string) *model.Error { return e.Write(id, k, value.Number(1)) })
	assert.Equal(t, uint64(1), ts1)
	rec, err := e.GetState(k)
	require.Nil(t, err)
	assert.True(t, rec.Exists)
	assert.Equal(t, uint64(1), rec.Version)
	assert.Equal(t, uint64(1), rec.CommitTS)

	ts2 := commitOne(t, e, func(id string) *model.Error { return e.Write(id, k, value.Number(2)) })
	assert.Equal(t, uint64(2), ts2)
	rec, err = e.GetState(k)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), rec.Version)
	assert.True(t, value.Equal(value.Number(2), rec.Value))

	ts3 := commitOne(t, e, func(id string) *model.Error { return e.Delete(id, k) })
	assert.Equal(t, uint64(3), ts3)
	rec, err = e.GetState(k)
	require.Nil(t, err)
	assert.False(t, rec.Exists)
	assert.Equal(t, uint64(3), rec.Version)
}

// Scenario 2 (spec §8): atomicity — two writes in one transaction
// land in a single replay event with a shared commit_ts.
func TestAtomicity(t *testing.T) {
	e := newTestEngine(t)
	ka, kb := tr("ag", "a"), tr("ag", "b")

	id := e.BeginTransaction(time.Minute)
	require.Nil(t, e.Write(id, ka, value.Number(1)))
	require.Nil(t, e.Write(id, kb, value.Number(2)))
	commitTS, cerr := e.Commit(id)
	require.Nil(t, cerr)

	events := drainReplay(t, e, "default", "ag", 0, 0)
	require.Len(t, events, 1)
	assert.Len(t, events[0].Ops, 2)
	assert.Equal(t, commitTS, events[0].CommitTS)

	recA, _ := e.GetState(ka)
	recB, _ := e.GetState(kb)
	assert.Equal(t, uint64(1), recA.Version)
	assert.Equal(t, recA.CommitTS, recB.CommitTS)
}

// Scenario 3 (spec §8): isolation across agents in the same namespace.
func TestIsolationAcrossAgents(t *testing.T) {
	e := newTestEngine(t)

	ts1 := commitOne(t, e, func(id string) *model.Error { return e.Write(id, tr("A1", "k"), value.Number(1)) })
	ts2 := commitOne(t, e, func(id string) *model.Error { return e.Write(id, tr("A2", "k"), value.Number(2)) })

	ev1 := drainReplay(t, e, "default", "A1", 0, 0)
	require.Len(t, ev1, 1)
	assert.Equal(t, ts1, ev1[0].CommitTS)

	ev2 := drainReplay(t, e, "default", "A2", 0, 0)
	require.Len(t, ev2, 1)
	assert.Equal(t, ts2, ev2[0].CommitTS)
}

// Scenario 4 (spec §8): an aborted transaction is invisible to both
// reads and replay.
func TestAbortedTransactionInvisible(t *testing.T) {
	e := newTestEngine(t)
	k := tr("a", "k")

	id := e.BeginTransaction(time.Minute)
	require.Nil(t, e.Write(id, k, value.Number(1)))
	e.Abort(id)

	rec, err := e.GetState(k)
	require.Nil(t, err)
	assert.False(t, rec.Exists)

	events := drainReplay(t, e, "default", "a", 0, 0)
	assert.Empty(t, events)
}

// Scenario 6 (spec §8): interleaved commits across agents replay back
// in strict commit_ts order per agent, with gaps for commits that
// didn't touch that agent.
func TestReplayOrdering(t *testing.T) {
	e := newTestEngine(t)

	agents := []string{"A1", "A2", "A3", "A1", "A2", "A1", "A3", "A2", "A1", "A3"}
	var commitTSByAgent = map[string][]uint64{}
	for i, ag := range agents {
		ts := commitOne(t, e, func(id string) *model.Error {
			return e.Write(id, tr(ag, "k"), value.Number(float64(i)))
		})
		commitTSByAgent[ag] = append(commitTSByAgent[ag], ts)
	}

	for _, ag := range []string{"A1", "A2", "A3"} {
		events := drainReplay(t, e, "default", ag, 0, 0)
		require.Len(t, events, len(commitTSByAgent[ag]))
		for i, ev := range events {
			assert.Equal(t, commitTSByAgent[ag][i], ev.CommitTS)
		}
	}
}

// Boundary: an empty transaction still advances commit_ts and emits
// an entry, but replay never yields an event with no matching ops.
func TestEmptyTransactionAdvancesClockButIsInvisibleToReplay(t *testing.T) {
	e := newTestEngine(t)

	id := e.BeginTransaction(time.Minute)
	commitTS, err := e.Commit(id)
	require.Nil(t, err)
	assert.Equal(t, uint64(1), commitTS)

	second := commitOne(t, e, func(id string) *model.Error { return e.Write(id, tr("a", "k"), value.Number(1)) })
	assert.Equal(t, uint64(2), second, "commit_ts keeps advancing across the empty commit")

	events := drainReplay(t, e, "default", "a", 0, 0)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(2), events[0].CommitTS)
}

// Boundary: staging the same triple twice collapses to one version bump.
func TestStagingSameTripleTwiceCollapses(t *testing.T) {
	e := newTestEngine(t)
	k := tr("a", "k")

	id := e.BeginTransaction(time.Minute)
	require.Nil(t, e.Write(id, k, value.Number(1)))
	require.Nil(t, e.Write(id, k, value.Number(2)))
	_, err := e.Commit(id)
	require.Nil(t, err)

	rec, _ := e.GetState(k)
	assert.Equal(t, uint64(1), rec.Version, "two stages on one triple within a transaction bump version once")
	assert.True(t, value.Equal(value.Number(2), rec.Value))
}

// Boundary: deleting a key that was never written tombstones it at
// version 1.
func TestDeleteNeverWrittenKeyTombstonesAtVersionOne(t *testing.T) {
	e := newTestEngine(t)
	k := tr("a", "ghost")

	commitOne(t, e, func(id string) *model.Error { return e.Delete(id, k) })

	rec, err := e.GetState(k)
	require.Nil(t, err)
	assert.False(t, rec.Exists)
	assert.Equal(t, uint64(1), rec.Version)
}

// Boundary: version 0 and version beyond current both fail with
// version-not-found.
func TestGetStateAtVersionBounds(t *testing.T) {
	e := newTestEngine(t)
	k := tr("a", "k")
	commitOne(t, e, func(id string) *model.Error { return e.Write(id, k, value.Number(1)) })

	_, err := e.GetStateAtVersion(k, 0)
	require.NotNil(t, err)
	assert.Equal(t, model.ErrVersionNotFound, err.Kind)

	_, err = e.GetStateAtVersion(k, 99)
	require.NotNil(t, err)
	assert.Equal(t, model.ErrVersionNotFound, err.Kind)

	rec, err := e.GetStateAtVersion(k, 1)
	require.Nil(t, err)
	assert.True(t, rec.Exists)
}

// Boundary: replay with start_ts > end_ts returns an empty stream.
func TestReplayStartAfterEndIsEmpty(t *testing.T) {
	e := newTestEngine(t)
	commitOne(t, e, func(id string) *model.Error { return e.Write(id, tr("a", "k"), value.Number(1)) })

	events := drainReplay(t, e, "default", "a", 5, 1)
	assert.Empty(t, events)
}

// Boundary: an expired transaction rejects commit with txn-expired and
// produces no visible effect.
func TestExpiredThenCommitFails(t *testing.T) {
	e := newTestEngine(t)
	k := tr("a", "k")

	id := e.BeginTransaction(time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, err := e.Commit(id)
	require.NotNil(t, err)
	assert.Equal(t, model.ErrTxnExpired, err.Kind)

	rec, gerr := e.GetState(k)
	require.Nil(t, gerr)
	assert.False(t, rec.Exists)
}

// A storage failure during commit aborts the transaction and leaves
// no trace; the engine continues serving subsequent commits.
func TestStorageErrorAbortsCommit(t *testing.T) {
	backend := storage.NewMemBackend()
	e := &Engine{
		cfg:      config.Config{FsyncOnCommit: false},
		backend:  backend,
		idx:      versionindex.New(),
		txns:     txn.NewTable(),
		cadence:  snapshot.NewCadence(0),
		commitCh: make(chan commitRequest, commitQueueDepth),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go e.writerLoop()
	defer e.Close()

	k := tr("a", "k")
	backend.FailNextBatch()

	id := e.BeginTransaction(time.Minute)
	require.Nil(t, e.Write(id, k, value.Number(1)))
	_, err := e.Commit(id)
	require.NotNil(t, err)
	assert.Equal(t, model.ErrStorage, err.Kind)

	rec, gerr := e.GetState(k)
	require.Nil(t, gerr)
	assert.False(t, rec.Exists, "a failed commit must not be visible")

	// The engine stays available: a subsequent commit succeeds.
	ts := commitOne(t, e, func(id string) *model.Error { return e.Write(id, k, value.Number(2)) })
	assert.Equal(t, uint64(1), ts, "the failed commit never consumed a commit_ts")
}

// Scenario 5 (spec §8): recovery after restart restores the commit
// clock and every read, and the next commit continues the sequence.
func TestRecoveryAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.InMemory = false
	cfg.SnapshotInterval = 10

	e1, err := New(cfg)
	require.NoError(t, err)

	const n = 100
	for i := 0; i < n; i++ {
		commitOne(t, e1, func(id string) *model.Error {
			return e1.Write(id, tr("a", "k"), value.Number(float64(i)))
		})
	}
	recBefore, _ := e1.GetState(tr("a", "k"))
	require.NoError(t, e1.Close())

	e2, err := New(cfg)
	require.NoError(t, err)
	defer e2.Close()

	recAfter, gerr := e2.GetState(tr("a", "k"))
	require.Nil(t, gerr)
	assert.Equal(t, recBefore.Version, recAfter.Version)
	assert.Equal(t, recBefore.CommitTS, recAfter.CommitTS)
	assert.True(t, value.Equal(recBefore.Value, recAfter.Value))

	ts := commitOne(t, e2, func(id string) *model.Error { return e2.Write(id, tr("a", "next"), value.Number(1)) })
	assert.Equal(t, uint64(n+1), ts)
}

func TestHealthAndVersion(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, "ok", e.Health())
	v, b := e.BuildVersion()
	assert.NotEmpty(t, v)
	assert.NotEmpty(t, b)
}

func TestWriteRejectsEmptyAgent(t *testing.T) {
	e := newTestEngine(t)
	id := e.BeginTransaction(time.Minute)
	err := e.Write(id, model.Triple{Key: "k"}, value.Null())
	require.NotNil(t, err)
	assert.Equal(t, model.ErrInvalidRequest, err.Kind)
}

// A component containing the internal key separator byte would let a
// prefix scan cross a triple boundary; it must be rejected up front.
func TestWriteRejectsSeparatorByteInAgent(t *testing.T) {
	e := newTestEngine(t)
	id := e.BeginTransaction(time.Minute)
	err := e.Write(id, model.Triple{Agent: "a" + model.ComponentSeparator + "b", Key: "k"}, value.Null())
	require.NotNil(t, err)
	assert.Equal(t, model.ErrInvalidRequest, err.Kind)
}
