// Package txn implements the Transaction Table: open transactions,
// their staged operations, deadlines, and lifecycle states — a map
// behind a mutex, a deadline-based expiry sweep, and idempotent
// terminal transitions.
package txn

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/statehouse-dev/statehouse/internal/metrics"
	"github.com/statehouse-dev/statehouse/internal/model"
	"github.com/statehouse-dev/statehouse/internal/slog"
)

// DefaultTimeout is used when a begin request omits an explicit one.
const DefaultTimeout = 30 * time.Second

// transaction is the table's internal record for one open transaction.
type transaction struct {
	id       string
	deadline time.Time
	state    model.TxnState
	// ops preserves staged order; staging the same triple again just
	// appends, so "last write wins" is resolved by collapse().
	ops []model.Operation
}

// Table holds all transactions the engine currently knows about.
// Open transactions live here until committed, aborted, or expired,
// at which point they are removed from the table. A transaction found
// expired by a stage or commit call stays, marked Expired, until the
// next sweep removes it, so repeated calls on it report txn-expired.
type Table struct {
	mu   sync.Mutex
	txns map[string]*transaction

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewTable creates an empty transaction table and starts its
// background expiry sweep.
func NewTable() *Table {
	t := &Table{
		txns:   make(map[string]*transaction),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Close stops the background expiry sweep.
func (t *Table) Close() {
	close(t.stopCh)
	<-t.doneCh
}

func (t *Table) sweepLoop() {
	defer close(t.doneCh)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.expireOverdue()
		case <-t.stopCh:
			return
		}
	}
}

func (t *Table) expireOverdue() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, txn := range t.txns {
		if now.After(txn.deadline) {
			if txn.state == model.TxnOpen {
				txn.state = model.TxnExpired
				metrics.OpenTransactions.Dec()
				metrics.TransactionsExpiredTotal.Inc()
				slog.WithTxnID(id).Debug().Msg("transaction expired")
			}
			delete(t.txns, id)
		}
	}
}

// Begin allocates a new transaction id with the given timeout
// (DefaultTimeout if zero) and returns it.
func (t *Table) Begin(timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	id := uuid.NewString()
	t.mu.Lock()
	t.txns[id] = &transaction{
		id:       id,
		deadline: time.Now().Add(timeout),
		state:    model.TxnOpen,
	}
	t.mu.Unlock()
	metrics.OpenTransactions.Inc()
	return id
}

// lookupLocked returns the live transaction for id, lazily marking it
// Expired if its deadline has passed. Callers must not retain the
// pointer past the enclosing lock.
func (t *Table) lookupLocked(id string) (*transaction, *model.Error) {
	txn, ok := t.txns[id]
	if !ok {
		return nil, model.NewError("txn", model.ErrTxnNotFound)
	}
	if txn.state == model.TxnOpen && time.Now().After(txn.deadline) {
		txn.state = model.TxnExpired
		txn.ops = nil
		metrics.OpenTransactions.Dec()
		metrics.TransactionsExpiredTotal.Inc()
		return nil, model.NewError("txn", model.ErrTxnExpired)
	}
	switch txn.state {
	case model.TxnOpen:
		return txn, nil
	case model.TxnCommitted, model.TxnAborted:
		return nil, model.NewError("txn", model.ErrTxnAlreadyComplete)
	case model.TxnExpired:
		return nil, model.NewError("txn", model.ErrTxnExpired)
	default:
		return nil, model.NewError("txn", model.ErrInternal)
	}
}

// Stage appends an operation to an Open, unexpired transaction.
func (t *Table) Stage(id string, op model.Operation) *model.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	txn, err := t.lookupLocked(id)
	if err != nil {
		return err
	}
	txn.ops = append(txn.ops, op)
	return nil
}

// BeginCommit validates the transaction is committable and returns
// its collapsed operation list (last-staged-per-triple wins) without
// yet marking it Committed — the caller (the state machine) only
// finalizes the transition after its storage batch succeeds.
func (t *Table) BeginCommit(id string) ([]model.Operation, *model.Error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	txn, err := t.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return collapse(txn.ops), nil
}

// FinishCommit marks a transaction Committed and removes it from the
// table. Called only after the state machine's storage batch for it
// has durably succeeded.
func (t *Table) FinishCommit(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.txns[id]; ok {
		delete(t.txns, id)
		metrics.OpenTransactions.Dec()
	}
}

// FailCommit marks a transaction Aborted after its storage batch
// failed.
func (t *Table) FailCommit(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.txns[id]; ok {
		delete(t.txns, id)
		metrics.OpenTransactions.Dec()
	}
}

// Abort discards a transaction's staged operations. Idempotent on an
// already-terminal or unknown transaction id.
func (t *Table) Abort(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if txn, ok := t.txns[id]; ok {
		if txn.state == model.TxnOpen {
			metrics.OpenTransactions.Dec()
		}
		delete(t.txns, id)
	}
}

// collapse applies "last staged operation per triple wins",
// preserving the order of each triple's final appearance.
func collapse(ops []model.Operation) []model.Operation {
	last := make(map[model.Triple]int, len(ops))
	for i, op := range ops {
		last[op.Triple] = i
	}
	order := make([]model.Triple, 0, len(last))
	seen := make(map[model.Triple]bool, len(last))
	for _, op := range ops {
		if !seen[op.Triple] {
			seen[op.Triple] = true
			order = append(order, op.Triple)
		}
	}
	out := make([]model.Operation, 0, len(order))
	for _, tr := range order {
		out = append(out, ops[last[tr]])
	}
	return out
}
