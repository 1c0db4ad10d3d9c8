// Package model defines the domain nouns shared across Statehouse's
// storage, transaction, and state-machine layers: the record identity
// triple, state records, staged operations, and committed log entries.
package model

import (
	"fmt"
	"strings"

	"github.com/statehouse-dev/statehouse/internal/value"
)

// DefaultNamespace is used whenever a caller omits a namespace.
const DefaultNamespace = "default"

// ComponentSeparator is the byte forbidden in a namespace, agent, or
// key component. internal/storage uses the same byte to join
// components into a sort-ordered key; if a component could contain it,
// a prefix scan for one agent could capture another agent's keys.
const ComponentSeparator = "\x1f"

// Triple is the identity of a state record: (namespace, agent, key).
type Triple struct {
	Namespace string
	Agent     string
	Key       string
}

func (t Triple) String() string {
	return fmt.Sprintf("%s/%s/%s", t.Namespace, t.Agent, t.Key)
}

// Normalize fills in the default namespace and validates the triple.
func (t Triple) Normalize() (Triple, error) {
	if t.Namespace == "" {
		t.Namespace = DefaultNamespace
	}
	if t.Agent == "" {
		return Triple{}, fmt.Errorf("agent must not be empty")
	}
	if t.Key == "" {
		return Triple{}, fmt.Errorf("key must not be empty")
	}
	if strings.Contains(t.Namespace, ComponentSeparator) ||
		strings.Contains(t.Agent, ComponentSeparator) ||
		strings.Contains(t.Key, ComponentSeparator) {
		return Triple{}, fmt.Errorf("namespace, agent, and key must not contain the 0x1f separator byte")
	}
	return t, nil
}

// NormalizeScope fills in the default namespace and validates agent
// for operations scoped to (namespace, agent) rather than a full
// triple: list_keys, scan_prefix, replay.
func NormalizeScope(namespace, agent string) (string, string, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if agent == "" {
		return "", "", fmt.Errorf("agent must not be empty")
	}
	if strings.Contains(namespace, ComponentSeparator) || strings.Contains(agent, ComponentSeparator) {
		return "", "", fmt.Errorf("namespace and agent must not contain the 0x1f separator byte")
	}
	return namespace, agent, nil
}

// OpKind distinguishes a staged write from a staged delete.
type OpKind uint8

const (
	OpWrite OpKind = iota
	OpDelete
)

// Operation is one staged change within a transaction, or one applied
// change within a committed event log entry.
type Operation struct {
	Triple  Triple
	Kind    OpKind
	Value   value.Value // ignored for OpDelete
	Version uint64      // filled in by the state machine at commit time
}

// StateRecord is the current, live view of one triple: its value (or
// tombstone), version, and the commit_ts at which that version was
// written.
type StateRecord struct {
	Triple   Triple
	Value    value.Value
	Exists   bool // false means tombstone
	Version  uint64
	CommitTS uint64
}

// EventEntry is one committed transaction as recorded in the event
// log: the transaction id, the commit_ts assigned to it, and the
// ordered, collapsed list of operations applied.
type EventEntry struct {
	TxnID    string
	CommitTS uint64
	Ops      []Operation
}

// TxnState is the lifecycle state of a transaction.
type TxnState uint8

const (
	TxnOpen TxnState = iota
	TxnCommitted
	TxnAborted
	TxnExpired
)

func (s TxnState) String() string {
	switch s {
	case TxnOpen:
		return "open"
	case TxnCommitted:
		return "committed"
	case TxnAborted:
		return "aborted"
	case TxnExpired:
		return "expired"
	default:
		return "unknown"
	}
}
