// Package config holds the engine's configuration data structure.
// Loading it from a file or environment is a collaborator's job; this
// package only carries the data, with yaml struct tags so a
// collaborator such as an embedder can decode a YAML manifest into it
// directly. The cmd/statehouse CLI builds it from command-line flags
// and does not read YAML.
package config

import "time"

// Config configures one engine instance.
type Config struct {
	// DataDir is the directory BoltBackend stores its database file
	// in. Ignored when InMemory is true.
	DataDir string `yaml:"data_dir"`

	// InMemory selects MemBackend instead of BoltBackend. Intended for
	// tests and ephemeral sessions; nothing is durable across restarts.
	InMemory bool `yaml:"in_memory"`

	// FsyncOnCommit controls whether every commit batch is flushed to
	// disk before being acknowledged. Disabling it trades durability
	// for throughput.
	FsyncOnCommit bool `yaml:"fsync_on_commit"`

	// SnapshotInterval is the number of commits between automatic
	// snapshots. Zero disables periodic snapshotting.
	SnapshotInterval uint64 `yaml:"snapshot_interval"`

	// DefaultTxnTimeout is used for begin_transaction calls that omit
	// an explicit timeout.
	DefaultTxnTimeout time.Duration `yaml:"default_txn_timeout"`
}

// Default returns the engine's default configuration.
func Default() Config {
	return Config{
		DataDir:           "./data",
		InMemory:          false,
		FsyncOnCommit:     true,
		SnapshotInterval:  1000,
		DefaultTxnTimeout: 30 * time.Second,
	}
}
