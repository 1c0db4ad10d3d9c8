package storage

import (
	"encoding/binary"
	"strings"

	"github.com/statehouse-dev/statehouse/internal/model"
)

// Key families (each lives in its own bucket or map, so a key carries
// no family prefix):
//
//	state: <namespace> sep <agent> sep <key>   state record
//	log:   <commit_ts big-endian>              event log entry
//	meta:  <name>                              metadata row
//
// sep is the same byte model.Triple.Normalize/NormalizeScope reject in
// namespace/agent/key components, so a prefix scan never crosses a
// triple boundary.
const sep = model.ComponentSeparator

// StateKey encodes a triple into the sort order used by prefix scans:
// all keys for (namespace, agent) sort contiguously, and within that,
// lexicographically by key.
func StateKey(t model.Triple) []byte {
	return []byte(t.Namespace + sep + t.Agent + sep + t.Key)
}

// StatePrefix encodes the prefix shared by every key under
// (namespace, agent), optionally narrowed further by a key prefix.
func StatePrefix(namespace, agent, keyPrefix string) []byte {
	return []byte(namespace + sep + agent + sep + keyPrefix)
}

// AgentPrefix encodes the prefix shared by every key under
// (namespace, agent).
func AgentPrefix(namespace, agent string) []byte {
	return []byte(namespace + sep + agent + sep)
}

// DecodeStateKey reverses StateKey.
func DecodeStateKey(k []byte) (model.Triple, bool) {
	parts := strings.SplitN(string(k), sep, 3)
	if len(parts) != 3 {
		return model.Triple{}, false
	}
	return model.Triple{Namespace: parts[0], Agent: parts[1], Key: parts[2]}, true
}

// LogKey encodes a commit_ts as a big-endian 8-byte key so that
// byte-lexicographic order matches numeric order.
func LogKey(commitTS uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], commitTS)
	return b[:]
}

// DecodeLogKey reverses LogKey.
func DecodeLogKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}

// Metadata row names.
const (
	MetaClock          = "clock"
	MetaLastSnapshotID = "last_snapshot_id"
)

func MetaKey(name string) []byte {
	return []byte(name)
}
