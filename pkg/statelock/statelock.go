// Package statelock provides the per-state-chain serializability lock
// named in SPEC_FULL.md §5: operations on the same state_chain_id must
// be serializable, while operations on disjoint state chains proceed
// in parallel. Grounded on the teacher's habit of guarding shared
// caches with a mutex (pkg/merkle/tree.go's sync.RWMutex,
// pkg/batch/collector.go's `mu sync.RWMutex`), generalized here to a
// fixed-size shard table so a single global mutex never serializes
// unrelated state chains.
package statelock

import (
	"sync"

	"github.com/google/uuid"
)

const shardCount = 256

// Locker holds one mutex per shard, shard selected by a byte of the
// state chain id. Held for the duration of a single RPC's store calls
// (§5); composes with, does not replace, pgstore's WithTx transaction,
// which takes no explicit row locks.
type Locker struct {
	shards [shardCount]sync.Mutex
}

// New constructs a Locker.
func New() *Locker {
	return &Locker{}
}

func (l *Locker) shardFor(id uuid.UUID) *sync.Mutex {
	return &l.shards[id[0]]
}

// Lock acquires the shard mutex for id.
func (l *Locker) Lock(id uuid.UUID) {
	l.shardFor(id).Lock()
}

// Unlock releases the shard mutex for id.
func (l *Locker) Unlock(id uuid.UUID) {
	l.shardFor(id).Unlock()
}

// WithLock runs fn while holding id's shard lock.
func (l *Locker) WithLock(id uuid.UUID, fn func() error) error {
	l.Lock(id)
	defer l.Unlock(id)
	return fn()
}
