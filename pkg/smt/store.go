package smt

import (
	"encoding/binary"
	"sync"

	dbm "github.com/cometbft/cometbft-db"
)

// NodeStore is the KV backing abstraction for the sparse Merkle tree:
// a node identified by (key's first `level` bits, level), the leaf
// values, and the current root. A front-cache sits in pkg/smt.Tree's
// caller; staged writes commit in a single store transaction via
// Batch (§4.7).
type NodeStore interface {
	GetNode(key [32]byte, level int) (hash []byte, ok bool, err error)
	PutNode(key [32]byte, level int, hash []byte) error
	GetLeaf(key [32]byte) (value []byte, ok bool, err error)
	PutLeaf(key [32]byte, value []byte) error
	Root() (hash [32]byte, ok bool, err error)
	SetRoot(hash [32]byte) error
}

// prefixBytes returns the first `level` bits of key, rounded up to a
// whole number of bytes with any trailing bits of the last byte
// zeroed, so that two keys sharing the same `level`-bit prefix always
// produce an identical storage key.
func prefixBytes(key [32]byte, level int) []byte {
	nBytes := (level + 7) / 8
	out := make([]byte, nBytes)
	copy(out, key[:nBytes])
	if level%8 != 0 && nBytes > 0 {
		mask := byte(0xFF << uint(8-level%8))
		out[nBytes-1] &= mask
	}
	return out
}

func nodeStoreKey(key [32]byte, level int) []byte {
	lvl := make([]byte, 2)
	binary.BigEndian.PutUint16(lvl, uint16(level))
	prefix := prefixBytes(key, level)
	out := make([]byte, 0, 1+2+len(prefix))
	out = append(out, 'n')
	out = append(out, lvl...)
	out = append(out, prefix...)
	return out
}

func leafStoreKey(key [32]byte) []byte {
	out := make([]byte, 0, 33)
	out = append(out, 'l')
	out = append(out, key[:]...)
	return out
}

var rootStoreKey = []byte("root")

// KVStore implements NodeStore over a cometbft-db dbm.DB, with an
// in-process read cache guarded by a single RWMutex sitting in front
// — the mem-cache named in §4.7 and §5's "shared mutable state" list.
// In production this DB is goleveldb-backed; tests use dbm's in-memory
// implementation, mirroring the production/test duality the rest of
// this module follows for its StateStore (pkg/store).
type KVStore struct {
	mu    sync.RWMutex
	db    dbm.DB
	cache map[string][]byte
}

// NewKVStore wraps db with a front-cache.
func NewKVStore(db dbm.DB) *KVStore {
	return &KVStore{db: db, cache: make(map[string][]byte)}
}

func (s *KVStore) getCached(k []byte) ([]byte, bool, error) {
	s.mu.RLock()
	if v, ok := s.cache[string(k)]; ok {
		s.mu.RUnlock()
		if v == nil {
			return nil, false, nil
		}
		return v, true, nil
	}
	s.mu.RUnlock()

	v, err := s.db.Get(k)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	s.mu.Lock()
	s.cache[string(k)] = v
	s.mu.Unlock()
	return v, true, nil
}

func (s *KVStore) putCached(k, v []byte) error {
	s.mu.Lock()
	s.cache[string(k)] = v
	s.mu.Unlock()
	return s.db.Set(k, v)
}

func (s *KVStore) GetNode(key [32]byte, level int) ([]byte, bool, error) {
	return s.getCached(nodeStoreKey(key, level))
}

func (s *KVStore) PutNode(key [32]byte, level int, hash []byte) error {
	return s.putCached(nodeStoreKey(key, level), hash)
}

func (s *KVStore) GetLeaf(key [32]byte) ([]byte, bool, error) {
	return s.getCached(leafStoreKey(key))
}

func (s *KVStore) PutLeaf(key [32]byte, value []byte) error {
	return s.putCached(leafStoreKey(key), value)
}

func (s *KVStore) Root() ([32]byte, bool, error) {
	v, ok, err := s.getCached(rootStoreKey)
	if err != nil || !ok {
		return [32]byte{}, false, err
	}
	var out [32]byte
	copy(out[:], v)
	return out, true, nil
}

func (s *KVStore) SetRoot(hash [32]byte) error {
	return s.putCached(rootStoreKey, append([]byte(nil), hash[:]...))
}

// Batcher is implemented by a NodeStore that can accumulate writes and
// commit them as one store transaction rather than one round trip per
// node. Tree.Insert uses this when the backing NodeStore supports it
// (KVStore does); a NodeStore without it, such as memstore's in-process
// implementation, falls back to per-write calls through the NodeStore
// interface itself.
type Batcher interface {
	NewBatch() *Batch
}

// Batch accumulates writes for a staged commit, per §4.7's "a staged
// batch, when opened, accumulates writes and commits them in a single
// store transaction." Tree.Insert stages every node/leaf/root write for
// one insertion into a Batch and calls Commit once, so a 256-level
// insert reaches the underlying dbm.DB as a single transaction instead
// of 259 separate round trips.
type Batch struct {
	store *KVStore
	batch dbm.Batch
	keys  [][]byte
}

// NewBatch opens a staged batch against store.
func (s *KVStore) NewBatch() *Batch {
	return &Batch{store: s, batch: s.db.NewBatch()}
}

// Stage records a write to be committed atomically.
func (b *Batch) Stage(key, value []byte) error {
	b.keys = append(b.keys, key)
	return b.batch.Set(key, value)
}

// Commit writes every staged entry in a single store transaction and
// refreshes the in-process cache to match.
func (b *Batch) Commit() error {
	if err := b.batch.WriteSync(); err != nil {
		return err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, k := range b.keys {
		delete(b.store.cache, string(k)) // force a fresh read on next access
	}
	return nil
}
