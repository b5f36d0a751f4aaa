// Package smt implements the sparse Merkle tree of SPEC_FULL.md §4.7: a
// binary tree over a fixed-depth keyspace (key = sha256(funding_txid)),
// producing inclusion and exclusion proofs and persisting roots with
// strictly increasing ids. Adapted from the teacher's dense binary
// Merkle tree (pkg/merkle/tree.go): the level-by-level hashPair
// construction and proof-walking idiom carry over directly, but the
// tree itself is generalized from "leaves you supply" to "a full
// fixed-depth keyspace with a default hash per empty subtree", which a
// dense tree cannot express (an empty slot needs a well-known hash, not
// an absent leaf, for exclusion proofs to work).
//
// A node is identified by (level, prefix), where level 0 is the root
// and level Depth addresses a single leaf; prefix is the first `level`
// bits of a 256-bit key. NodeStore.GetNode/PutNode take the full key
// and a level and are responsible for projecting the key down to its
// level-bit prefix internally.
package smt

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"sync"
)

// Depth is the number of bits in the key space, matching a SHA-256
// digest.
const Depth = 256

// defaultHashes[h] is the hash of an empty subtree of height h (h=0 is
// an empty leaf's hash, h=Depth is the empty-tree root). Computed once.
var defaultHashes [Depth + 1][]byte

func init() {
	defaultHashes[0] = hashLeaf(nil)
	for h := 1; h <= Depth; h++ {
		defaultHashes[h] = hashNode(defaultHashes[h-1], defaultHashes[h-1])
	}
}

func hashLeaf(value []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x00}) // domain-separate leaf from internal node hashes
	h.Write(value)
	return h.Sum(nil)
}

func hashNode(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// bit returns the i-th bit (0 = MSB) of key, selecting left (0) or
// right (1) at depth i while descending from the root.
func bit(key [32]byte, i int) int {
	byteIdx := i / 8
	bitIdx := uint(7 - i%8)
	return int((key[byteIdx] >> bitIdx) & 1)
}

// Tree is an in-memory view of the sparse Merkle tree backed by a
// NodeStore (store.go). Mirrors pkg/merkle.Tree's sync.RWMutex
// discipline for concurrent readers; a single writer lock guards
// mutation, readers proceed concurrently via RLock.
type Tree struct {
	mu    sync.RWMutex
	store NodeStore
}

// New constructs a Tree over the given backing store.
func New(store NodeStore) *Tree {
	return &Tree{store: store}
}

// nodeHash returns the hash of the node at (key's first `level` bits,
// level), or the default hash for an empty subtree of that height.
func (t *Tree) nodeHash(key [32]byte, level int) ([]byte, error) {
	h, ok, err := t.store.GetNode(key, level)
	if err != nil {
		return nil, err
	}
	if !ok {
		return defaultHashes[Depth-level], nil
	}
	return h, nil
}

// Insert sets key -> value, returning (prevRoot, newRoot). Idempotent
// when value is unchanged for key (§4.7): returns prevRoot == newRoot
// in that case without issuing any store writes.
func (t *Tree) Insert(key [32]byte, value []byte) (prevRoot, newRoot [32]byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, err := t.currentRootLocked()
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}

	existing, has, err := t.store.GetLeaf(key)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	if has && bytes.Equal(existing, value) {
		return prev, prev, nil
	}

	// Collect siblings top-down before mutating anything, then
	// recompute bottom-up and write each ancestor's new hash.
	siblings := make([][]byte, Depth)
	for level := 0; level < Depth; level++ {
		siblingKey := flip(key, level)
		sib, err := t.nodeHash(siblingKey, level+1)
		if err != nil {
			return [32]byte{}, [32]byte{}, err
		}
		siblings[level] = sib
	}

	if batcher, ok := t.store.(Batcher); ok {
		return t.insertBatched(batcher, key, value, siblings, prev)
	}
	return t.insertDirect(key, value, siblings, prev)
}

// insertBatched stages every write of one insertion into a single
// Batch and commits it in one store transaction, per §4.7.
func (t *Tree) insertBatched(b Batcher, key [32]byte, value []byte, siblings [][]byte, prev [32]byte) ([32]byte, [32]byte, error) {
	batch := b.NewBatch()

	if err := batch.Stage(leafStoreKey(key), value); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	cur := hashLeaf(value)
	if err := batch.Stage(nodeStoreKey(key, Depth), cur); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	for level := Depth - 1; level >= 0; level-- {
		var parent []byte
		if bit(key, level) == 0 {
			parent = hashNode(cur, siblings[level])
		} else {
			parent = hashNode(siblings[level], cur)
		}
		if err := batch.Stage(nodeStoreKey(key, level), parent); err != nil {
			return [32]byte{}, [32]byte{}, err
		}
		cur = parent
	}

	var nr [32]byte
	copy(nr[:], cur)
	if err := batch.Stage(rootStoreKey, append([]byte(nil), nr[:]...)); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	if err := batch.Commit(); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	return prev, nr, nil
}

// insertDirect writes every node/leaf/root update one call at a time,
// for NodeStore implementations (e.g. memstore) that don't support
// staged batching.
func (t *Tree) insertDirect(key [32]byte, value []byte, siblings [][]byte, prev [32]byte) ([32]byte, [32]byte, error) {
	if err := t.store.PutLeaf(key, value); err != nil {
		return [32]byte{}, [32]byte{}, err
	}

	cur := hashLeaf(value)
	if err := t.store.PutNode(key, Depth, cur); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	for level := Depth - 1; level >= 0; level-- {
		var parent []byte
		if bit(key, level) == 0 {
			parent = hashNode(cur, siblings[level])
		} else {
			parent = hashNode(siblings[level], cur)
		}
		if err := t.store.PutNode(key, level, parent); err != nil {
			return [32]byte{}, [32]byte{}, err
		}
		cur = parent
	}

	var nr [32]byte
	copy(nr[:], cur)
	if err := t.store.SetRoot(nr); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	return prev, nr, nil
}

// flip returns a key sharing key's first `level` bits but with bit
// `level` inverted, used to address the sibling subtree.
func flip(key [32]byte, level int) [32]byte {
	out := key
	byteIdx := level / 8
	bitIdx := uint(7 - level%8)
	out[byteIdx] ^= 1 << bitIdx
	return out
}

func (t *Tree) currentRootLocked() ([32]byte, error) {
	r, ok, err := t.store.Root()
	if err != nil {
		return [32]byte{}, err
	}
	if !ok {
		var empty [32]byte
		copy(empty[:], defaultHashes[Depth])
		return empty, nil
	}
	return r, nil
}

// Root returns the current root hash.
func (t *Tree) Root() ([32]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentRootLocked()
}

// Proof is a compact inclusion/exclusion proof: the sibling hash at
// every level from leaf to root, plus the leaf value actually stored
// (nil for an exclusion proof).
type Proof struct {
	Siblings [][]byte
	Value    []byte // nil => exclusion proof
}

// Prove returns a Proof for key against the tree's current state.
func (t *Tree) Prove(key [32]byte) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	siblings := make([][]byte, Depth)
	for level := 0; level < Depth; level++ {
		sib, err := t.nodeHash(flip(key, level), level+1)
		if err != nil {
			return nil, err
		}
		siblings[level] = sib
	}
	value, _, err := t.store.GetLeaf(key)
	if err != nil {
		return nil, err
	}
	return &Proof{Siblings: siblings, Value: value}, nil
}

// Verify checks that proof is consistent with root for key, per
// property P3: it is an inclusion proof for value iff value != nil.
func Verify(root [32]byte, key [32]byte, proof *Proof) bool {
	if len(proof.Siblings) != Depth {
		return false
	}
	cur := hashLeaf(proof.Value)
	for level := Depth - 1; level >= 0; level-- {
		sib := proof.Siblings[level]
		if bit(key, level) == 0 {
			cur = hashNode(cur, sib)
		} else {
			cur = hashNode(sib, cur)
		}
	}
	return subtle.ConstantTimeCompare(cur, root[:]) == 1
}
