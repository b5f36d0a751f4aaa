// Package memstore is the in-memory StateStore double used by every
// package's unit tests (§10.4), grounded on the teacher's MockDatabase
// pattern (pkg/database's test seam): a single sync.Mutex-guarded map
// set per entity, no transaction boundary of its own.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/smt"
	"github.com/certen/statechain-entity/pkg/store"
)

// Store is an in-memory StateStore implementation.
type Store struct {
	mu sync.Mutex

	userSessions   map[uuid.UUID]store.UserSession
	stateChains    map[uuid.UUID]store.StateChain
	backupTxs      map[uuid.UUID]store.BackupTx
	ecdsaSessions  map[string]ecdsa2p.Session
	transferData   map[uuid.UUID]store.TransferData
	transferBatch  map[uuid.UUID]store.TransferBatch
	roots          []store.Root
	smtNodes       map[string][]byte
	smtLeaves      map[[32]byte][]byte
	smtRoot        [32]byte
	smtRootPresent bool
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		userSessions:  make(map[uuid.UUID]store.UserSession),
		stateChains:   make(map[uuid.UUID]store.StateChain),
		backupTxs:     make(map[uuid.UUID]store.BackupTx),
		ecdsaSessions: make(map[string]ecdsa2p.Session),
		transferData:  make(map[uuid.UUID]store.TransferData),
		transferBatch: make(map[uuid.UUID]store.TransferBatch),
		smtNodes:      make(map[string][]byte),
		smtLeaves:     make(map[[32]byte][]byte),
	}
}

// Ping always succeeds; there is no connection to lose.
func (s *Store) Ping(ctx context.Context) error { return nil }

// WithTx has no transaction boundary of its own (§5 expansion): it
// runs fn directly against s without holding s's mutex; each store
// call fn makes takes the mutex on its own. There is no isolation
// across those calls and no rollback if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.StateStore) error) error {
	return fn(ctx, s)
}

func (s *Store) GetUserSession(ctx context.Context, id uuid.UUID) (*store.UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.userSessions[id]
	if !ok {
		return nil, store.ErrUserSessionNotFound
	}
	return &v, nil
}

func (s *Store) PutUserSession(ctx context.Context, v *store.UserSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userSessions[v.ID] = *v
	return nil
}

func (s *Store) DeleteUserSession(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userSessions, id)
	return nil
}

func (s *Store) GetStateChain(ctx context.Context, id uuid.UUID) (*store.StateChain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.stateChains[id]
	if !ok {
		return nil, store.ErrStateChainNotFound
	}
	return &v, nil
}

func (s *Store) PutStateChain(ctx context.Context, v *store.StateChain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateChains[v.ID] = *v
	return nil
}

func (s *Store) GetBackupTx(ctx context.Context, stateChainID uuid.UUID) (*store.BackupTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.backupTxs[stateChainID]
	if !ok {
		return nil, store.ErrBackupTxNotFound
	}
	return &v, nil
}

func (s *Store) PutBackupTx(ctx context.Context, v *store.BackupTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backupTxs[v.StateChainID] = *v
	return nil
}

func (s *Store) GetEcdsaSession(userID string) (*ecdsa2p.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.ecdsaSessions[userID]
	if !ok {
		return nil, store.ErrEcdsaSessionNotFound
	}
	return &v, nil
}

func (s *Store) PutEcdsaSession(v *ecdsa2p.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ecdsaSessions[v.UserID] = *v
	return nil
}

func (s *Store) GetTransferData(ctx context.Context, stateChainID uuid.UUID) (*store.TransferData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.transferData[stateChainID]
	if !ok {
		return nil, store.ErrTransferDataNotFound
	}
	return &v, nil
}

func (s *Store) PutTransferData(ctx context.Context, v *store.TransferData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transferData[v.StateChainID]; exists {
		return store.ErrTransferDataExists
	}
	s.transferData[v.StateChainID] = *v
	return nil
}

func (s *Store) CompleteTransferData(ctx context.Context, stateChainID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.transferData[stateChainID]
	if !ok {
		return store.ErrTransferDataNotFound
	}
	v.Completed = true
	s.transferData[stateChainID] = v
	return nil
}

func (s *Store) DeleteTransferData(ctx context.Context, stateChainID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transferData, stateChainID)
	return nil
}

func (s *Store) GetTransferBatch(ctx context.Context, id uuid.UUID) (*store.TransferBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.transferBatch[id]
	if !ok {
		return nil, store.ErrTransferBatchNotFound
	}
	return &v, nil
}

func (s *Store) PutTransferBatch(ctx context.Context, v *store.TransferBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferBatch[v.ID] = *v
	return nil
}

func (s *Store) LatestRoot(ctx context.Context) (*store.Root, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.roots) == 0 {
		return nil, store.ErrRootNotFound
	}
	v := s.roots[len(s.roots)-1]
	return &v, nil
}

// LatestConfirmedRoot scans from newest to oldest for the first root
// with commitment_info set, matching get_confirmed_smt_root (§4.8).
func (s *Store) LatestConfirmedRoot(ctx context.Context) (*store.Root, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.roots) - 1; i >= 0; i-- {
		if s.roots[i].CommitmentInfo != nil {
			v := s.roots[i]
			return &v, nil
		}
	}
	return nil, store.ErrRootNotFound
}

func (s *Store) AppendRoot(ctx context.Context, hash [32]byte) (*store.Root, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := store.Root{ID: int64(len(s.roots) + 1), Hash: hash}
	s.roots = append(s.roots, r)
	return &r, nil
}

func (s *Store) SetRootCommitment(ctx context.Context, hash [32]byte, info store.CommitmentInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.roots {
		if s.roots[i].Hash == hash {
			infoCopy := info
			s.roots[i].CommitmentInfo = &infoCopy
			return nil
		}
	}
	return store.ErrRootNotFound
}

func (s *Store) UnconfirmedRoots(ctx context.Context) ([]store.Root, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Root
	for _, r := range s.roots {
		if r.CommitmentInfo == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// SMT NodeStore (smt.NodeStore) — the "Smt" logical table (§6),
// map-backed here the same way the rest of this store is.

func (s *Store) GetNode(key [32]byte, level int) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.smtNodes[smtKey(key, level)]
	return v, ok, nil
}

func (s *Store) PutNode(key [32]byte, level int, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smtNodes[smtKey(key, level)] = append([]byte(nil), hash...)
	return nil
}

func (s *Store) GetLeaf(key [32]byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.smtLeaves[key]
	return v, ok, nil
}

func (s *Store) PutLeaf(key [32]byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smtLeaves[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Root() ([32]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smtRoot, s.smtRootPresent, nil
}

func (s *Store) SetRoot(hash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smtRoot = hash
	s.smtRootPresent = true
	return nil
}

// smtKey identifies a node by its (level, prefix) pair exactly as
// pkg/smt/store.go's KVStore does: two keys sharing the same
// level-bit prefix must resolve to the same map entry, since that is
// the shared ancestor node the sparse tree's structural sharing
// depends on. Trailing bits beyond `level` are masked off.
func smtKey(key [32]byte, level int) string {
	nBytes := (level + 7) / 8
	prefix := make([]byte, nBytes)
	copy(prefix, key[:nBytes])
	if level%8 != 0 && nBytes > 0 {
		mask := byte(0xFF << uint(8-level%8))
		prefix[nBytes-1] &= mask
	}
	b := make([]byte, 0, nBytes+2)
	b = append(b, byte(level>>8), byte(level))
	b = append(b, prefix...)
	return string(b)
}

var _ smt.NodeStore = (*Store)(nil)
