package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/smt"
)

// Tx is a single serializable unit of work spanning several StateStore
// calls, grounded on the teacher's database.Client.BeginTx/Tx.Commit/
// Tx.Rollback wrapper (pkg/database/client.go). transfer_finalize for
// an entire batch (§4.4) runs inside one Tx so the batch finalizes
// all-or-nothing.
type Tx interface {
	Commit() error
	Rollback() error
}

// StateStore is the storage seam named throughout SPEC_FULL.md: every
// component that needs durable state depends on this interface, never
// on *sql.DB or an in-memory map directly. Two implementations exist
// (memstore, pgstore) selected at construction, reproducing the
// teacher's Database trait / MockDatabase / PGDatabase duality (§10.4).
type StateStore interface {
	ecdsa2p.SessionStore
	smt.NodeStore

	// Ping reports whether the store is reachable, used by GET /readyz.
	Ping(ctx context.Context) error

	// Transactions. WithTx runs fn inside a single Tx; fn's StateStore
	// argument is bound to that transaction for every entity call made
	// through it. The in-memory double has no transaction boundary of
	// its own and runs fn directly against itself; each call takes its
	// sync.Mutex separately, with no isolation or rollback (§5 expansion).
	WithTx(ctx context.Context, fn func(ctx context.Context, s StateStore) error) error

	// UserSession
	GetUserSession(ctx context.Context, id uuid.UUID) (*UserSession, error)
	PutUserSession(ctx context.Context, s *UserSession) error
	DeleteUserSession(ctx context.Context, id uuid.UUID) error

	// StateChain
	GetStateChain(ctx context.Context, id uuid.UUID) (*StateChain, error)
	PutStateChain(ctx context.Context, sc *StateChain) error

	// BackupTx
	GetBackupTx(ctx context.Context, stateChainID uuid.UUID) (*BackupTx, error)
	PutBackupTx(ctx context.Context, b *BackupTx) error

	// TransferData
	GetTransferData(ctx context.Context, stateChainID uuid.UUID) (*TransferData, error)
	PutTransferData(ctx context.Context, t *TransferData) error
	// CompleteTransferData marks stateChainID's TransferData as having
	// produced finalize data (TransferData.Completed), distinct from
	// PutTransferData, which only ever inserts: transfer_sender uses
	// PutTransferData to reject re-initiation of a pending transfer, so
	// transfer_receiver can't reuse it to record completion without
	// colliding with that guard.
	CompleteTransferData(ctx context.Context, stateChainID uuid.UUID) error
	DeleteTransferData(ctx context.Context, stateChainID uuid.UUID) error

	// TransferBatch
	GetTransferBatch(ctx context.Context, id uuid.UUID) (*TransferBatch, error)
	PutTransferBatch(ctx context.Context, b *TransferBatch) error

	// Root
	LatestRoot(ctx context.Context) (*Root, error)
	LatestConfirmedRoot(ctx context.Context) (*Root, error)
	AppendRoot(ctx context.Context, hash [32]byte) (*Root, error)
	SetRootCommitment(ctx context.Context, hash [32]byte, info CommitmentInfo) error
	UnconfirmedRoots(ctx context.Context) ([]Root, error)
}
