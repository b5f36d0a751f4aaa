// Package store defines the StateStore abstraction (§4 "StateStore
// abstraction"): typed read/write operations on the eight logical
// entities named in SPEC_FULL.md §6 (UserSession, Ecdsa, StateChain,
// Transfer, TransferBatch, Root, BackupTxs, Smt), with two
// implementations selected at construction — memstore for tests,
// pgstore for production — reproducing the teacher's
// `Database`/`MockDatabase`/`PGDatabase` duality (pkg/database).
package store

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/ledger"
)

// UserSession is a client-facing session: an auth token, a proof key,
// and (once deposited) a link to the StateChain it owns.
type UserSession struct {
	ID            uuid.UUID
	Auth          string
	ProofKey      []byte // compressed secp256k1 point
	StateChainID  *uuid.UUID
	TxBackup      []byte
	TxWithdraw    []byte
	SigHash       []byte
	WithdrawSCSig *ledger.Entry
	S2            *big.Int
	Theta         *big.Int
}

// StateChain is the signature-chained ownership history of a single
// funding UTXO (§3, §4.6).
type StateChain struct {
	ID          uuid.UUID
	Chain       ledger.Chain
	Amount      int64
	OwnerID     uuid.UUID
	LockedUntil time.Time
}

// BackupTx is the latest co-signed backup transaction for a state
// chain, keyed by state_chain_id.
type BackupTx struct {
	StateChainID uuid.UUID
	Tx           []byte
}

// TransferData holds the in-flight state of a single transfer between
// transfer_sender and transfer_finalize (§4.3), keyed by
// state_chain_id. At most one TransferData exists per state chain at
// a time (invariant I4).
type TransferData struct {
	StateChainID  uuid.UUID
	StateChainSig ledger.Entry
	X1            *big.Int
	TransferMsg   []byte // ECIES blob addressed to the receiving owner
	// Completed is set once transfer_receiver has produced this
	// transfer's finalize data and is only waiting on finalize/batch
	// reveal; a later transfer_receiver call against the same transfer
	// checks this to reject as already completed instead of
	// recomputing (and double-staging) finalize data.
	Completed bool
}

// TransferFinalizeData is what transfer_receiver computes and either
// applies immediately or stages for a batch reveal (§4.3, §4.4).
type TransferFinalizeData struct {
	StateChainID   uuid.UUID
	StateChainSig  ledger.Entry // entry to append to StateChain.Chain
	NewSharedKeyID uuid.UUID    // new owning UserSession id
	NewProofKey    []byte
	BackupTx       []byte
}

// TransferBatch is an atomic N-way swap (§4.4).
type TransferBatch struct {
	ID                  uuid.UUID
	StartTime           time.Time
	StateChains         map[uuid.UUID]bool
	FinalizedData       []TransferFinalizeData
	PunishedStateChains []uuid.UUID
	Finalized           bool
	// TimedOut is set once timeoutLocked has punished this batch's
	// non-revealing parties. Distinct from Finalized: I6 requires
	// Finalized==true iff every enrolled state chain revealed and
	// FinalizedData was fully applied, which is never true on the
	// punishment path.
	TimedOut bool
}

// CommitmentInfo is filled in by the anchoring adapter once an
// external commitment confirms a Root (§4.8).
type CommitmentInfo struct {
	Commitment string
	MerkleRoot string
	Proof      string
}

// Root is one entry in the monotone sequence of SMT roots (§4.7).
type Root struct {
	ID             int64
	Hash           [32]byte
	CommitmentInfo *CommitmentInfo
}
