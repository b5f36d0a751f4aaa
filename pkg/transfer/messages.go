// Package transfer implements the single-transfer state machine of
// SPEC_FULL.md §4.3 (states None -> Initiated -> Completed ->
// Finalized). Message shapes and the exact s2/P1/P2 formulas are
// grounded on original_source/server/src/protocol/transfer.rs,
// reworded into Go rather than translated line-for-line.
package transfer

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/ledger"
)

// BatchData identifies an in-flight batch transfer a TransferMsg4 is
// enrolling into (§4.4). transfer itself never inspects batch
// machinery; pkg/transferbatch decides what to do with it.
type BatchData struct {
	ID         uuid.UUID
	Commitment string
}

// TransferMsg1 initiates a transfer: the current owner's signed
// authorization of the next state chain entry.
type TransferMsg1 struct {
	SharedKeyID   uuid.UUID
	StateChainSig ledger.Entry
}

// TransferMsg2 is the sender-side response: x1 and the sender's proof
// key, ECIES-encrypted to that same proof key so only the intended
// receiver (who already holds the sender's out-of-band transfer
// package) can read it.
type TransferMsg2 struct {
	EncryptedBlob []byte
}

// TransferMsg4 is the receiver's half of the handshake.
type TransferMsg4 struct {
	SharedKeyID   uuid.UUID
	StateChainID  uuid.UUID
	T2            *big.Int
	StateChainSig ledger.Entry
	O2Pub         *ecdsa2p.Point
	TxBackup      []byte
	BatchData     *BatchData
}

// TransferMsg5 is returned to the receiver on success.
type TransferMsg5 struct {
	NewSharedKeyID uuid.UUID
	S2Pub          *ecdsa2p.Point
}
