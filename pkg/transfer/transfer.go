package transfer

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/ledger"
	"github.com/certen/statechain-entity/pkg/sceerr"
	"github.com/certen/statechain-entity/pkg/smt"
	"github.com/certen/statechain-entity/pkg/statelock"
	"github.com/certen/statechain-entity/pkg/store"
)

// Engine runs the single-transfer state machine of §4.3 against a
// StateStore. It holds no durable state itself; Lock serializes the
// handful of store calls each operation makes against one state chain
// (§5), composing with whatever locking the store's own WithTx adds.
type Engine struct {
	Store store.StateStore
	Lock  *statelock.Locker
}

// NewEngine constructs an Engine.
func NewEngine(s store.StateStore, lock *statelock.Locker) *Engine {
	return &Engine{Store: s, Lock: lock}
}

// blob is the plaintext ECIES-encrypts to the sender's own proof key in
// TransferMsg2: the x1 the sender's wallet needs to compute t2, plus
// its own proof key echoed back for convenience.
type blob struct {
	X1       string `json:"x1"`
	ProofKey string `json:"proof_key"`
}

// Sender runs transfer_sender: authenticates the current owner, checks
// the state chain isn't locked or already mid-transfer, samples x1, and
// returns it ECIES-encrypted to the sender's own proof key.
func (e *Engine) Sender(ctx context.Context, auth string, msg1 TransferMsg1) (*TransferMsg2, error) {
	sess, err := e.Store.GetUserSession(ctx, msg1.SharedKeyID)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(sess.Auth), []byte(auth)) != 1 {
		return nil, ErrBadAuth
	}
	if sess.StateChainID == nil {
		return nil, ErrNotOwner
	}
	stateChainID := *sess.StateChainID

	var result *TransferMsg2
	err = e.Lock.WithLock(stateChainID, func() error {
		sc, err := e.Store.GetStateChain(ctx, stateChainID)
		if err != nil {
			return err
		}
		if sc.OwnerID != msg1.SharedKeyID {
			return ErrNotOwner
		}
		if remaining := time.Until(sc.LockedUntil); remaining > 0 {
			return ErrLocked(int64(remaining/time.Minute) + 1)
		}

		x1, err := ecdsa2p.RandomScalar()
		if err != nil {
			return err
		}
		if err := e.Store.PutTransferData(ctx, &store.TransferData{
			StateChainID:  stateChainID,
			StateChainSig: msg1.StateChainSig,
			X1:            x1,
		}); err != nil {
			return err
		}

		plaintext, err := json.Marshal(blob{
			X1:       x1.Text(16),
			ProofKey: fmt.Sprintf("%x", sess.ProofKey),
		})
		if err != nil {
			return err
		}
		proofKeyPoint, err := ecdsa2p.ParsePoint(sess.ProofKey)
		if err != nil {
			return sceerr.Protocol(fmt.Sprintf("stored proof key is not a valid point: %v", err))
		}
		encrypted, err := ecdsa2p.EncryptToProofKey(proofKeyPoint, plaintext)
		if err != nil {
			return err
		}
		result = &TransferMsg2{EncryptedBlob: encrypted}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Receiver runs transfer_receiver: recomputes s2 from the new owner's
// t2, checks the Lindell handoff equation P1 == P2, and either
// finalizes immediately (no batch) or hands the computed finalize data
// back to the caller to enroll into a TransferBatch (§4.4).
func (e *Engine) Receiver(ctx context.Context, msg4 TransferMsg4) (*TransferMsg5, *store.TransferFinalizeData, error) {
	var msg5 *TransferMsg5
	var finalizeData *store.TransferFinalizeData

	err := e.Lock.WithLock(msg4.StateChainID, func() error {
		td, err := e.Store.GetTransferData(ctx, msg4.StateChainID)
		if err != nil {
			return err
		}
		if td.Completed {
			return ErrTransferAlreadyCompleted
		}
		if !entriesEqual(td.StateChainSig, msg4.StateChainSig) {
			return ErrStateChainSigMismatch
		}

		oldSess, err := e.Store.GetEcdsaSession(msg4.SharedKeyID.String())
		if err != nil {
			return err
		}
		if !oldSess.Complete {
			return ecdsa2p.ErrSessionNotReady
		}
		s1 := oldSess.X1

		x1Inv := ecdsa2p.ModInverse(td.X1)
		s2 := ecdsa2p.ModMul(ecdsa2p.ModMul(msg4.T2, x1Inv), s1)

		thirdOfQ := new(big.Int).Div(ecdsa2p.N(), big.NewInt(3))
		if s2.Cmp(thirdOfQ) >= 0 {
			return ErrS2OutOfRange
		}

		p1 := ecdsa2p.ScalarMul(oldSess.Party2Public, s1)
		p2 := ecdsa2p.ScalarMul(msg4.O2Pub, s2)
		if !p1.Equal(p2) {
			return ErrProtocolMismatch
		}

		newSharedKeyID := uuid.New()
		finalizeData = &store.TransferFinalizeData{
			StateChainID:   msg4.StateChainID,
			StateChainSig:  msg4.StateChainSig,
			NewSharedKeyID: newSharedKeyID,
			NewProofKey:    msg4.O2Pub.Compressed(),
			BackupTx:       msg4.TxBackup,
		}
		msg5 = &TransferMsg5{
			NewSharedKeyID: newSharedKeyID,
			S2Pub:          ecdsa2p.ScalarBaseMul(s2),
		}

		if msg4.BatchData == nil {
			if err := e.Store.WithTx(ctx, func(ctx context.Context, tx store.StateStore) error {
				return e.applyFinalize(ctx, tx, finalizeData)
			}); err != nil {
				return err
			}
			finalizeData = nil
			return nil
		}

		return e.Store.CompleteTransferData(ctx, msg4.StateChainID)
	})
	if err != nil {
		return nil, nil, err
	}
	return msg5, finalizeData, nil
}

// Finalize runs transfer_finalize (§4.3) for a single, immediately
// applied transfer: appends the next ownership entry, rekeys the state
// chain to the new owner, and updates the inclusion proof tree, all
// inside one store transaction.
func (e *Engine) Finalize(ctx context.Context, data *store.TransferFinalizeData) error {
	return e.Lock.WithLock(data.StateChainID, func() error {
		return e.Store.WithTx(ctx, func(ctx context.Context, tx store.StateStore) error {
			return e.applyFinalize(ctx, tx, data)
		})
	})
}

// FinalizeWithinTx runs the same transfer_finalize body as Finalize,
// but against a tx a caller already opened, so pkg/transferbatch can
// fold every entry of a batch reveal into one store transaction
// (§4.4's all-or-nothing requirement) instead of one transaction per
// state chain.
func (e *Engine) FinalizeWithinTx(ctx context.Context, tx store.StateStore, data *store.TransferFinalizeData) error {
	return e.Lock.WithLock(data.StateChainID, func() error {
		return e.applyFinalize(ctx, tx, data)
	})
}

// applyFinalize is transfer_finalize's body (§4.3): append the signed
// ownership entry, rekey the chain's owner, stand up the new owner's
// session and backup tx, and record the resulting SMT root.
func (e *Engine) applyFinalize(ctx context.Context, tx store.StateStore, data *store.TransferFinalizeData) error {
	sc, err := tx.GetStateChain(ctx, data.StateChainID)
	if err != nil {
		return err
	}
	if err := sc.Chain.Append(data.StateChainSig); err != nil {
		return err
	}
	sc.OwnerID = data.NewSharedKeyID
	if err := tx.PutStateChain(ctx, sc); err != nil {
		return err
	}

	if err := tx.PutUserSession(ctx, &store.UserSession{
		ID:           data.NewSharedKeyID,
		ProofKey:     data.NewProofKey,
		StateChainID: &data.StateChainID,
	}); err != nil {
		return err
	}

	if err := tx.PutBackupTx(ctx, &store.BackupTx{
		StateChainID: data.StateChainID,
		Tx:           data.BackupTx,
	}); err != nil {
		return err
	}

	tree := smt.New(tx)
	leafKey := smtKeyForStateChain(data.StateChainID)
	_, newRoot, err := tree.Insert(leafKey, data.NewProofKey)
	if err != nil {
		return err
	}
	if _, err := tx.AppendRoot(ctx, newRoot); err != nil {
		return err
	}

	return tx.DeleteTransferData(ctx, data.StateChainID)
}

// smtKeyForStateChain derives the sparse Merkle tree leaf key for a
// state chain's ownership mapping. The original keys this by the
// funding UTXO's txid; here the state chain id -- itself minted once
// at the funding deposit and stable across every later transfer --
// stands in as the per-UTXO key instead.
func smtKeyForStateChain(id uuid.UUID) [32]byte {
	var key [32]byte
	copy(key[:16], id[:])
	return key
}

func entriesEqual(a, b ledger.Entry) bool {
	return reflect.DeepEqual(a, b)
}
