// Package withdraw implements SPEC_FULL.md §4.5: withdraw_init stages
// a signed WITHDRAW statechain entry, prepare_sign_withdraw validates
// the withdraw transaction's fee and remainder outputs, and
// withdraw_confirm commits the entry and zeroes the state chain.
package withdraw

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcutil"
	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/config"
	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/ledger"
	"github.com/certen/statechain-entity/pkg/sceerr"
	"github.com/certen/statechain-entity/pkg/smt"
	"github.com/certen/statechain-entity/pkg/statelock"
	"github.com/certen/statechain-entity/pkg/store"
	"github.com/certen/statechain-entity/pkg/txvalidate"
)

type Engine struct {
	Store           store.StateStore
	Ecdsa           *ecdsa2p.Engine
	Lock            *statelock.Locker
	Network         config.Network
	FeeAddress      string
	FeeWithdrawSats int64
}

func NewEngine(s store.StateStore, ecdsaEngine *ecdsa2p.Engine, lock *statelock.Locker, network config.Network, feeAddress string, feeWithdrawSats int64) *Engine {
	return &Engine{
		Store:           s,
		Ecdsa:           ecdsaEngine,
		Lock:            lock,
		Network:         network,
		FeeAddress:      feeAddress,
		FeeWithdrawSats: feeWithdrawSats,
	}
}

// Init implements withdraw_init: verify the client's signed withdraw
// entry against the state chain's current owner proof key, and stage
// it without committing it to the chain yet.
func (e *Engine) Init(ctx context.Context, auth string, userID uuid.UUID, addr string, sig []byte) error {
	sess, err := e.Store.GetUserSession(ctx, userID)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(sess.Auth), []byte(auth)) != 1 {
		return ErrBadAuth
	}
	if sess.StateChainID == nil {
		return sceerr.Auth("user session does not own a state chain")
	}
	stateChainID := *sess.StateChainID

	return e.Lock.WithLock(stateChainID, func() error {
		sc, err := e.Store.GetStateChain(ctx, stateChainID)
		if err != nil {
			return err
		}
		tip := sc.Chain.Tip()
		if tip == nil {
			return sceerr.Protocol("state chain has no genesis entry to withdraw against")
		}

		entry := ledger.Entry{Purpose: ledger.PurposeWithdraw, Data: addr, Sig: sig}
		if err := ledger.VerifyNext(*tip, entry); err != nil {
			return err
		}

		sess.WithdrawSCSig = &entry
		return e.Store.PutUserSession(ctx, sess)
	})
}

// PrepareSignWithdraw implements prepare_sign_withdraw: validates that
// rawTx pays FeeAddress at least FeeWithdrawSats and the remainder to
// the address staged by Init, then stages the transaction and its
// signing digest. The digest is computed over the funding UTXO's own
// P2WPKH script (locked to the aggregate key Q), the output rawTx
// actually spends — not BackupTx.Tx, which only exists as the client's
// unilateral-exit fallback and plays no part in this signature. The
// 2-message co-sign round trip itself runs over the shared
// /ecdsa/sign/first|second routes, same as deposit's backup-tx signing
// (pkg/deposit.PrepareSignBackup).
func (e *Engine) PrepareSignWithdraw(ctx context.Context, userID uuid.UUID, rawTx []byte) error {
	sess, err := e.Store.GetUserSession(ctx, userID)
	if err != nil {
		return err
	}
	if sess.WithdrawSCSig == nil {
		return ErrNoPendingWithdraw
	}
	if sess.StateChainID == nil {
		return sceerr.Auth("user session does not own a state chain")
	}
	sc, err := e.Store.GetStateChain(ctx, *sess.StateChainID)
	if err != nil {
		return err
	}

	tx, err := txvalidate.Parse(rawTx)
	if err != nil {
		return err
	}
	params, err := txvalidate.Params(e.Network)
	if err != nil {
		return err
	}
	if err := txvalidate.RequireWithdrawOutputs(tx, params, e.FeeAddress, e.FeeWithdrawSats, sess.WithdrawSCSig.Data, sc.Amount); err != nil {
		return err
	}

	q, err := e.Ecdsa.SharedPublicKey(userID.String())
	if err != nil {
		return err
	}
	fundingScript, err := p2wpkhScript(q, params)
	if err != nil {
		return err
	}
	sigHash, err := txvalidate.SigHash(tx, fundingScript, sc.Amount, 0)
	if err != nil {
		return fmt.Errorf("compute withdraw sighash: %w", err)
	}

	sess.TxWithdraw = rawTx
	sess.SigHash = sigHash
	return e.Store.PutUserSession(ctx, sess)
}

// p2wpkhScript builds the witness-program scriptPubKey for q, the same
// script the funding UTXO was locked to at deposit time (§4.2) and the
// prevout the withdraw transaction's single input spends.
func p2wpkhScript(q *ecdsa2p.Point, params *chaincfg.Params) ([]byte, error) {
	hash := btcutil.Hash160(q.Compressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, params)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// Confirm implements withdraw_confirm: append the staged WITHDRAW
// entry to the state chain, zero its amount, remove the owning
// UserSession, and fold the removal into the sparse Merkle tree.
// Returns the raw signed withdraw transaction staged by
// PrepareSignWithdraw; the caller (pkg/server) derives the txid from it.
func (e *Engine) Confirm(ctx context.Context, userID uuid.UUID) (rawTx []byte, err error) {
	sess, err := e.Store.GetUserSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess.WithdrawSCSig == nil {
		return nil, ErrNoPendingWithdraw
	}
	if len(sess.TxWithdraw) == 0 {
		return nil, ErrNotStaged
	}
	if sess.StateChainID == nil {
		return nil, sceerr.Auth("user session does not own a state chain")
	}
	stateChainID := *sess.StateChainID

	err = e.Lock.WithLock(stateChainID, func() error {
		return e.Store.WithTx(ctx, func(ctx context.Context, tx store.StateStore) error {
			sc, err := tx.GetStateChain(ctx, stateChainID)
			if err != nil {
				return err
			}
			if err := sc.Chain.Append(*sess.WithdrawSCSig); err != nil {
				return err
			}
			sc.Amount = 0
			if err := tx.PutStateChain(ctx, sc); err != nil {
				return err
			}

			tree := smt.New(tx)
			_, newRoot, err := tree.Insert(smtKeyForStateChain(stateChainID), nil)
			if err != nil {
				return err
			}
			if _, err := tx.AppendRoot(ctx, newRoot); err != nil {
				return err
			}

			return tx.DeleteUserSession(ctx, userID)
		})
	})
	if err != nil {
		return nil, err
	}
	return sess.TxWithdraw, nil
}

// smtKeyForStateChain mirrors pkg/transfer's and pkg/deposit's
// identical helper: the state chain id stands in for the funding
// txid this entity has no Bitcoin indexer to resolve.
func smtKeyForStateChain(id uuid.UUID) [32]byte {
	var key [32]byte
	copy(key[:16], id[:])
	return key
}
