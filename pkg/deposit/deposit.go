// Package deposit implements SPEC_FULL.md §4.2: a client registers a
// proof key, runs two-party keygen (pkg/ecdsa2p) against the resulting
// UserSession, funds the aggregate public key on-chain, then this
// package's PrepareSignBackup validates the co-signed backup
// transaction and CompleteDeposit mints the StateChain's genesis entry.
package deposit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/config"
	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/ledger"
	"github.com/certen/statechain-entity/pkg/sceerr"
	"github.com/certen/statechain-entity/pkg/smt"
	"github.com/certen/statechain-entity/pkg/store"
	"github.com/certen/statechain-entity/pkg/txvalidate"
)

// Engine runs the deposit flow described above against a StateStore
// and the shared two-party ECDSA engine.
type Engine struct {
	Store   store.StateStore
	Ecdsa   *ecdsa2p.Engine
	Network config.Network
}

func NewEngine(s store.StateStore, ecdsaEngine *ecdsa2p.Engine, network config.Network) *Engine {
	return &Engine{Store: s, Ecdsa: ecdsaEngine, Network: network}
}

// Init creates a new UserSession carrying the client's proof key and a
// fresh auth token, per §4.2 step 1. The keygen handshake that follows
// runs directly against pkg/ecdsa2p.Engine, keyed by this session's id
// (as a string, per ecdsa2p.SessionStore's key space).
func (e *Engine) Init(ctx context.Context, proofKey []byte) (*store.UserSession, error) {
	if _, err := ecdsa2p.ParsePoint(proofKey); err != nil {
		return nil, sceerr.Protocol(fmt.Sprintf("proof_key is not a valid point: %v", err))
	}
	auth, err := randomToken()
	if err != nil {
		return nil, err
	}
	sess := &store.UserSession{
		ID:       uuid.New(),
		Auth:     auth,
		ProofKey: proofKey,
	}
	if err := e.Store.PutUserSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// PrepareSignBackup implements §4.2 step 4 onward: it verifies the
// client-supplied backup transaction pays the owner-controlled P2WPKH
// derived from the completed keygen's aggregate key Q, then -- since
// the actual 2-message co-sign round trip is the separate
// /ecdsa/sign/first|second routes already exposed directly off
// pkg/ecdsa2p.Engine -- stages the validated tx and mints the
// StateChain once the caller confirms the co-sign completed
// (CompleteDeposit). Splitting validation from finalize lets the
// façade drive the intervening sign/first+sign/second round trip
// without this package needing to reach across that boundary.
func (e *Engine) PrepareSignBackup(ctx context.Context, userID uuid.UUID, rawTx []byte, amount int64) error {
	q, err := e.Ecdsa.SharedPublicKey(userID.String())
	if err != nil {
		return err
	}
	ownerAddr, err := p2wpkhAddress(q, e.Network)
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
	if err := txvalidate.RequireBackupOutput(tx, params, ownerAddr, amount); err != nil {
		return err
	}

	sess, err := e.Store.GetUserSession(ctx, userID)
	if err != nil {
		return err
	}
	sess.TxBackup = rawTx
	return e.Store.PutUserSession(ctx, sess)
}

// CompleteDeposit implements §4.2 steps 5-7: once the co-sign round
// trip over the backup transaction has completed, this mints the
// StateChain's genesis entry (Data is the depositor's proof key in hex;
// the entry carries no Sig), persists the BackupTx, and folds the new
// ownership mapping into the sparse Merkle tree.
func (e *Engine) CompleteDeposit(ctx context.Context, userID uuid.UUID, amount int64) (*store.StateChain, error) {
	sess, err := e.Store.GetUserSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sess.TxBackup) == 0 {
		return nil, sceerr.Protocol("no backup transaction staged for this user session")
	}

	proofKeyHex := hex.EncodeToString(sess.ProofKey)
	var chain ledger.Chain
	genesis := ledger.Entry{Purpose: ledger.PurposeTransfer, Data: proofKeyHex}
	if err := chain.Append(genesis); err != nil {
		return nil, err
	}

	scID := uuid.New()
	sc := &store.StateChain{
		ID:          scID,
		Chain:       chain,
		Amount:      amount,
		OwnerID:     userID,
		LockedUntil: time.Now(),
	}
	if err := e.Store.PutStateChain(ctx, sc); err != nil {
		return nil, err
	}

	if err := e.Store.PutBackupTx(ctx, &store.BackupTx{StateChainID: scID, Tx: sess.TxBackup}); err != nil {
		return nil, err
	}

	sess.StateChainID = &scID
	if err := e.Store.PutUserSession(ctx, sess); err != nil {
		return nil, err
	}

	tree := smt.New(e.Store)
	_, newRoot, err := tree.Insert(smtKeyForStateChain(scID), sess.ProofKey)
	if err != nil {
		return nil, err
	}
	if _, err := e.Store.AppendRoot(ctx, newRoot); err != nil {
		return nil, err
	}

	return sc, nil
}

func p2wpkhAddress(q *ecdsa2p.Point, network config.Network) (string, error) {
	params, err := txvalidate.Params(network)
	if err != nil {
		return "", err
	}
	hash := btcutil.Hash160(q.Compressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// smtKeyForStateChain derives the sparse Merkle tree leaf key for a
// state chain's ownership mapping. The original implementation keys
// this by the funding UTXO's txid; this entity has no Bitcoin tx
// parser wired to an indexer, so the state chain id -- itself minted
// at deposit time for exactly this funding event -- stands in as the
// stable per-UTXO key (same resolution as pkg/transfer's identical
// helper).
func smtKeyForStateChain(id uuid.UUID) [32]byte {
	var key [32]byte
	copy(key[:16], id[:])
	return key
}
