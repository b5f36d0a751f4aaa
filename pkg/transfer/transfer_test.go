package transfer

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"testing"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/ledger"
	"github.com/certen/statechain-entity/pkg/sceerr"
	"github.com/certen/statechain-entity/pkg/statelock"
	"github.com/certen/statechain-entity/pkg/store"
	"github.com/certen/statechain-entity/pkg/store/memstore"
)

// mustOwnerProofKey generates a throwaway secp256k1 proof keypair, the
// same way ledger's own tests stand in for a client wallet's key.
func mustOwnerProofKey(t *testing.T) (*ecdsa2p.Point, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate proof key: %v", err)
	}
	return &ecdsa2p.Point{X: priv.X, Y: priv.Y}, priv
}

// signEntry signs entry as the prior owner's proof key would at the
// point the next StateChainEntry is authored, matching ledger.Chain's
// sha256(purpose||data) digest.
func signEntry(t *testing.T, priv *ecdsa.PrivateKey, entry ledger.Entry) []byte {
	t.Helper()
	h := sha256.New()
	h.Write([]byte(entry.Purpose))
	h.Write([]byte(entry.Data))
	sig, err := priv.Sign(rand.Reader, h.Sum(nil), nil)
	if err != nil {
		t.Fatalf("sign entry: %v", err)
	}
	return sig
}

func newTestEngine() (*Engine, store.StateStore) {
	s := memstore.New()
	return NewEngine(s, statelock.New()), s
}

func seedStateChain(t *testing.T, s store.StateStore, ownerID uuid.UUID, ownerProofKey *ecdsa2p.Point, lockedUntil time.Time) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	scID := uuid.New()

	var chain ledger.Chain
	if err := chain.Append(ledger.Entry{Purpose: ledger.PurposeTransfer, Data: hexEncode(ownerProofKey)}); err != nil {
		t.Fatalf("seed chain: %v", err)
	}
	if err := s.PutStateChain(ctx, &store.StateChain{ID: scID, Chain: chain, Amount: 100000, OwnerID: ownerID, LockedUntil: lockedUntil}); err != nil {
		t.Fatalf("put state chain: %v", err)
	}
	if err := s.PutUserSession(ctx, &store.UserSession{ID: ownerID, Auth: "tok", ProofKey: ownerProofKey.Compressed(), StateChainID: &scID}); err != nil {
		t.Fatalf("put user session: %v", err)
	}
	return scID
}

func hexEncode(p *ecdsa2p.Point) string {
	b := p.Compressed()
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func seedEcdsaSession(t *testing.T, s store.StateStore, userID uuid.UUID, s1, o1 *big.Int) {
	t.Helper()
	sess := &ecdsa2p.Session{
		UserID:       userID.String(),
		X1:           s1,
		Party2Public: ecdsa2p.ScalarBaseMul(o1),
		Complete:     true,
	}
	if err := s.PutEcdsaSession(sess); err != nil {
		t.Fatalf("put ecdsa session: %v", err)
	}
}

// s2InRange reports whether s2 = t2*x1^-1*s1, as Receiver recovers it,
// falls below the q/3 bound Receiver enforces.
func s2InRange(t2, x1, s1 *big.Int) bool {
	s2 := ecdsa2p.ModMul(ecdsa2p.ModMul(t2, ecdsa2p.ModInverse(x1)), s1)
	return s2.Cmp(new(big.Int).Div(ecdsa2p.N(), big.NewInt(3))) < 0
}

func TestSender_RejectsWhenLocked(t *testing.T) {
	e, s := newTestEngine()
	ownerID := uuid.New()
	ownerProofPub, _ := mustOwnerProofKey(t)
	seedStateChain(t, s, ownerID, ownerProofPub, time.Now().Add(10*time.Minute))

	_, err := e.Sender(context.Background(), "tok", TransferMsg1{SharedKeyID: ownerID, StateChainSig: ledger.Entry{}})
	if !sceerr.Is(err, sceerr.KindConflict) {
		t.Fatalf("expected Conflict for a locked chain, got %v", err)
	}
}

func TestSender_RejectsBadAuth(t *testing.T) {
	e, s := newTestEngine()
	ownerID := uuid.New()
	ownerProofPub, _ := mustOwnerProofKey(t)
	seedStateChain(t, s, ownerID, ownerProofPub, time.Time{})

	_, err := e.Sender(context.Background(), "wrong-token", TransferMsg1{SharedKeyID: ownerID})
	if err != ErrBadAuth {
		t.Fatalf("expected ErrBadAuth, got %v", err)
	}
}

func TestSender_RejectsSecondInitiation(t *testing.T) {
	e, s := newTestEngine()
	ownerID := uuid.New()
	ownerProofPub, _ := mustOwnerProofKey(t)
	seedStateChain(t, s, ownerID, ownerProofPub, time.Time{})

	msg1 := TransferMsg1{SharedKeyID: ownerID, StateChainSig: ledger.Entry{Purpose: ledger.PurposeTransfer, Data: "aa"}}
	if _, err := e.Sender(context.Background(), "tok", msg1); err != nil {
		t.Fatalf("first sender call: %v", err)
	}
	if _, err := e.Sender(context.Background(), "tok", msg1); err != store.ErrTransferDataExists {
		t.Fatalf("expected ErrTransferDataExists on re-initiation, got %v", err)
	}
}

// TestReceiver_PropertyP5_SingleOwnerAfterTransfer drives a full
// sender -> receiver round trip and checks the resulting state chain
// has exactly one owner, the new shared key id, with TransferData
// cleared.
func TestReceiver_PropertyP5_SingleOwnerAfterTransfer(t *testing.T) {
	e, s := newTestEngine()
	ctx := context.Background()

	ownerID := uuid.New()
	ownerProofPub, ownerProofPriv := mustOwnerProofKey(t)
	scID := seedStateChain(t, s, ownerID, ownerProofPub, time.Time{})
	_ = ownerProofPriv

	s1, _ := ecdsa2p.RandomScalar()
	o1, _ := ecdsa2p.RandomScalar() // client's old private share, known only to the wallet in reality
	seedEcdsaSession(t, s, ownerID, s1, o1)

	newOwnerProofPub, _ := mustOwnerProofKey(t)
	nextEntry := ledger.Entry{Purpose: ledger.PurposeTransfer, Data: hexEncode(newOwnerProofPub)}
	sig := signEntry(t, ownerProofPriv, nextEntry)
	nextEntry.Sig = sig

	msg1 := TransferMsg1{SharedKeyID: ownerID, StateChainSig: nextEntry}
	if _, err := e.Sender(ctx, "tok", msg1); err != nil {
		t.Fatalf("sender: %v", err)
	}

	td, err := s.GetTransferData(ctx, scID)
	if err != nil {
		t.Fatalf("load transfer data: %v", err)
	}

	// t2 = o1 * x1 * o2^-1 mod q, computed as the sending wallet would;
	// o2 is resampled until the recovered s2 is below Receiver's q/3 bound.
	var o2, t2 *big.Int
	for {
		o2, _ = ecdsa2p.RandomScalar()
		o2Inv := ecdsa2p.ModInverse(o2)
		t2 = ecdsa2p.ModMul(ecdsa2p.ModMul(o1, td.X1), o2Inv)
		if s2InRange(t2, td.X1, s1) {
			break
		}
	}
	o2Pub := ecdsa2p.ScalarBaseMul(o2)

	msg4 := TransferMsg4{
		SharedKeyID:   ownerID,
		StateChainID:  scID,
		T2:            t2,
		StateChainSig: nextEntry,
		O2Pub:         o2Pub,
		TxBackup:      []byte("backup-tx-bytes"),
	}

	msg5, finalizeData, err := e.Receiver(ctx, msg4)
	if err != nil {
		t.Fatalf("receiver: %v", err)
	}
	if finalizeData != nil {
		t.Fatalf("expected immediate finalize (no batch) to clear finalizeData return, got %+v", finalizeData)
	}
	if msg5 == nil || msg5.NewSharedKeyID == uuid.Nil {
		t.Fatalf("expected a minted new_shared_key_id")
	}

	sc, err := s.GetStateChain(ctx, scID)
	if err != nil {
		t.Fatalf("reload state chain: %v", err)
	}
	if sc.OwnerID != msg5.NewSharedKeyID {
		t.Fatalf("expected owner_id to be rekeyed to %s, got %s", msg5.NewSharedKeyID, sc.OwnerID)
	}
	if len(sc.Chain.Entries) != 2 {
		t.Fatalf("expected chain length 2 after transfer, got %d", len(sc.Chain.Entries))
	}

	if _, err := s.GetTransferData(ctx, scID); err != store.ErrTransferDataNotFound {
		t.Fatalf("expected TransferData removed after finalize, got %v", err)
	}

	newSess, err := s.GetUserSession(ctx, msg5.NewSharedKeyID)
	if err != nil {
		t.Fatalf("expected new UserSession to exist: %v", err)
	}
	if newSess.StateChainID == nil || *newSess.StateChainID != scID {
		t.Fatalf("expected new UserSession to link back to the state chain")
	}
}

// TestReceiver_RejectsSecondCallAfterBatchEnrollment drives a
// batch-enrolled transfer_receiver call (BatchData set, so finalize
// data is staged rather than applied immediately) and checks that a
// second call against the same transfer is rejected as already
// completed instead of recomputing and double-staging finalize data.
func TestReceiver_RejectsSecondCallAfterBatchEnrollment(t *testing.T) {
	e, s := newTestEngine()
	ctx := context.Background()

	ownerID := uuid.New()
	ownerProofPub, ownerProofPriv := mustOwnerProofKey(t)
	scID := seedStateChain(t, s, ownerID, ownerProofPub, time.Time{})

	s1, _ := ecdsa2p.RandomScalar()
	o1, _ := ecdsa2p.RandomScalar()
	seedEcdsaSession(t, s, ownerID, s1, o1)

	newOwnerProofPub, _ := mustOwnerProofKey(t)
	nextEntry := ledger.Entry{Purpose: ledger.PurposeTransfer, Data: hexEncode(newOwnerProofPub)}
	nextEntry.Sig = signEntry(t, ownerProofPriv, nextEntry)

	if _, err := e.Sender(ctx, "tok", TransferMsg1{SharedKeyID: ownerID, StateChainSig: nextEntry}); err != nil {
		t.Fatalf("sender: %v", err)
	}

	td, err := s.GetTransferData(ctx, scID)
	if err != nil {
		t.Fatalf("load transfer data: %v", err)
	}

	var o2, t2 *big.Int
	for {
		o2, _ = ecdsa2p.RandomScalar()
		o2Inv := ecdsa2p.ModInverse(o2)
		t2 = ecdsa2p.ModMul(ecdsa2p.ModMul(o1, td.X1), o2Inv)
		if s2InRange(t2, td.X1, s1) {
			break
		}
	}
	o2Pub := ecdsa2p.ScalarBaseMul(o2)

	msg4 := TransferMsg4{
		SharedKeyID:   ownerID,
		StateChainID:  scID,
		T2:            t2,
		StateChainSig: nextEntry,
		O2Pub:         o2Pub,
		TxBackup:      []byte("backup-tx-bytes"),
		BatchData:     &BatchData{ID: uuid.New(), Commitment: "c"},
	}

	msg5, finalizeData, err := e.Receiver(ctx, msg4)
	if err != nil {
		t.Fatalf("first receiver call: %v", err)
	}
	if finalizeData == nil {
		t.Fatalf("expected a batch-enrolled call to return finalize data to stage")
	}
	if msg5 == nil {
		t.Fatalf("expected msg5 on first call")
	}

	if _, _, err := e.Receiver(ctx, msg4); err != ErrTransferAlreadyCompleted {
		t.Fatalf("expected ErrTransferAlreadyCompleted on repeated receiver call, got %v", err)
	}
}

func TestReceiver_RejectsProtocolMismatchOnWrongT2(t *testing.T) {
	e, s := newTestEngine()
	ctx := context.Background()

	ownerID := uuid.New()
	ownerProofPub, ownerProofPriv := mustOwnerProofKey(t)
	scID := seedStateChain(t, s, ownerID, ownerProofPub, time.Time{})

	s1, _ := ecdsa2p.RandomScalar()
	o1, _ := ecdsa2p.RandomScalar()
	seedEcdsaSession(t, s, ownerID, s1, o1)

	newOwnerProofPub, _ := mustOwnerProofKey(t)
	nextEntry := ledger.Entry{Purpose: ledger.PurposeTransfer, Data: hexEncode(newOwnerProofPub)}
	nextEntry.Sig = signEntry(t, ownerProofPriv, nextEntry)

	if _, err := e.Sender(ctx, "tok", TransferMsg1{SharedKeyID: ownerID, StateChainSig: nextEntry}); err != nil {
		t.Fatalf("sender: %v", err)
	}

	td, err := s.GetTransferData(ctx, scID)
	if err != nil {
		t.Fatalf("load transfer data: %v", err)
	}

	o2, _ := ecdsa2p.RandomScalar()
	// wrongT2 is not derived from o1/x1/o2 at all; it is resampled only
	// until s2 passes the q/3 bound, so the P1 == P2 check is reached.
	var wrongT2 *big.Int
	for {
		wrongT2, _ = ecdsa2p.RandomScalar()
		if s2InRange(wrongT2, td.X1, s1) {
			break
		}
	}

	_, _, err = e.Receiver(ctx, TransferMsg4{
		SharedKeyID:   ownerID,
		StateChainID:  scID,
		T2:            wrongT2,
		StateChainSig: nextEntry,
		O2Pub:         ecdsa2p.ScalarBaseMul(o2),
		TxBackup:      []byte("backup"),
	})
	if err != ErrProtocolMismatch {
		t.Fatalf("expected ErrProtocolMismatch, got %v", err)
	}
}
