package transferbatch

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
	"github.com/certen/statechain-entity/pkg/statelock"
	"github.com/certen/statechain-entity/pkg/store"
	"github.com/certen/statechain-entity/pkg/store/memstore"
	"github.com/certen/statechain-entity/pkg/transfer"
)

func genProofKey(t *testing.T) (*ecdsa2p.Point, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate proof key: %v", err)
	}
	return &ecdsa2p.Point{X: priv.X, Y: priv.Y}, priv
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

// participant is one leg of a multi-party batch swap: an existing
// owner whose state chain will change hands.
type participant struct {
	stateChainID uuid.UUID
	ownerID      uuid.UUID
	msg4         transfer.TransferMsg4
}

// seedParticipant deposits a one-entry state chain owned by a fresh
// UserSession/EcdsaSession pair, then builds the TransferMsg4 a new
// owner would submit to swap it into batchID.
func seedParticipant(t *testing.T, s store.StateStore, batchID uuid.UUID) participant {
	t.Helper()
	ctx := context.Background()

	ownerID := uuid.New()
	ownerProofPub, ownerProofPriv := genProofKey(t)
	scID := uuid.New()

	var chain ledger.Chain
	if err := chain.Append(ledger.Entry{Purpose: ledger.PurposeTransfer, Data: hexEncode(ownerProofPub)}); err != nil {
		t.Fatalf("seed chain: %v", err)
	}
	if err := s.PutStateChain(ctx, &store.StateChain{ID: scID, Chain: chain, Amount: 50000, OwnerID: ownerID}); err != nil {
		t.Fatalf("put state chain: %v", err)
	}
	if err := s.PutUserSession(ctx, &store.UserSession{ID: ownerID, Auth: "tok", ProofKey: ownerProofPub.Compressed(), StateChainID: &scID}); err != nil {
		t.Fatalf("put user session: %v", err)
	}

	s1, _ := ecdsa2p.RandomScalar()
	o1, _ := ecdsa2p.RandomScalar()
	if err := s.PutEcdsaSession(&ecdsa2p.Session{
		UserID:       ownerID.String(),
		X1:           s1,
		Party2Public: ecdsa2p.ScalarBaseMul(o1),
		Complete:     true,
	}); err != nil {
		t.Fatalf("put ecdsa session: %v", err)
	}

	newOwnerProofPub, _ := genProofKey(t)
	nextEntry := ledger.Entry{Purpose: ledger.PurposeTransfer, Data: hexEncode(newOwnerProofPub)}
	nextEntry.Sig = signEntry(t, ownerProofPriv, nextEntry)

	eng := transfer.NewEngine(s, statelock.New())
	if _, err := eng.Sender(ctx, "tok", transfer.TransferMsg1{SharedKeyID: ownerID, StateChainSig: nextEntry}); err != nil {
		t.Fatalf("sender: %v", err)
	}
	td, err := s.GetTransferData(ctx, scID)
	if err != nil {
		t.Fatalf("load transfer data: %v", err)
	}

	// Receiver rejects s2 = t2*x1^-1*s1 at or above q/3, so o2 is
	// resampled until the recovered s2 is below that bound.
	thirdOfQ := new(big.Int).Div(ecdsa2p.N(), big.NewInt(3))
	var o2, t2 *big.Int
	for {
		o2, _ = ecdsa2p.RandomScalar()
		o2Inv := ecdsa2p.ModInverse(o2)
		t2 = ecdsa2p.ModMul(ecdsa2p.ModMul(o1, td.X1), o2Inv)
		s2 := ecdsa2p.ModMul(ecdsa2p.ModMul(t2, ecdsa2p.ModInverse(td.X1)), s1)
		if s2.Cmp(thirdOfQ) < 0 {
			break
		}
	}

	msg4 := transfer.TransferMsg4{
		SharedKeyID:   ownerID,
		StateChainID:  scID,
		T2:            t2,
		StateChainSig: nextEntry,
		O2Pub:         ecdsa2p.ScalarBaseMul(o2),
		TxBackup:      []byte("backup-tx"),
		BatchData:     &transfer.BatchData{ID: batchID},
	}
	return participant{stateChainID: scID, ownerID: ownerID, msg4: msg4}
}

func TestBatch_RevealsOnceAllPartiesEnroll(t *testing.T) {
	s := memstore.New()
	lock := statelock.New()
	transferEngine := transfer.NewEngine(s, lock)
	batchEngine := NewEngine(s, transferEngine)
	ctx := context.Background()

	batchID := uuid.New()
	p1 := seedParticipant(t, s, batchID)
	p2 := seedParticipant(t, s, batchID)

	if err := batchEngine.Initiate(ctx, batchID, []uuid.UUID{p1.stateChainID, p2.stateChainID}); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if _, err := batchEngine.Receive(ctx, p1.msg4); err != nil {
		t.Fatalf("receive p1: %v", err)
	}
	info, err := batchEngine.Status(ctx, batchID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if info.Status != StatusCollecting {
		t.Fatalf("expected still collecting after 1/2 revealed, got %s", info.Status)
	}

	if _, err := batchEngine.Receive(ctx, p2.msg4); err != nil {
		t.Fatalf("receive p2: %v", err)
	}

	info, err = batchEngine.Status(ctx, batchID)
	if err != nil {
		t.Fatalf("status after reveal: %v", err)
	}
	if info.Status != StatusRevealed {
		t.Fatalf("expected batch revealed once both parties enrolled, got %s", info.Status)
	}

	sc1, err := s.GetStateChain(ctx, p1.stateChainID)
	if err != nil {
		t.Fatalf("reload sc1: %v", err)
	}
	if sc1.OwnerID == p1.ownerID {
		t.Fatalf("expected sc1's owner to change after batch reveal")
	}
	sc2, err := s.GetStateChain(ctx, p2.stateChainID)
	if err != nil {
		t.Fatalf("reload sc2: %v", err)
	}
	if sc2.OwnerID == p2.ownerID {
		t.Fatalf("expected sc2's owner to change after batch reveal")
	}
}

func TestBatch_TimeoutPunishesNonRevealingParty(t *testing.T) {
	s := memstore.New()
	lock := statelock.New()
	transferEngine := transfer.NewEngine(s, lock)
	batchEngine := NewEngine(s, transferEngine)
	batchEngine.Lifetime = time.Millisecond
	ctx := context.Background()

	batchID := uuid.New()
	p1 := seedParticipant(t, s, batchID)
	p2 := seedParticipant(t, s, batchID)

	if err := batchEngine.Initiate(ctx, batchID, []uuid.UUID{p1.stateChainID, p2.stateChainID}); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	time.Sleep(2 * time.Millisecond)

	if err := batchEngine.Timeout(ctx, batchID); err != nil {
		t.Fatalf("timeout: %v", err)
	}

	sc1, err := s.GetStateChain(ctx, p1.stateChainID)
	if err != nil {
		t.Fatalf("reload sc1: %v", err)
	}
	if !sc1.LockedUntil.After(time.Now()) {
		t.Fatalf("expected sc1 to be locked after batch punishment")
	}

	info, err := batchEngine.Status(ctx, batchID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if info.Status != StatusTimedOut {
		t.Fatalf("expected timed_out status, got %s", info.Status)
	}

	batch, err := s.GetTransferBatch(ctx, batchID)
	if err != nil {
		t.Fatalf("reload batch: %v", err)
	}
	if batch.Finalized {
		t.Fatalf("a punished batch must never report Finalized=true (I6)")
	}
	if !batch.TimedOut {
		t.Fatalf("expected TimedOut=true after punishment")
	}

	if err := batchEngine.Timeout(ctx, batchID); err != ErrAlreadyProcessed {
		t.Fatalf("expected ErrAlreadyProcessed on repeated timeout, got %v", err)
	}
}

func TestBatch_RevealRejectsWhileIncomplete(t *testing.T) {
	s := memstore.New()
	lock := statelock.New()
	transferEngine := transfer.NewEngine(s, lock)
	batchEngine := NewEngine(s, transferEngine)
	ctx := context.Background()

	batchID := uuid.New()
	p1 := seedParticipant(t, s, batchID)
	p2 := seedParticipant(t, s, batchID)

	if err := batchEngine.Initiate(ctx, batchID, []uuid.UUID{p1.stateChainID, p2.stateChainID}); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if err := batchEngine.Reveal(ctx, batchID); err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete before any participant reveals, got %v", err)
	}
}
