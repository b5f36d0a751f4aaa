package withdraw

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/config"
	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/ledger"
	"github.com/certen/statechain-entity/pkg/statelock"
	"github.com/certen/statechain-entity/pkg/store"
	"github.com/certen/statechain-entity/pkg/store/memstore"
)

const (
	testFeeAddr = "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080"
	testOutAddr = "bcrt1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0g"
)

func genOwnerKey(t *testing.T) (*ecdsa2p.Point, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate owner key: %v", err)
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

func signWithdraw(t *testing.T, priv *ecdsa.PrivateKey, entry ledger.Entry) []byte {
	t.Helper()
	h := sha256.New()
	h.Write([]byte(entry.Purpose))
	h.Write([]byte(entry.Data))
	sig, err := priv.Sign(rand.Reader, h.Sum(nil), nil)
	if err != nil {
		t.Fatalf("sign withdraw entry: %v", err)
	}
	return sig
}

func buildTxPaying(t *testing.T, outs map[string]int64) []byte {
	t.Helper()
	params := &chaincfg.RegressionNetParams
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	for addr, amount := range outs {
		target, err := btcutil.DecodeAddress(addr, params)
		if err != nil {
			t.Fatalf("decode address %s: %v", addr, err)
		}
		script, err := txscript.PayToAddrScript(target)
		if err != nil {
			t.Fatalf("build script for %s: %v", addr, err)
		}
		tx.AddTxOut(wire.NewTxOut(amount, script))
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("serialize tx: %v", err)
	}
	return buf.Bytes()
}

func seedOwnedChain(t *testing.T, s store.StateStore, amount int64) (uuid.UUID, uuid.UUID, *ecdsa.PrivateKey) {
	t.Helper()
	ctx := context.Background()

	ownerPub, ownerPriv := genOwnerKey(t)
	userID := uuid.New()
	scID := uuid.New()

	var chain ledger.Chain
	if err := chain.Append(ledger.Entry{Purpose: ledger.PurposeTransfer, Data: hexEncode(ownerPub)}); err != nil {
		t.Fatalf("seed genesis entry: %v", err)
	}
	if err := s.PutStateChain(ctx, &store.StateChain{ID: scID, Chain: chain, Amount: amount, OwnerID: userID}); err != nil {
		t.Fatalf("put state chain: %v", err)
	}
	if err := s.PutUserSession(ctx, &store.UserSession{ID: userID, Auth: "tok", ProofKey: ownerPub.Compressed(), StateChainID: &scID}); err != nil {
		t.Fatalf("put user session: %v", err)
	}
	if err := s.PutBackupTx(ctx, &store.BackupTx{StateChainID: scID, Tx: buildTxPaying(t, map[string]int64{testOutAddr: amount})}); err != nil {
		t.Fatalf("put backup tx: %v", err)
	}

	x1, err := ecdsa2p.RandomScalar()
	if err != nil {
		t.Fatalf("generate x1: %v", err)
	}
	party2Priv, err := ecdsa2p.RandomScalar()
	if err != nil {
		t.Fatalf("generate party2 scalar: %v", err)
	}
	sess := &ecdsa2p.Session{
		UserID:             userID.String(),
		X1:                 x1,
		Party2Public:       ecdsa2p.ScalarBaseMul(party2Priv),
		MasterKeyAssembled: true,
		Complete:           true,
	}
	if err := s.PutEcdsaSession(sess); err != nil {
		t.Fatalf("seed ecdsa session: %v", err)
	}

	return userID, scID, ownerPriv
}

func newTestEngine(s store.StateStore) *Engine {
	ecdsaEngine := ecdsa2p.NewEngine(s)
	return NewEngine(s, ecdsaEngine, statelock.New(), config.NetworkRegtest, testFeeAddr, 300)
}

func TestWithdraw_FullFlow(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	amount := int64(50000)
	userID, scID, ownerPriv := seedOwnedChain(t, s, amount)
	eng := newTestEngine(s)

	entry := ledger.Entry{Purpose: ledger.PurposeWithdraw, Data: testOutAddr}
	entry.Sig = signWithdraw(t, ownerPriv, entry)

	if err := eng.Init(ctx, "tok", userID, testOutAddr, entry.Sig); err != nil {
		t.Fatalf("init: %v", err)
	}

	rawTx := buildTxPaying(t, map[string]int64{
		testFeeAddr: 300,
		testOutAddr: amount - 300,
	})
	if err := eng.PrepareSignWithdraw(ctx, userID, rawTx); err != nil {
		t.Fatalf("prepare sign withdraw: %v", err)
	}

	txid, err := eng.Confirm(ctx, userID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !bytes.Equal(txid, rawTx) {
		t.Fatalf("expected confirm to return the staged withdraw tx")
	}

	sc, err := s.GetStateChain(ctx, scID)
	if err != nil {
		t.Fatalf("reload state chain: %v", err)
	}
	if sc.Amount != 0 {
		t.Fatalf("expected amount zeroed after withdraw, got %d", sc.Amount)
	}
	if len(sc.Chain.Entries) != 2 {
		t.Fatalf("expected withdraw entry appended, got %d entries", len(sc.Chain.Entries))
	}

	if _, err := s.GetUserSession(ctx, userID); err == nil {
		t.Fatalf("expected user session to be removed after withdraw confirm")
	}
}

func TestWithdraw_InitRejectsBadAuth(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	userID, _, ownerPriv := seedOwnedChain(t, s, 50000)
	eng := newTestEngine(s)

	entry := ledger.Entry{Purpose: ledger.PurposeWithdraw, Data: testOutAddr}
	entry.Sig = signWithdraw(t, ownerPriv, entry)

	if err := eng.Init(ctx, "wrong-token", userID, testOutAddr, entry.Sig); err != ErrBadAuth {
		t.Fatalf("expected ErrBadAuth, got %v", err)
	}
}

func TestWithdraw_PrepareSignRejectsUnderfundedFee(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	amount := int64(50000)
	userID, _, ownerPriv := seedOwnedChain(t, s, amount)
	eng := newTestEngine(s)

	entry := ledger.Entry{Purpose: ledger.PurposeWithdraw, Data: testOutAddr}
	entry.Sig = signWithdraw(t, ownerPriv, entry)
	if err := eng.Init(ctx, "tok", userID, testOutAddr, entry.Sig); err != nil {
		t.Fatalf("init: %v", err)
	}

	rawTx := buildTxPaying(t, map[string]int64{
		testFeeAddr: 10, // below fee_withdraw
		testOutAddr: amount - 10,
	})
	if err := eng.PrepareSignWithdraw(ctx, userID, rawTx); err == nil {
		t.Fatalf("expected underfunded fee output to be rejected")
	}
}

func TestWithdraw_ConfirmRejectsWithoutPreparedTx(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	userID, _, ownerPriv := seedOwnedChain(t, s, 50000)
	eng := newTestEngine(s)

	entry := ledger.Entry{Purpose: ledger.PurposeWithdraw, Data: testOutAddr}
	entry.Sig = signWithdraw(t, ownerPriv, entry)
	if err := eng.Init(ctx, "tok", userID, testOutAddr, entry.Sig); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := eng.Confirm(ctx, userID); err != ErrNotStaged {
		t.Fatalf("expected ErrNotStaged, got %v", err)
	}
}
