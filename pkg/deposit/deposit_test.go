package deposit

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/statechain-entity/pkg/config"
	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/store/memstore"
)

func genProofKey(t *testing.T) (*ecdsa2p.Point, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate proof key: %v", err)
	}
	return &ecdsa2p.Point{X: priv.X, Y: priv.Y}, priv
}

func buildBackupTx(t *testing.T, addr string, amount int64) []byte {
	t.Helper()
	params := &chaincfg.RegressionNetParams
	target, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	script, err := txscript.PayToAddrScript(target)
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(amount, script))
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("serialize tx: %v", err)
	}
	return buf.Bytes()
}

func TestDeposit_FullFlow(t *testing.T) {
	s := memstore.New()
	ecdsaEngine := ecdsa2p.NewEngine(s)
	eng := NewEngine(s, ecdsaEngine, config.NetworkRegtest)
	ctx := context.Background()

	proofPub, _ := genProofKey(t)
	sess, err := eng.Init(ctx, proofPub.Compressed())
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	x1, _ := ecdsa2p.RandomScalar()
	o1, _ := ecdsa2p.RandomScalar()
	if err := s.PutEcdsaSession(&ecdsa2p.Session{
		UserID:       sess.ID.String(),
		X1:           x1,
		Party2Public: ecdsa2p.ScalarBaseMul(o1),
		Complete:     true,
	}); err != nil {
		t.Fatalf("seed ecdsa session: %v", err)
	}

	q, err := ecdsaEngine.SharedPublicKey(sess.ID.String())
	if err != nil {
		t.Fatalf("shared public key: %v", err)
	}
	addr, err := p2wpkhAddress(q, config.NetworkRegtest)
	if err != nil {
		t.Fatalf("p2wpkh address: %v", err)
	}

	rawTx := buildBackupTx(t, addr, 50000)
	if err := eng.PrepareSignBackup(ctx, sess.ID, rawTx, 50000); err != nil {
		t.Fatalf("prepare sign backup: %v", err)
	}

	sc, err := eng.CompleteDeposit(ctx, sess.ID, 50000)
	if err != nil {
		t.Fatalf("complete deposit: %v", err)
	}
	if sc.OwnerID != sess.ID {
		t.Fatalf("expected new state chain owned by %s, got %s", sess.ID, sc.OwnerID)
	}
	if len(sc.Chain.Entries) != 1 {
		t.Fatalf("expected a single genesis entry, got %d", len(sc.Chain.Entries))
	}

	reloaded, err := s.GetUserSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("reload user session: %v", err)
	}
	if reloaded.StateChainID == nil || *reloaded.StateChainID != sc.ID {
		t.Fatalf("expected user session to link back to the new state chain")
	}
}

func TestDeposit_PrepareSignBackupRejectsUnderfundedOutput(t *testing.T) {
	s := memstore.New()
	ecdsaEngine := ecdsa2p.NewEngine(s)
	eng := NewEngine(s, ecdsaEngine, config.NetworkRegtest)
	ctx := context.Background()

	proofPub, _ := genProofKey(t)
	sess, err := eng.Init(ctx, proofPub.Compressed())
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	x1, _ := ecdsa2p.RandomScalar()
	o1, _ := ecdsa2p.RandomScalar()
	if err := s.PutEcdsaSession(&ecdsa2p.Session{
		UserID:       sess.ID.String(),
		X1:           x1,
		Party2Public: ecdsa2p.ScalarBaseMul(o1),
		Complete:     true,
	}); err != nil {
		t.Fatalf("seed ecdsa session: %v", err)
	}

	q, err := ecdsaEngine.SharedPublicKey(sess.ID.String())
	if err != nil {
		t.Fatalf("shared public key: %v", err)
	}
	addr, err := p2wpkhAddress(q, config.NetworkRegtest)
	if err != nil {
		t.Fatalf("p2wpkh address: %v", err)
	}

	rawTx := buildBackupTx(t, addr, 1000)
	if err := eng.PrepareSignBackup(ctx, sess.ID, rawTx, 50000); err == nil {
		t.Fatalf("expected underfunded backup output to be rejected")
	}
}
