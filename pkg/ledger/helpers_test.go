package ledger

import (
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
)

// ecdsa2pPrivKey is a thin test-only wrapper so ledger's tests can
// generate and sign with throwaway owner keypairs without reaching
// into ecdsa2p's production (server-side) key material.
type ecdsa2pPrivKey struct {
	key *ecdsa.PrivateKey
}

func mustGenKey(t *testing.T) (*ecdsa2p.Point, *ecdsa2pPrivKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &ecdsa2p.Point{X: priv.X, Y: priv.Y}, &ecdsa2pPrivKey{key: priv}
}

func mustSign(t *testing.T, priv *ecdsa2pPrivKey, digest []byte) []byte {
	t.Helper()
	sig, err := priv.key.Sign(rand.Reader, digest, nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}
