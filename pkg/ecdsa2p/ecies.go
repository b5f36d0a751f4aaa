package ecdsa2p

import (
	"crypto/ecdsa"
	"crypto/rand"

	"github.com/ethereum/go-ethereum/crypto/ecies"
)

// EncryptToProofKey ECIES-encrypts plaintext to the given secp256k1
// proof key, used for the sender-to-receiver TransferMsg2/TransferMsg4
// blobs of §4.3 ("ECIES-encrypted to the sender's proof key").
func EncryptToProofKey(recipient *Point, plaintext []byte) ([]byte, error) {
	pub := &ecdsa.PublicKey{Curve: curve(), X: recipient.X, Y: recipient.Y}
	eciesPub := ecies.ImportECDSAPublic(pub)
	return ecies.Encrypt(rand.Reader, eciesPub, plaintext, nil, nil)
}

// Note: the entity never holds an owner's proof-key private scalar —
// only the client wallet (out of scope per §1) can decrypt these
// blobs. This package therefore exposes encryption only.
