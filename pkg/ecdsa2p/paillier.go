package ecdsa2p

import (
	"crypto/rand"
	"math/big"

	paillier "github.com/roasbeef/go-go-gadget-paillier"
)

// PaillierKeyPair holds a freshly generated Paillier keypair, used by
// keygen msg 2 to encrypt the entity's share x1 so the client can later
// homomorphically combine it during signing (§4.1).
type PaillierKeyPair struct {
	Priv *paillier.PrivateKey
}

// GeneratePaillierKeyPair generates a fresh 2048-bit Paillier keypair.
func GeneratePaillierKeyPair() (*PaillierKeyPair, error) {
	priv, err := paillier.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return &PaillierKeyPair{Priv: priv}, nil
}

// Encrypt encrypts x under the keypair's public key, producing c_key
// returned to the client in keygen msg 2.
func (k *PaillierKeyPair) Encrypt(x *big.Int) (*big.Int, error) {
	c, err := paillier.Encrypt(&k.Priv.PublicKey, x.Bytes())
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(c), nil
}

// Decrypt decrypts a Paillier ciphertext, used in keygen msg 3 (to
// recover alpha from the PDL challenge) and sign_second (to recover s').
func (k *PaillierKeyPair) Decrypt(c *big.Int) (*big.Int, error) {
	m, err := paillier.Decrypt(k.Priv, c.Bytes())
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(m), nil
}

// HomomorphicAdd returns an encryption of (a+b) given encryptions of a
// and b, under the same public key.
func (k *PaillierKeyPair) HomomorphicAdd(ca, cb *big.Int) *big.Int {
	sum := paillier.AddCipher(&k.Priv.PublicKey, ca.Bytes(), cb.Bytes())
	return new(big.Int).SetBytes(sum)
}

// HomomorphicMulConst returns an encryption of (k*a) given an
// encryption of a and a cleartext scalar k, under the same public key.
func (k *PaillierKeyPair) HomomorphicMulConst(ca *big.Int, scalar *big.Int) *big.Int {
	return new(big.Int).SetBytes(paillier.Mul(&k.Priv.PublicKey, ca.Bytes(), scalar.Bytes()))
}
