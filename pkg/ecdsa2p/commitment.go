package ecdsa2p

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
)

// Commit produces a hiding commitment c = H(P1 || r) over the caller's
// point encoding, with a freshly sampled 32-byte witness r, per keygen
// msg 1 (§4.1). Adapted from the teacher's HashConcat commitment
// helper (pkg/commitment/commitment.go).
func Commit(encoded []byte) (commitment, witness []byte, err error) {
	r := make([]byte, 32)
	if _, err := rand.Read(r); err != nil {
		return nil, nil, err
	}
	h := sha256.New()
	h.Write(encoded)
	h.Write(r)
	return h.Sum(nil), r, nil
}

// Open recomputes H(encoded || witness) and reports whether it matches
// commitment, for keygen msg 4's decommitment check.
func Open(commitment, encoded, witness []byte) bool {
	h := sha256.New()
	h.Write(encoded)
	h.Write(witness)
	sum := h.Sum(nil)
	if len(sum) != len(commitment) {
		return false
	}
	return subtle.ConstantTimeCompare(sum, commitment) == 1
}
