package ecdsa2p

import (
	"crypto/ecdsa"
	"encoding/asn1"
	"math/big"
)

// derSignature mirrors the ASN.1 SEQUENCE{r,s} structure used for
// ECDSA signatures on Bitcoin-like networks, matching the DER encoding
// convention the teacher's own signing manager uses for its ECDSA
// co-signing (aes_tag/signing_manager.go, summitto-tlsnotaryserver).
type derSignature struct {
	R, S *big.Int
}

func encodeDER(r, s *big.Int) ([]byte, error) {
	return asn1.Marshal(derSignature{R: r, S: s})
}

// DecodeDER parses a DER-encoded ECDSA signature, used when verifying a
// statechain entry's signature against the previous owner's proof key
// (§4.6).
func DecodeDER(der []byte) (r, s *big.Int, err error) {
	var sig derSignature
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		return nil, nil, err
	}
	return sig.R, sig.S, nil
}

// Verify checks a DER-encoded signature over digest against pub, per
// invariant I1 ("every adjacent pair satisfies verify(...)").
func Verify(pub *Point, digest []byte, der []byte) bool {
	r, s, err := DecodeDER(der)
	if err != nil {
		return false
	}
	pk := &ecdsa.PublicKey{Curve: curve(), X: pub.X, Y: pub.Y}
	return ecdsa.Verify(pk, digest, r, s)
}
