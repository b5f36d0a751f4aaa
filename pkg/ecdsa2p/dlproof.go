package ecdsa2p

import (
	"crypto/sha256"
	"math/big"
)

// DLProof is a non-interactive Schnorr proof of knowledge of the
// discrete log of a point, used by the client to prove knowledge of
// x2 behind P2 before the server accepts it in keygen msg 2.
type DLProof struct {
	R *Point   // commitment k*G
	S *big.Int // response k + e*x mod N
}

// challenge derives the Fiat-Shamir challenge e = H(P || R) mod N.
func challenge(p, r *Point) *big.Int {
	h := sha256.New()
	h.Write(p.Compressed())
	h.Write(r.Compressed())
	e := new(big.Int).SetBytes(h.Sum(nil))
	return e.Mod(e, N())
}

// VerifyDLProof checks that proof demonstrates knowledge of the
// discrete log of p: s*G == R + e*P.
func VerifyDLProof(p *Point, proof *DLProof) bool {
	if p == nil || proof == nil || proof.R == nil || proof.S == nil {
		return false
	}
	e := challenge(p, proof.R)
	lhs := ScalarBaseMul(proof.S)
	rhs := Add(proof.R, ScalarMul(p, e))
	return lhs.Equal(rhs)
}

// ProveDL constructs a DLProof for x behind P = x*G. It exists mainly
// to support tests exercising VerifyDLProof end to end; the real
// client-side prover lives outside this repository's scope (§1).
func ProveDL(x *big.Int) (*Point, *DLProof, error) {
	p := ScalarBaseMul(x)
	k, err := RandomScalar()
	if err != nil {
		return nil, nil, err
	}
	r := ScalarBaseMul(k)
	e := challenge(p, r)
	s := ModAdd(k, ModMul(e, x))
	return p, &DLProof{R: r, S: s}, nil
}
