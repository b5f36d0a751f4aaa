package ecdsa2p

import (
	"math/big"
)

// SignFirstResult is returned to the client after sign_first.
type SignFirstResult struct {
	R1 *Point
}

// SignFirst samples an ephemeral k1 and returns R1 = k1*G, per §4.1
// "Sign first". k1 and R1 are stored on the EcdsaSession (EphK1, EphR1,
// EphReady) through PutEcdsaSession so that SignSecond can use them;
// SignSecond clears them once the round completes.
func (e *Engine) SignFirst(userID string) (*SignFirstResult, error) {
	sess, err := e.Store.GetEcdsaSession(userID)
	if err != nil {
		return nil, ErrSessionNotReady
	}
	if !sess.Complete {
		return nil, ErrSessionNotReady
	}

	k1, err := RandomScalar()
	if err != nil {
		return nil, err
	}
	r1 := ScalarBaseMul(k1)

	sess.EphK1 = k1
	sess.EphR1 = r1
	sess.EphReady = true
	if err := e.Store.PutEcdsaSession(sess); err != nil {
		return nil, err
	}
	return &SignFirstResult{R1: r1}, nil
}

// SignSecondResult is the final DER-encoded ECDSA signature.
type SignSecondResult struct {
	R *big.Int
	S *big.Int
	DER []byte
}

// SignSecond decrypts the client's Paillier ciphertext c3 to obtain s',
// recovers s = k1^-1 * s' mod q, normalizes to low-S, and clears the
// ephemeral signing state — "do not persist signing ephemerals beyond
// this call" (§4.1).
func (e *Engine) SignSecond(userID string, c3 *big.Int) (*SignSecondResult, error) {
	sess, err := e.Store.GetEcdsaSession(userID)
	if err != nil {
		return nil, ErrSessionNotReady
	}
	if !sess.Complete || !sess.EphReady {
		return nil, ErrSessionNotReady
	}

	sPrime, err := sess.Paillier.Decrypt(c3)
	if err != nil {
		return nil, ErrPaillierDecryptFail
	}

	k1Inv := ModInverse(sess.EphK1)
	s := ModMul(k1Inv, sPrime)
	s = LowS(s)

	r := new(big.Int).Mod(sess.EphR1.X, N())

	sess.EphK1 = nil
	sess.EphR1 = nil
	sess.EphReady = false
	if err := e.Store.PutEcdsaSession(sess); err != nil {
		return nil, err
	}

	der, err := encodeDER(r, s)
	if err != nil {
		return nil, err
	}
	return &SignSecondResult{R: r, S: s, DER: der}, nil
}
