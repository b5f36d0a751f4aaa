package ecdsa2p

import (
	"math/big"
)

// SessionStore is the narrow persistence seam the engine needs: load
// and save a single user's EcdsaSession. pkg/store's StateStore
// satisfies it; tests may supply a trivial in-memory map.
type SessionStore interface {
	GetEcdsaSession(userID string) (*Session, error)
	PutEcdsaSession(s *Session) error
}

// Engine coordinates the two-party ECDSA protocol against a
// SessionStore. It holds no state of its own beyond the store handle.
type Engine struct {
	Store SessionStore
}

func NewEngine(store SessionStore) *Engine {
	return &Engine{Store: store}
}

// KeygenFirstResult is returned to the client after keygen msg 1.
type KeygenFirstResult struct {
	Commitment []byte
}

// KeygenFirst samples x1, computes P1 = x1*G, and commits to it,
// per §4.1 "Keygen msg 1".
func (e *Engine) KeygenFirst(userID string) (*KeygenFirstResult, error) {
	if _, err := e.Store.GetEcdsaSession(userID); err == nil {
		return nil, ErrSessionComplete
	}

	x1, err := RandomScalar()
	if err != nil {
		return nil, err
	}
	p1 := ScalarBaseMul(x1)
	commitment, witness, err := Commit(p1.Compressed())
	if err != nil {
		return nil, err
	}

	sess := &Session{UserID: userID, X1: x1, P1: p1, CommWitness: witness}
	if err := e.Store.PutEcdsaSession(sess); err != nil {
		return nil, err
	}
	return &KeygenFirstResult{Commitment: commitment}, nil
}

// KeygenSecondResult is returned to the client after keygen msg 2.
type KeygenSecondResult struct {
	P1        *Point
	Witness   []byte
	CKey      *big.Int
	PaillierN *big.Int // public modulus, for the client's correct-key proof check
}

// KeygenSecond verifies the client's DL proof of P2, generates a fresh
// Paillier keypair, and encrypts x1 under it, per §4.1 "Keygen msg 2".
// dlProofOK is supplied by the caller (the façade layer verifies the
// Schnorr-style DL proof against p2 before calling in, since the proof
// encoding is a transport concern, not a state-machine concern).
func (e *Engine) KeygenSecond(userID string, p2 *Point, dlProofOK bool) (*KeygenSecondResult, error) {
	sess, err := e.Store.GetEcdsaSession(userID)
	if err != nil {
		return nil, ErrSessionNotReady
	}
	if sess.Pos() != 1 {
		return nil, ErrSessionNotReady
	}
	if !dlProofOK {
		return nil, ErrInvalidProof
	}

	keyPair, err := GeneratePaillierKeyPair()
	if err != nil {
		return nil, err
	}
	cKey, err := keyPair.Encrypt(sess.X1)
	if err != nil {
		return nil, err
	}

	sess.Party2Public = p2
	sess.Paillier = keyPair
	sess.CKey = cKey
	if err := e.Store.PutEcdsaSession(sess); err != nil {
		return nil, err
	}

	return &KeygenSecondResult{
		P1:        sess.P1,
		Witness:   sess.CommWitness,
		CKey:      cKey,
		PaillierN: keyPair.Priv.PublicKey.N,
	}, nil
}

// KeygenThirdResult is returned to the client after keygen msg 3: a
// commitment to alpha, opened in msg 4.
type KeygenThirdResult struct {
	AlphaCommitment []byte
}

// KeygenThird decrypts the client's PDL challenge to recover alpha and
// commits to it, per §4.1 "Keygen msg 3".
func (e *Engine) KeygenThird(userID string, pdlChallenge *big.Int, beta *big.Int, party2PDLFirstMsg []byte) (*KeygenThirdResult, error) {
	sess, err := e.Store.GetEcdsaSession(userID)
	if err != nil {
		return nil, ErrSessionNotReady
	}
	if sess.Pos() != 2 {
		return nil, ErrSessionNotReady
	}

	// alpha = Dec(sk, challenge*c_key + beta), computed homomorphically
	// on the Paillier ciphertext before decryption: scale the stored
	// encryption of x1 by the PDL challenge, blind it with an
	// encryption of beta, then decrypt.
	scaled := sess.Paillier.HomomorphicMulConst(sess.CKey, pdlChallenge)
	encBeta, err := sess.Paillier.Encrypt(beta)
	if err != nil {
		return nil, err
	}
	combined := sess.Paillier.HomomorphicAdd(scaled, encBeta)
	alpha, err := sess.Paillier.Decrypt(combined)
	if err != nil {
		return nil, ErrPaillierDecryptFail
	}

	commitment, witness, err := Commit(alpha.Bytes())
	if err != nil {
		return nil, err
	}

	sess.Alpha = alpha
	sess.PDLDecommit = witness
	sess.Party2PDLFirstMsg = party2PDLFirstMsg
	if err := e.Store.PutEcdsaSession(sess); err != nil {
		return nil, err
	}
	return &KeygenThirdResult{AlphaCommitment: commitment}, nil
}

// KeygenFourthResult is returned to the client after keygen msg 4: the
// opened alpha and witness, letting the client verify the PDL
// commitment it received in msg 3.
type KeygenFourthResult struct {
	Alpha   *big.Int
	Witness []byte
}

// KeygenFourth opens alpha, marks the session complete, and assembles
// the server's share of the master key, per §4.1 "Keygen msg 4".
// Once Complete is set no further keygen transition is permitted
// (invariant I3).
func (e *Engine) KeygenFourth(userID string) (*KeygenFourthResult, error) {
	sess, err := e.Store.GetEcdsaSession(userID)
	if err != nil {
		return nil, ErrSessionNotReady
	}
	if sess.Complete {
		return nil, ErrSessionComplete
	}
	if sess.Pos() != 3 {
		return nil, ErrSessionNotReady
	}

	sess.MasterKeyAssembled = true
	sess.Complete = true
	if err := e.Store.PutEcdsaSession(sess); err != nil {
		return nil, err
	}
	return &KeygenFourthResult{Alpha: sess.Alpha, Witness: sess.PDLDecommit}, nil
}

// SharedPublicKey reconstructs Q = x1*P2 for a completed session,
// invariant P2 of §8's property list.
func (e *Engine) SharedPublicKey(userID string) (*Point, error) {
	sess, err := e.Store.GetEcdsaSession(userID)
	if err != nil {
		return nil, ErrSessionNotReady
	}
	if !sess.Complete {
		return nil, ErrSessionNotReady
	}
	return ScalarMul(sess.Party2Public, sess.X1), nil
}
