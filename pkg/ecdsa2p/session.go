package ecdsa2p

import "math/big"

// Session is the EcdsaSession entity of SPEC_FULL.md §3: state
// assembled progressively across the four keygen messages, then used
// by sign_first/sign_second. Once Complete is true no further keygen
// transition is permitted (invariant I3).
type Session struct {
	UserID string

	// Keygen msg 1 output / input to msg 4's commitment check.
	CommWitness []byte // r
	X1          *big.Int
	P1          *Point

	// Keygen msg 2.
	Party2Public *Point
	Paillier     *PaillierKeyPair
	CKey         *big.Int // Paillier encryption of x1, returned to the client in msg 2

	// Keygen msg 3: PDL proof intermediates.
	PDLDecommit        []byte
	Alpha              *big.Int
	Party2PDLFirstMsg  []byte

	// Keygen msg 4 result.
	MasterKeyAssembled bool
	Complete           bool

	// Ephemeral signing state, valid only between sign_first and
	// sign_second of a single signing session. Never persisted beyond
	// sign_second (§4.1 "do not persist signing ephemerals").
	EphK1    *big.Int
	EphR1    *Point
	EphReady bool
}

// Pos reports the keygen position this session has reached, 0..4, used
// to reject out-of-order messages with SessionNotReady.
func (s *Session) Pos() int {
	switch {
	case s.Complete:
		return 4
	case s.Alpha != nil:
		return 3
	case s.Party2Public != nil:
		return 2
	case s.X1 != nil:
		return 1
	default:
		return 0
	}
}
