package ecdsa2p

import "github.com/certen/statechain-entity/pkg/sceerr"

// Failure modes named in SPEC_FULL.md §4.1.
var (
	ErrInvalidProof       = sceerr.Protocol("invalid discrete-log or PDL proof")
	ErrPaillierDecryptFail = sceerr.Protocol("paillier decryption failed")
	ErrSessionNotReady    = sceerr.Conflict("ecdsa session not ready for this message")
	ErrSessionComplete    = sceerr.Conflict("ecdsa keygen session already complete")
)
