package pgstore

import (
	"encoding/hex"
	"fmt"
	"math/big"

	paillier "github.com/roasbeef/go-go-gadget-paillier"

	"github.com/certen/statechain-entity/pkg/commitment"
	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/ledger"
)

// canonicalJSON marshals v with sorted key order, matching
// SPEC_FULL.md §6's "binary structures stored as canonical JSON
// strings". Sorted keys make the stored bytes reproducible regardless
// of struct field order, so two processes that recompute the same row
// never disagree byte-for-byte.
func canonicalJSON(v interface{}) ([]byte, error) {
	canon, err := commitment.MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize json: %w", err)
	}
	return canon, nil
}

// entryJSON is the JSON-on-the-wire shape of a ledger.Entry, stored
// inline inside UserSession.withdraw_sc_sig (§3).
type entryJSON struct {
	Purpose string `json:"purpose"`
	Data    string `json:"data"`
	Sig     []byte `json:"sig,omitempty"`
}

func entryJSONFrom(e *ledger.Entry) *entryJSON {
	if e == nil {
		return nil
	}
	return &entryJSON{Purpose: string(e.Purpose), Data: e.Data, Sig: e.Sig}
}

func (j *entryJSON) toEntry() *ledger.Entry {
	if j == nil {
		return nil
	}
	return &ledger.Entry{Purpose: ledger.Purpose(j.Purpose), Data: j.Data, Sig: j.Sig}
}

// bigIntJSON stores a scalar as hex so it round-trips exactly,
// following repository_proof.go's convention of an explicit wire
// encoding rather than relying on big.Int's own (lossy for nil) JSON
// marshaling.
type bigIntJSON string

func bigIntJSONFrom(v *big.Int) *bigIntJSON {
	if v == nil {
		return nil
	}
	s := bigIntJSON(hex.EncodeToString(v.Bytes()))
	return &s
}

func (j *bigIntJSON) toBigInt() *big.Int {
	if j == nil {
		return nil
	}
	b, err := hex.DecodeString(string(*j))
	if err != nil {
		return nil
	}
	return new(big.Int).SetBytes(b)
}

// pointJSON stores a curve point as its SEC1 compressed encoding.
type pointJSON []byte

func pointJSONFrom(p *ecdsa2p.Point) pointJSON {
	if p == nil {
		return nil
	}
	return p.Compressed()
}

func (j pointJSON) toPoint() *ecdsa2p.Point {
	if len(j) == 0 {
		return nil
	}
	p, err := ecdsa2p.ParsePoint(j)
	if err != nil {
		return nil
	}
	return p
}

// ecdsaSessionJSON mirrors ecdsa2p.Session's field set for storage.
// Paillier key material round-trips through encoding/json directly:
// go-go-gadget-paillier's PrivateKey/PublicKey expose their N/G/Lambda/Mu
// fields, which is what every consumer of that package (including
// summitto-tlsnotaryserver) relies on to move keys across a wire.
type ecdsaSessionJSON struct {
	CommWitness        []byte                 `json:"comm_witness,omitempty"`
	X1                 *bigIntJSON            `json:"x1,omitempty"`
	P1                 pointJSON              `json:"p1,omitempty"`
	Party2Public       pointJSON              `json:"party2_public,omitempty"`
	Paillier           *paillier.PrivateKey   `json:"paillier,omitempty"`
	CKey               *bigIntJSON            `json:"c_key,omitempty"`
	PDLDecommit        []byte                 `json:"pdl_decommit,omitempty"`
	Alpha              *bigIntJSON            `json:"alpha,omitempty"`
	Party2PDLFirstMsg  []byte                 `json:"party2_pdl_first_msg,omitempty"`
	MasterKeyAssembled bool                   `json:"master_key_assembled"`
	Complete           bool                   `json:"complete"`
	EphK1              *bigIntJSON            `json:"eph_k1,omitempty"`
	EphR1              pointJSON              `json:"eph_r1,omitempty"`
	EphReady           bool                   `json:"eph_ready"`
}

func ecdsaSessionJSONFrom(s *ecdsa2p.Session) ecdsaSessionJSON {
	j := ecdsaSessionJSON{
		CommWitness:        s.CommWitness,
		X1:                 bigIntJSONFrom(s.X1),
		P1:                 pointJSONFrom(s.P1),
		Party2Public:       pointJSONFrom(s.Party2Public),
		CKey:               bigIntJSONFrom(s.CKey),
		PDLDecommit:        s.PDLDecommit,
		Alpha:              bigIntJSONFrom(s.Alpha),
		Party2PDLFirstMsg:  s.Party2PDLFirstMsg,
		MasterKeyAssembled: s.MasterKeyAssembled,
		Complete:           s.Complete,
		EphK1:              bigIntJSONFrom(s.EphK1),
		EphR1:              pointJSONFrom(s.EphR1),
		EphReady:           s.EphReady,
	}
	if s.Paillier != nil {
		j.Paillier = s.Paillier.Priv
	}
	return j
}

func (j *ecdsaSessionJSON) toSession(userID string) *ecdsa2p.Session {
	s := &ecdsa2p.Session{
		UserID:             userID,
		CommWitness:        j.CommWitness,
		X1:                 j.X1.toBigInt(),
		P1:                 j.P1.toPoint(),
		Party2Public:       j.Party2Public.toPoint(),
		CKey:               j.CKey.toBigInt(),
		PDLDecommit:        j.PDLDecommit,
		Alpha:              j.Alpha.toBigInt(),
		Party2PDLFirstMsg:  j.Party2PDLFirstMsg,
		MasterKeyAssembled: j.MasterKeyAssembled,
		Complete:           j.Complete,
		EphK1:              j.EphK1.toBigInt(),
		EphR1:              j.EphR1.toPoint(),
		EphReady:           j.EphReady,
	}
	if j.Paillier != nil {
		s.Paillier = &ecdsa2p.PaillierKeyPair{Priv: j.Paillier}
	}
	return s
}
