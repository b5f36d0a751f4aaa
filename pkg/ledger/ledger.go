// Package ledger implements the append-only statechain ledger of
// SPEC_FULL.md §4.6: a per-UTXO ordered list of (purpose, data, sig)
// entries, each verified against the previous entry's data as a public
// key. The teacher's own pkg/ledger is an Accumulate-chain block
// ledger; only the append-only, signature-chained shape carries over —
// the field set here is rewritten entirely for statechain entries.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/sceerr"
)

// Purpose is the kind of ownership transition an Entry records.
type Purpose string

const (
	PurposeTransfer Purpose = "TRANSFER"
	PurposeWithdraw Purpose = "WITHDRAW"
)

// Entry is a single StateChainEntry (§3).
type Entry struct {
	Purpose Purpose
	Data    string // next proof key hex, or withdraw address
	Sig     []byte // DER signature by the *current* owner's proof key
}

// digest computes sha256(purpose || data), the exact message every
// entry's signature is taken over (§4.6).
func (e *Entry) digest() []byte {
	h := sha256.New()
	h.Write([]byte(e.Purpose))
	h.Write([]byte(e.Data))
	return h.Sum(nil)
}

// Chain is the ordered, append-only sequence backing StateChain.chain.
type Chain struct {
	Entries []Entry
}

// Append validates entry's signature against the current tip's Data
// (parsed as a compressed secp256k1 public key) over
// sha256(purpose||data), per invariant I1, then appends it. The first
// entry of an empty chain is appended without any signature check,
// since there is no prior tip to verify against; its Sig is not
// examined.
func (c *Chain) Append(entry Entry) error {
	if len(c.Entries) > 0 {
		if err := VerifyNext(c.Entries[len(c.Entries)-1], entry); err != nil {
			return err
		}
	}
	c.Entries = append(c.Entries, entry)
	return nil
}

// VerifyNext checks invariant I1 for one candidate next entry against
// an existing tip, without mutating any chain. pkg/withdraw's
// withdraw_init stages a WITHDRAW entry's signature this way before
// committing it in withdraw_confirm's later Append call.
func VerifyNext(tip Entry, entry Entry) error {
	if tip.Purpose == PurposeWithdraw {
		// A WITHDRAW entry's Data is the payout address, not a proof
		// key: the chain has no current owner left to sign against
		// once it withdraws, so there is no owner for entry to match.
		return ErrPrevOwnerMismatch
	}
	pub, err := parseHexPoint(tip.Data)
	if err != nil {
		// tip.Data holds the previous owner's key as hex in the
		// in-memory Chain as well as in the persisted representation;
		// parseHexPoint decodes it here, and a failure means the tip
		// does not hold a valid hex-encoded point.
		return sceerr.Protocol(fmt.Sprintf("cannot parse previous owner key: %v", err))
	}
	if !ecdsa2p.Verify(pub, entry.digest(), entry.Sig) {
		return ErrSigInvalid
	}
	return nil
}

// parseHexPoint decodes a hex-encoded SEC1 point, the storage and wire
// encoding for StateChainEntry.data when it names the next proof key.
func parseHexPoint(data string) (*ecdsa2p.Point, error) {
	b, err := hex.DecodeString(data)
	if err != nil {
		return nil, err
	}
	return ecdsa2p.ParsePoint(b)
}

// Tip returns the most recent entry, or nil if the chain is empty.
func (c *Chain) Tip() *Entry {
	if len(c.Entries) == 0 {
		return nil
	}
	return &c.Entries[len(c.Entries)-1]
}

// Verify checks property P1 over the whole chain: every adjacent pair
// (c[i], c[i+1]) verifies under c[i].Data.
func Verify(entries []Entry) error {
	for i := 0; i+1 < len(entries); i++ {
		if entries[i].Purpose == PurposeWithdraw {
			return fmt.Errorf("entry %d: %w", i+1, ErrPrevOwnerMismatch)
		}
		pub, err := parseHexPoint(entries[i].Data)
		if err != nil {
			return sceerr.Protocol(fmt.Sprintf("entry %d: cannot parse owner key: %v", i, err))
		}
		next := entries[i+1]
		if !ecdsa2p.Verify(pub, next.digest(), next.Sig) {
			return fmt.Errorf("entry %d: %w", i+1, ErrSigInvalid)
		}
	}
	return nil
}
