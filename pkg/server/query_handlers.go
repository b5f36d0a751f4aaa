package server

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/smt"
	"github.com/certen/statechain-entity/pkg/store"
)

// handleGetStateChain handles POST /api/statechain/{id}: a public,
// unauthenticated read of a state chain's amount, owner_id and full
// signature chain -- anyone can audit the ledger (§4.6). No funding
// UTXO is returned; StateChain does not store one.
func (s *Server) handleGetStateChain(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := parseTrailingID(w, r, "/api/statechain/")
	if !ok {
		return
	}
	sc, err := s.Store.GetStateChain(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"amount":   sc.Amount,
		"owner_id": sc.OwnerID,
		"chain":    sc.Chain.Entries,
	})
}

// handleGetRoot handles POST /api/root: returns the latest confirmed
// SMT root, or null if the anchoring adapter has not confirmed one yet
// (§4.7, §4.8).
func (s *Server) handleGetRoot(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	root, err := s.Store.LatestConfirmedRoot(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrRootNotFound) {
			s.writeJSON(w, http.StatusOK, nil)
			return
		}
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hex.EncodeToString(root.Hash[:]))
}

// handleGetProof handles POST /api/proof: returns an SMT inclusion
// (or exclusion) proof for the state chain a funding_txid names,
// against the tree's current state only; the request has no root field
// and historical roots are not supported.
func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		FundingStateChainID uuid.UUID `json:"funding_txid"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	tree := smt.New(s.Store)
	proof, err := tree.Prove(smtKeyForStateChain(req.FundingStateChainID))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, proof)
}

// handleInfoFee handles POST /api/info/fee: publishes the entity's fee
// address and current deposit/withdraw fee schedule so clients can
// build compliant transactions before ever calling prepare-sign.
func (s *Server) handleInfoFee(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":  s.Config.FeeAddress,
		"deposit":  s.Config.FeeDepositSats,
		"withdraw": s.Config.FeeWithdrawSats,
	})
}

// handleRecover handles POST /api/recover/{user_id}: SPEC_FULL.md's
// supplemented recovery route -- a client that lost local state reads
// back its StateChain ownership and any in-flight TransferData so it
// can resume or discover it owns nothing.
func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID, ok := parseTrailingID(w, r, "/api/recover/")
	if !ok {
		return
	}
	sess, err := s.Store.GetUserSession(r.Context(), userID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	resp := map[string]interface{}{}
	if sess.StateChainID != nil {
		sc, err := s.Store.GetStateChain(r.Context(), *sess.StateChainID)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		resp["state_chain"] = map[string]interface{}{
			"id":       sc.ID,
			"amount":   sc.Amount,
			"owner_id": sc.OwnerID,
			"chain":    sc.Chain.Entries,
		}
		if td, err := s.Store.GetTransferData(r.Context(), *sess.StateChainID); err == nil {
			resp["transfer_data"] = td
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// parseTrailingID extracts the path segment after prefix and parses it
// as a uuid, writing a 400 response and returning ok=false on failure.
func parseTrailingID(w http.ResponseWriter, r *http.Request, prefix string) (uuid.UUID, bool) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	id, err := uuid.Parse(raw)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		http.Error(w, `{"error":{"code":"INVALID_REQUEST","message":"path must end in a uuid"}}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// smtKeyForStateChain mirrors the same derivation pkg/deposit,
// pkg/transfer, and pkg/withdraw use to key a state chain's SMT leaf.
func smtKeyForStateChain(id uuid.UUID) [32]byte {
	var key [32]byte
	copy(key[:16], id[:])
	return key
}
