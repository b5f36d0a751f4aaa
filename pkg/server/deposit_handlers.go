package server

import (
	"net/http"

	"github.com/google/uuid"
)

// handleDepositInit handles POST /deposit/init: §4.2 step 1 — validate
// the client's proof_key and open a fresh UserSession. The request's
// `auth` field is accepted for wire compatibility with the verbatim
// route table but unused: the entity mints its own auth token rather
// than trusting a client-supplied one, returning it in the response
// for the client to present on every later call.
func (s *Server) handleDepositInit(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Auth     string `json:"auth"`
		ProofKey []byte `json:"proof_key"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.Deposit.Init(r.Context(), req.ProofKey)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": sess.ID,
		"auth":    sess.Auth,
	})
}

// handlePrepareSign handles POST /prepare-sign: validates a
// client-submitted transaction against the flow named by `protocol`
// before it gets co-signed. "BACKUP" stages a deposit's backup
// transaction (§4.2); "WITHDRAW" stages a withdraw transaction (§4.5).
func (s *Server) handlePrepareSign(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UserID   uuid.UUID `json:"user_id"`
		Protocol string    `json:"protocol"`
		Tx       []byte    `json:"tx"`
		Amount   int64     `json:"amount"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	switch req.Protocol {
	case "BACKUP":
		if err := s.Deposit.PrepareSignBackup(r.Context(), req.UserID, req.Tx, req.Amount); err != nil {
			s.writeErr(w, err)
			return
		}
	case "WITHDRAW":
		if err := s.Withdraw.PrepareSignWithdraw(r.Context(), req.UserID, req.Tx); err != nil {
			s.writeErr(w, err)
			return
		}
	default:
		s.writeError(w, http.StatusBadRequest, "INVALID_PROTOCOL", "protocol must be BACKUP or WITHDRAW")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{})
}
