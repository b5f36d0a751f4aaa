package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/txvalidate"
)

// handleWithdrawInit handles POST /withdraw/init: withdraw_init (§4.5)
// stages the owner's signed WITHDRAW entry against the current tip
// without committing it.
func (s *Server) handleWithdrawInit(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Auth    string    `json:"auth"`
		UserID  uuid.UUID `json:"user_id"`
		Address string    `json:"address"`
		Sig     []byte    `json:"sig"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.Withdraw.Init(r.Context(), req.Auth, req.UserID, req.Address, req.Sig); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// handleWithdrawPrepareSign handles POST /withdraw/prepare-sign: a
// thin convenience alias for /prepare-sign with protocol=WITHDRAW,
// kept as its own route because withdraw is the one flow a client may
// reach for without ever having called the unified endpoint.
func (s *Server) handleWithdrawPrepareSign(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id"`
		Tx     []byte    `json:"tx"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.Withdraw.PrepareSignWithdraw(r.Context(), req.UserID, req.Tx); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// handleWithdrawConfirm handles POST /withdraw/confirm: withdraw_confirm
// (§4.5) commits the staged entry, zeroes the state chain, and returns
// the confirmed withdraw transaction's txid -- broadcasting it is left
// to the client, which already holds the signed tx from prepare-sign
// (this entity never broadcasts on a client's behalf, §2 Non-goals).
func (s *Server) handleWithdrawConfirm(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	rawTx, err := s.Withdraw.Confirm(r.Context(), req.UserID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	tx, err := txvalidate.Parse(rawTx)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"txid": tx.TxHash().String(),
	})
}
