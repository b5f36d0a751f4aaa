package server

import (
	"math/big"
	"net/http"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
)

// handleKeygenFirst handles POST /ecdsa/keygen/first: §4.1 "Keygen
// msg 1" — sample x1, return a commitment to P1.
func (s *Server) handleKeygenFirst(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	result, err := s.Ecdsa.KeygenFirst(req.UserID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleKeygenSecond handles POST /ecdsa/keygen/second: the client
// reveals P2 and its DL proof; §4.1 requires the proof checked before
// this call reaches the engine, so req.DLProofOK is the façade's own
// verdict on the client-supplied proof.
func (s *Server) handleKeygenSecond(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UserID    string         `json:"user_id"`
		P2        *ecdsa2p.Point `json:"p2"`
		Proof     *ecdsa2p.DLProof `json:"dl_proof"`
		DLProofOK bool           `json:"-"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	req.DLProofOK = ecdsa2p.VerifyDLProof(req.P2, req.Proof)
	result, err := s.Ecdsa.KeygenSecond(req.UserID, req.P2, req.DLProofOK)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleKeygenThird handles POST /ecdsa/keygen/third: PDL challenge
// exchange, §4.1 "Keygen msg 3".
func (s *Server) handleKeygenThird(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UserID            string   `json:"user_id"`
		PDLChallenge      *big.Int `json:"pdl_challenge"`
		Beta              *big.Int `json:"beta"`
		Party2PDLFirstMsg []byte   `json:"party2_pdl_first_msg"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	result, err := s.Ecdsa.KeygenThird(req.UserID, req.PDLChallenge, req.Beta, req.Party2PDLFirstMsg)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleKeygenFourth handles POST /ecdsa/keygen/fourth: opens alpha,
// completes the session, §4.1 "Keygen msg 4".
func (s *Server) handleKeygenFourth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	result, err := s.Ecdsa.KeygenFourth(req.UserID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleSignFirst handles POST /ecdsa/sign/first: ephemeral R1.
func (s *Server) handleSignFirst(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	result, err := s.Ecdsa.SignFirst(req.UserID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleSignSecond handles POST /ecdsa/sign/second: completes the
// signature from the client's Paillier ciphertext c3.
func (s *Server) handleSignSecond(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UserID string   `json:"user_id"`
		C3     *big.Int `json:"c3"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	result, err := s.Ecdsa.SignSecond(req.UserID, req.C3)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
