package server

import (
	"math/big"
	"net/http"

	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/ledger"
	"github.com/certen/statechain-entity/pkg/transfer"
)

// handleTransferSender handles POST /transfer/sender: transfer_sender
// (§4.3) — the current owner authorizes the handoff and gets back x1
// ECIES-encrypted to its own proof key.
func (s *Server) handleTransferSender(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Auth          string      `json:"auth"`
		SharedKeyID   uuid.UUID   `json:"shared_key_id"`
		StateChainSig ledger.Entry `json:"state_chain_sig"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	result, err := s.Transfer.Sender(r.Context(), req.Auth, transfer.TransferMsg1{
		SharedKeyID:   req.SharedKeyID,
		StateChainSig: req.StateChainSig,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleTransferReceiver handles POST /transfer/receiver:
// transfer_receiver (§4.3). If the request carries batch_data it is
// routed through the batch engine (§4.4) instead of finalizing
// immediately.
func (s *Server) handleTransferReceiver(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req transferReceiverRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	msg4 := req.toMsg4()

	if msg4.BatchData != nil {
		result, err := s.Batch.Receive(r.Context(), msg4)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
		return
	}

	result, _, err := s.Transfer.Receiver(r.Context(), msg4)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type transferReceiverRequest struct {
	SharedKeyID   uuid.UUID      `json:"shared_key_id"`
	StateChainID  uuid.UUID      `json:"state_chain_id"`
	T2            *big.Int       `json:"t2"`
	StateChainSig ledger.Entry   `json:"state_chain_sig"`
	O2Pub         *ecdsa2p.Point `json:"o2_pub"`
	TxBackup      []byte         `json:"tx_backup"`
	BatchID       *uuid.UUID     `json:"batch_id,omitempty"`
	Commitment    string         `json:"commitment,omitempty"`
}

func (req *transferReceiverRequest) toMsg4() transfer.TransferMsg4 {
	msg4 := transfer.TransferMsg4{
		SharedKeyID:   req.SharedKeyID,
		StateChainID:  req.StateChainID,
		T2:            req.T2,
		StateChainSig: req.StateChainSig,
		O2Pub:         req.O2Pub,
		TxBackup:      req.TxBackup,
	}
	if req.BatchID != nil {
		msg4.BatchData = &transfer.BatchData{ID: *req.BatchID, Commitment: req.Commitment}
	}
	return msg4
}

// handleBatchInit handles POST /transfer/batch/init: batch_init (§4.4)
// opens a TransferBatch enrolling the given state chains.
func (s *Server) handleBatchInit(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		BatchID       uuid.UUID   `json:"batch_id"`
		StateChainIDs []uuid.UUID `json:"state_chain_ids"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.Batch.Initiate(r.Context(), req.BatchID, req.StateChainIDs); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// handleBatchReveal handles POST /transfer/batch/reveal: attempts
// batch_reveal (§4.4) for a batch the client believes is fully
// enrolled; a batch still waiting on participants comes back as an
// Incomplete error rather than a timeout.
func (s *Server) handleBatchReveal(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		BatchID uuid.UUID `json:"batch_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.Batch.Reveal(r.Context(), req.BatchID); err != nil {
		s.writeErr(w, err)
		return
	}
	// Reveal only returns nil once revealLocked has set Finalized, so a
	// successful call always means finalized==true.
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"finalized": true})
}

// handleBatchStatus handles GET /transfer/batch/status?batch_id=...:
// polls a batch's current lifecycle state.
func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, err := uuid.Parse(r.URL.Query().Get("batch_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "batch_id must be a uuid")
		return
	}
	info, err := s.Batch.Status(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}
