// Package server implements the StateChain Entity's HTTP façade (§6):
// one route per RPC the protocol exposes, plus the health and metrics
// endpoints the ambient stack adds. Handlers are thin — all protocol
// logic lives in pkg/ecdsa2p, pkg/deposit, pkg/transfer,
// pkg/transferbatch, and pkg/withdraw; this package only decodes
// requests, calls an engine, and encodes the result.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/statechain-entity/pkg/anchoring"
	"github.com/certen/statechain-entity/pkg/config"
	"github.com/certen/statechain-entity/pkg/deposit"
	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/store"
	"github.com/certen/statechain-entity/pkg/transfer"
	"github.com/certen/statechain-entity/pkg/transferbatch"
	"github.com/certen/statechain-entity/pkg/withdraw"
)

// Server holds every engine the façade dispatches to, plus the metrics
// this package exposes on /metrics (§10.2).
type Server struct {
	Store      store.StateStore
	Config     *config.Config
	Ecdsa      *ecdsa2p.Engine
	Deposit    *deposit.Engine
	Transfer   *transfer.Engine
	Batch      *transferbatch.Engine
	Withdraw   *withdraw.Engine
	Anchoring  *anchoring.Scheduler
	Logger     *log.Logger

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New wires a Server from its constituent engines. logger defaults to
// the standard library logger with an "[sce]" prefix, matching the
// teacher's per-component logger convention.
func New(
	s store.StateStore,
	cfg *config.Config,
	ecdsaEngine *ecdsa2p.Engine,
	depositEngine *deposit.Engine,
	transferEngine *transfer.Engine,
	batchEngine *transferbatch.Engine,
	withdrawEngine *withdraw.Engine,
	anchorScheduler *anchoring.Scheduler,
	logger *log.Logger,
) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[sce] ", log.LstdFlags)
	}
	return &Server{
		Store:     s,
		Config:    cfg,
		Ecdsa:     ecdsaEngine,
		Deposit:   depositEngine,
		Transfer:  transferEngine,
		Batch:     batchEngine,
		Withdraw:  withdrawEngine,
		Anchoring: anchorScheduler,
		Logger:    logger,
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sce_http_requests_total",
			Help: "Total HTTP requests handled, by route and outcome.",
		}, []string{"route", "outcome"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sce_http_request_duration_seconds",
			Help:    "HTTP request handling latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Router builds the full route table of §6, plus the health and
// metrics endpoints of §10.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/statechain/", s.instrument("statechain", s.handleGetStateChain))
	mux.HandleFunc("/api/root", s.instrument("root", s.handleGetRoot))
	mux.HandleFunc("/api/proof", s.instrument("proof", s.handleGetProof))
	mux.HandleFunc("/api/info/fee", s.instrument("info_fee", s.handleInfoFee))
	mux.HandleFunc("/api/recover/", s.instrument("recover", s.handleRecover))

	mux.HandleFunc("/ecdsa/keygen/first", s.instrument("keygen_first", s.handleKeygenFirst))
	mux.HandleFunc("/ecdsa/keygen/second", s.instrument("keygen_second", s.handleKeygenSecond))
	mux.HandleFunc("/ecdsa/keygen/third", s.instrument("keygen_third", s.handleKeygenThird))
	mux.HandleFunc("/ecdsa/keygen/fourth", s.instrument("keygen_fourth", s.handleKeygenFourth))
	mux.HandleFunc("/ecdsa/sign/first", s.instrument("sign_first", s.handleSignFirst))
	mux.HandleFunc("/ecdsa/sign/second", s.instrument("sign_second", s.handleSignSecond))

	mux.HandleFunc("/deposit/init", s.instrument("deposit_init", s.handleDepositInit))
	mux.HandleFunc("/prepare-sign", s.instrument("prepare_sign", s.handlePrepareSign))

	mux.HandleFunc("/transfer/sender", s.instrument("transfer_sender", s.handleTransferSender))
	mux.HandleFunc("/transfer/receiver", s.instrument("transfer_receiver", s.handleTransferReceiver))
	mux.HandleFunc("/transfer/batch/init", s.instrument("batch_init", s.handleBatchInit))
	mux.HandleFunc("/transfer/batch/reveal", s.instrument("batch_reveal", s.handleBatchReveal))
	mux.HandleFunc("/transfer/batch/status", s.instrument("batch_status", s.handleBatchStatus))

	mux.HandleFunc("/withdraw/init", s.instrument("withdraw_init", s.handleWithdrawInit))
	mux.HandleFunc("/withdraw/prepare-sign", s.instrument("withdraw_prepare_sign", s.handleWithdrawPrepareSign))
	mux.HandleFunc("/withdraw/confirm", s.instrument("withdraw_confirm", s.handleWithdrawConfirm))

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// instrument wraps a handler with the per-route request counter and
// latency histogram, the same observability seam the teacher's anchor
// scheduler uses for its own batch-cycle metrics.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		outcome := "ok"
		if rec.status >= 400 {
			outcome = "error"
		}
		s.requests.WithLabelValues(route, outcome).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handleHealthz reports liveness only: the process is up and serving.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports readiness: the StateStore must be reachable.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Printf("encode response: %v", err)
	}
}

// writeError writes a {"error": {"code", "message"}} envelope with the
// given HTTP status and the caller's code and message strings. It is
// used for request-level failures; engine errors go through writeErr.
func (s *Server) writeError(w http.ResponseWriter, fallbackStatus int, code, message string) {
	s.writeJSON(w, fallbackStatus, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
