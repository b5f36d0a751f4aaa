package anchoring

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/certen/statechain-entity/pkg/store"
)

// Config controls the two ticker loops Scheduler runs.
type Config struct {
	// SubmitInterval is how often the scheduler checks for a new,
	// unsubmitted root and hands it to the Submitter. Defaults to 15
	// minutes, matching the teacher's on-cadence anchor tier.
	SubmitInterval time.Duration

	// ConfirmInterval is how often the confirmer polls outstanding
	// receipts for confirmation.
	ConfirmInterval time.Duration
}

// DefaultConfig mirrors the teacher's DefaultSchedulerConfig cadence
// for the on_cadence anchor tier (15 minutes), with a tighter
// confirmation poll since that step is cheap read-only chain RPC.
func DefaultConfig() Config {
	return Config{
		SubmitInterval:  15 * time.Minute,
		ConfirmInterval: 30 * time.Second,
	}
}

// Scheduler runs the background anchoring loops named in §4.8: submit
// periodically picks up the newest root that hasn't been handed to the
// Submitter yet, and confirm polls every outstanding receipt until the
// Submitter reports it landed.
type Scheduler struct {
	store     store.StateStore
	submitter Submitter
	cfg       Config
	log       *log.Logger

	mu      sync.Mutex
	pending map[[32]byte]Receipt // root hash -> outstanding receipt
	stop    chan struct{}
}

func New(s store.StateStore, submitter Submitter, cfg Config, logger *log.Logger) *Scheduler {
	if cfg.SubmitInterval <= 0 || cfg.ConfirmInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		store:     s,
		submitter: submitter,
		cfg:       cfg,
		log:       logger,
		pending:   make(map[[32]byte]Receipt),
		stop:      make(chan struct{}),
	}
}

// Start launches the submit and confirm loops as background
// goroutines. It returns immediately; callers stop it via ctx
// cancellation or Stop.
func (s *Scheduler) Start(ctx context.Context) {
	go s.submitLoop(ctx)
	go s.confirmLoop(ctx)
}

// Stop signals both loops to return. Safe to call once.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) submitLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SubmitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.submitLatest(ctx); err != nil {
				s.log.Printf("[anchor] submit: %v", err)
			}
		}
	}
}

func (s *Scheduler) confirmLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ConfirmInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.pollConfirmations(ctx); err != nil {
				s.log.Printf("[anchor] confirm: %v", err)
			}
		}
	}
}

// submitLatest hands the newest unconfirmed root to the Submitter, if
// it hasn't already been submitted this process's lifetime. Receipts
// are held only in the in-memory pending map, and confirmOutstanding
// skips any unconfirmed root without a receipt there. After a restart
// only the root LatestRoot returns is submitted again; older roots left
// unconfirmed before the restart are not resubmitted or polled.
func (s *Scheduler) submitLatest(ctx context.Context) error {
	root, err := s.store.LatestRoot(ctx)
	if err != nil {
		return err
	}
	if root == nil || root.CommitmentInfo != nil {
		return nil
	}

	s.mu.Lock()
	_, already := s.pending[root.Hash]
	s.mu.Unlock()
	if already {
		return nil
	}

	receipt, err := s.submitter.Submit(ctx, root.Hash)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pending[root.Hash] = receipt
	s.mu.Unlock()
	s.log.Printf("[anchor] submitted root %x, receipt %s", root.Hash, receipt.ID)
	return nil
}

func (s *Scheduler) pollConfirmations(ctx context.Context) error {
	return confirmOutstanding(ctx, s.store, s.submitter, s.trackedReceipts(), s.forget, s.log)
}

func (s *Scheduler) trackedReceipts() map[[32]byte]Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[[32]byte]Receipt, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

func (s *Scheduler) forget(hash [32]byte) {
	s.mu.Lock()
	delete(s.pending, hash)
	s.mu.Unlock()
}
