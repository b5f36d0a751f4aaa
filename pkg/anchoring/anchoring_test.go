package anchoring

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/certen/statechain-entity/pkg/store"
	"github.com/certen/statechain-entity/pkg/store/memstore"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

func TestSubmitLatest_SkipsAlreadyConfirmedRoot(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	hash := [32]byte{1, 2, 3}
	if _, err := s.AppendRoot(ctx, hash); err != nil {
		t.Fatalf("append root: %v", err)
	}
	if err := s.SetRootCommitment(ctx, hash, store.CommitmentInfo{Commitment: "c"}); err != nil {
		t.Fatalf("set commitment: %v", err)
	}

	submitter := NewMockSubmitter()
	sched := New(s, submitter, DefaultConfig(), testLogger())
	if err := sched.submitLatest(ctx); err != nil {
		t.Fatalf("submitLatest: %v", err)
	}
	if len(submitter.submitted) != 0 {
		t.Fatalf("expected no submission for an already-confirmed root")
	}
}

func TestSubmitLatest_SubmitsOnceForUnconfirmedRoot(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	hash := [32]byte{9, 9, 9}
	if _, err := s.AppendRoot(ctx, hash); err != nil {
		t.Fatalf("append root: %v", err)
	}

	submitter := NewMockSubmitter()
	sched := New(s, submitter, DefaultConfig(), testLogger())
	if err := sched.submitLatest(ctx); err != nil {
		t.Fatalf("submitLatest: %v", err)
	}
	if err := sched.submitLatest(ctx); err != nil {
		t.Fatalf("submitLatest (second call): %v", err)
	}
	if len(submitter.submitted) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(submitter.submitted))
	}
}

func TestPollConfirmations_FillsCommitmentInfoOnMatch(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	hash := [32]byte{7, 7, 7}
	if _, err := s.AppendRoot(ctx, hash); err != nil {
		t.Fatalf("append root: %v", err)
	}

	submitter := NewMockSubmitter()
	sched := New(s, submitter, DefaultConfig(), testLogger())
	if err := sched.submitLatest(ctx); err != nil {
		t.Fatalf("submitLatest: %v", err)
	}
	if err := sched.pollConfirmations(ctx); err != nil {
		t.Fatalf("pollConfirmations: %v", err)
	}

	root, err := s.LatestConfirmedRoot(ctx)
	if err != nil {
		t.Fatalf("latest confirmed root: %v", err)
	}
	if root.Hash != hash {
		t.Fatalf("expected confirmed root to be %x, got %x", hash, root.Hash)
	}

	unconfirmed, err := s.UnconfirmedRoots(ctx)
	if err != nil {
		t.Fatalf("unconfirmed roots: %v", err)
	}
	if len(unconfirmed) != 0 {
		t.Fatalf("expected no unconfirmed roots left, got %d", len(unconfirmed))
	}
	sched.mu.Lock()
	pendingLeft := len(sched.pending)
	sched.mu.Unlock()
	if pendingLeft != 0 {
		t.Fatalf("expected confirmed receipt to be forgotten, got %d still pending", pendingLeft)
	}
}

func TestPollConfirmations_LeavesUnmatchedReceiptPending(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	hash := [32]byte{5, 5, 5}
	if _, err := s.AppendRoot(ctx, hash); err != nil {
		t.Fatalf("append root: %v", err)
	}

	submitter := NewMockSubmitter()
	submitter.ConfirmAfter = time.Hour
	sched := New(s, submitter, DefaultConfig(), testLogger())
	if err := sched.submitLatest(ctx); err != nil {
		t.Fatalf("submitLatest: %v", err)
	}
	if err := sched.pollConfirmations(ctx); err != nil {
		t.Fatalf("pollConfirmations: %v", err)
	}

	unconfirmed, err := s.UnconfirmedRoots(ctx)
	if err != nil {
		t.Fatalf("unconfirmed roots: %v", err)
	}
	if len(unconfirmed) != 1 {
		t.Fatalf("expected root to remain unconfirmed, got %d", len(unconfirmed))
	}
}
