package memstore

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/store"
)

func TestUserSession_PutGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := uuid.New()

	if err := s.PutUserSession(ctx, &store.UserSession{ID: id, Auth: "tok"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.GetUserSession(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Auth != "tok" {
		t.Fatalf("expected auth 'tok', got %q", got.Auth)
	}

	if _, err := s.GetUserSession(ctx, uuid.New()); err != store.ErrUserSessionNotFound {
		t.Fatalf("expected ErrUserSessionNotFound, got %v", err)
	}
}

func TestTransferData_InvariantI4_OneAtATime(t *testing.T) {
	s := New()
	ctx := context.Background()
	scID := uuid.New()

	if err := s.PutTransferData(ctx, &store.TransferData{StateChainID: scID}); err != nil {
		t.Fatalf("first transfer data: %v", err)
	}
	if err := s.PutTransferData(ctx, &store.TransferData{StateChainID: scID}); err != store.ErrTransferDataExists {
		t.Fatalf("expected ErrTransferDataExists, got %v", err)
	}

	if err := s.DeleteTransferData(ctx, scID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.PutTransferData(ctx, &store.TransferData{StateChainID: scID}); err != nil {
		t.Fatalf("re-insert after delete: %v", err)
	}
}

func TestTransferData_CompleteMarksCompletedWithoutConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	scID := uuid.New()

	if err := s.PutTransferData(ctx, &store.TransferData{StateChainID: scID}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.CompleteTransferData(ctx, scID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := s.GetTransferData(ctx, scID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Completed {
		t.Fatalf("expected Completed=true after CompleteTransferData")
	}

	if err := s.CompleteTransferData(ctx, uuid.New()); err != store.ErrTransferDataNotFound {
		t.Fatalf("expected ErrTransferDataNotFound for unknown id, got %v", err)
	}
}

func TestRoot_MonotoneAppendAndLatestConfirmed(t *testing.T) {
	s := New()
	ctx := context.Background()

	h1 := sha256.Sum256([]byte("root-1"))
	h2 := sha256.Sum256([]byte("root-2"))

	r1, err := s.AppendRoot(ctx, h1)
	if err != nil {
		t.Fatalf("append root 1: %v", err)
	}
	r2, err := s.AppendRoot(ctx, h2)
	if err != nil {
		t.Fatalf("append root 2: %v", err)
	}
	if r2.ID <= r1.ID {
		t.Fatalf("expected strictly increasing root ids, got %d then %d", r1.ID, r2.ID)
	}

	if _, err := s.LatestConfirmedRoot(ctx); err != store.ErrRootNotFound {
		t.Fatalf("expected no confirmed root yet, got %v", err)
	}

	if err := s.SetRootCommitment(ctx, h1, store.CommitmentInfo{Commitment: "c1"}); err != nil {
		t.Fatalf("set commitment: %v", err)
	}
	confirmed, err := s.LatestConfirmedRoot(ctx)
	if err != nil {
		t.Fatalf("latest confirmed: %v", err)
	}
	if confirmed.ID != r1.ID {
		t.Fatalf("expected confirmed root to be id %d, got %d", r1.ID, confirmed.ID)
	}
}

func TestEcdsaSession_SatisfiesSessionStore(t *testing.T) {
	s := New()
	var _ ecdsa2p.SessionStore = s

	sess := &ecdsa2p.Session{UserID: "user-1", Complete: true}
	if err := s.PutEcdsaSession(sess); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.GetEcdsaSession("user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Complete {
		t.Fatalf("expected Complete=true to round-trip")
	}
}

func TestWithTx_RunsDirectly(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := uuid.New()

	err := s.WithTx(ctx, func(ctx context.Context, tx store.StateStore) error {
		return tx.PutUserSession(ctx, &store.UserSession{ID: id, Auth: "in-tx"})
	})
	if err != nil {
		t.Fatalf("withtx: %v", err)
	}
	got, err := s.GetUserSession(ctx, id)
	if err != nil {
		t.Fatalf("get after withtx: %v", err)
	}
	if got.Auth != "in-tx" {
		t.Fatalf("expected write made inside WithTx to be visible, got %q", got.Auth)
	}
}
