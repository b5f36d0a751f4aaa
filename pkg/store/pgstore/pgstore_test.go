package pgstore

import (
	"context"
	"os"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/config"
	"github.com/certen/statechain-entity/pkg/store"
)

// Postgres integration tests only run against a real database,
// mirroring pkg/database/proof_artifact_repository_test.go's
// TestMain-gated pattern: skip entirely when no test DB is configured.
var testStore *Store

func TestMain(m *testing.M) {
	url := os.Getenv("SCE_TEST_DATABASE_URL")
	if url == "" {
		os.Exit(0)
	}

	cfg := &config.Config{
		DatabaseWriteURL:    url,
		DatabaseReadURL:     url,
		DatabaseMaxConns:    5,
		DatabaseMinConns:    1,
		DatabaseMaxIdleTime: 60,
		DatabaseMaxLifetime: 300,
	}
	client, err := NewClient(cfg)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	if err := client.MigrateUp(context.Background()); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}
	testStore = New(client, dbm.NewMemDB())

	code := m.Run()
	client.Close()
	os.Exit(code)
}

func TestUserSession_PutGetRoundTrip(t *testing.T) {
	if testStore == nil {
		t.Skip("test database not configured (set SCE_TEST_DATABASE_URL)")
	}
	ctx := context.Background()

	id := uuid.New()
	in := &store.UserSession{ID: id, Auth: "token-abc", ProofKey: []byte{0x02, 0x01, 0x02, 0x03}}
	if err := testStore.PutUserSession(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, err := testStore.GetUserSession(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Auth != in.Auth {
		t.Fatalf("expected auth %q, got %q", in.Auth, out.Auth)
	}
}

func TestRoot_AppendAndConfirm(t *testing.T) {
	if testStore == nil {
		t.Skip("test database not configured (set SCE_TEST_DATABASE_URL)")
	}
	ctx := context.Background()

	var hash [32]byte
	hash[0] = 0xAB
	r, err := testStore.AppendRoot(ctx, hash)
	if err != nil {
		t.Fatalf("append root: %v", err)
	}

	if _, err := testStore.LatestConfirmedRoot(ctx); err != store.ErrRootNotFound {
		t.Fatalf("expected no confirmed root yet, got %v", err)
	}

	if err := testStore.SetRootCommitment(ctx, r.Hash, store.CommitmentInfo{Commitment: "c1"}); err != nil {
		t.Fatalf("set commitment: %v", err)
	}

	confirmed, err := testStore.LatestConfirmedRoot(ctx)
	if err != nil {
		t.Fatalf("latest confirmed: %v", err)
	}
	if confirmed.ID != r.ID {
		t.Fatalf("expected confirmed root id %d, got %d", r.ID, confirmed.ID)
	}
}
