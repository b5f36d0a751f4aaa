package smt

import (
	"bytes"
	"crypto/sha256"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	return New(NewKVStore(dbm.NewMemDB()))
}

func keyFor(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

func TestInsert_UpdatesRoot(t *testing.T) {
	tree := newTestTree(t)
	k := keyFor("funding-txid-1")

	prev, next, err := tree.Insert(k, []byte("owner-A"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if prev == next {
		t.Fatalf("expected root to change on first insert into an empty tree")
	}

	root, err := tree.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if root != next {
		t.Fatalf("Root() should reflect the most recent Insert's newRoot")
	}
}

func TestInsert_IdempotentOnUnchangedValue(t *testing.T) {
	tree := newTestTree(t)
	k := keyFor("funding-txid-2")

	_, first, err := tree.Insert(k, []byte("owner-A"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	prev, next, err := tree.Insert(k, []byte("owner-A"))
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if prev != first || next != first {
		t.Fatalf("re-inserting the same value should be a no-op on the root")
	}
}

func TestProve_PropertyP3_InclusionAndExclusion(t *testing.T) {
	tree := newTestTree(t)
	present := keyFor("funding-txid-present")
	absent := keyFor("funding-txid-absent")

	_, root, err := tree.Insert(present, []byte("owner-A"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	incProof, err := tree.Prove(present)
	if err != nil {
		t.Fatalf("prove present: %v", err)
	}
	if !Verify(root, present, incProof) {
		t.Fatalf("expected inclusion proof to verify")
	}
	if incProof.Value == nil || !bytes.Equal(incProof.Value, []byte("owner-A")) {
		t.Fatalf("expected inclusion proof to carry the stored value")
	}

	excProof, err := tree.Prove(absent)
	if err != nil {
		t.Fatalf("prove absent: %v", err)
	}
	if !Verify(root, absent, excProof) {
		t.Fatalf("expected exclusion proof to verify for an absent key")
	}
	if excProof.Value != nil {
		t.Fatalf("expected exclusion proof to carry a nil value")
	}
}

func TestVerify_RejectsTamperedProof(t *testing.T) {
	tree := newTestTree(t)
	k := keyFor("funding-txid-3")
	_, root, err := tree.Insert(k, []byte("owner-A"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	proof, err := tree.Prove(k)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	proof.Siblings[0] = append([]byte(nil), proof.Siblings[0]...)
	proof.Siblings[0][0] ^= 0xFF

	if Verify(root, k, proof) {
		t.Fatalf("expected tampered proof to fail verification")
	}
}

func TestInsert_PropertyP4_MultipleKeysShareStructure(t *testing.T) {
	tree := newTestTree(t)
	keyA := keyFor("funding-txid-a")
	keyB := keyFor("funding-txid-b")

	_, rootAfterA, err := tree.Insert(keyA, []byte("owner-A"))
	if err != nil {
		t.Fatalf("insert A: %v", err)
	}
	_, rootAfterB, err := tree.Insert(keyB, []byte("owner-B"))
	if err != nil {
		t.Fatalf("insert B: %v", err)
	}
	if rootAfterA == rootAfterB {
		t.Fatalf("root must change after a second distinct key is inserted")
	}

	proofA, err := tree.Prove(keyA)
	if err != nil {
		t.Fatalf("prove A: %v", err)
	}
	if !Verify(rootAfterB, keyA, proofA) {
		t.Fatalf("earlier key's inclusion proof must still verify against the latest root")
	}
}
