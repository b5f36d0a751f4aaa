package commitment

import (
	"bytes"
	"testing"
)

func TestCanonicalizeJSON_SortsKeys(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`{"b":1,"a":2}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := []byte(`{"a":2,"b":1}`)
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestCanonicalizeJSON_Idempotent(t *testing.T) {
	first, err := CanonicalizeJSON([]byte(`{"z":[3,2,1],"a":{"y":1,"x":2}}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	second, err := CanonicalizeJSON(first)
	if err != nil {
		t.Fatalf("canonicalize twice: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("canonicalization should be idempotent: %s vs %s", first, second)
	}
}

func TestMarshalCanonical_SameStructSameBytes(t *testing.T) {
	type pair struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	got, err := MarshalCanonical(pair{B: 1, A: 2})
	if err != nil {
		t.Fatalf("marshal canonical: %v", err)
	}
	want := []byte(`{"a":2,"b":1}`)
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
