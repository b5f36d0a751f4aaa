package anchoring

import (
	"context"
	"encoding/hex"
	"sync"
	"time"
)

// MockSubmitter is the in-memory Submitter double, generalizing the
// teacher's MockDatabase/PGDatabase seam to this package's one
// external collaborator. Confirmed roots become confirmable after
// ConfirmAfter elapses (zero means "confirm on the first poll"),
// letting tests exercise both the pending and the confirmed path
// without a real chain client.
type MockSubmitter struct {
	ConfirmAfter time.Duration

	mu        sync.Mutex
	submitted map[string]time.Time
}

func NewMockSubmitter() *MockSubmitter {
	return &MockSubmitter{submitted: make(map[string]time.Time)}
}

func (m *MockSubmitter) Submit(_ context.Context, hash [32]byte) (Receipt, error) {
	id := hex.EncodeToString(hash[:])
	m.mu.Lock()
	m.submitted[id] = time.Now()
	m.mu.Unlock()
	return Receipt{ID: id, SubmittedAt: time.Now()}, nil
}

func (m *MockSubmitter) Confirmed(_ context.Context, receipt Receipt) (CommitmentInfo, bool, error) {
	m.mu.Lock()
	submittedAt, ok := m.submitted[receipt.ID]
	m.mu.Unlock()
	if !ok {
		return CommitmentInfo{}, false, nil
	}
	if time.Since(submittedAt) < m.ConfirmAfter {
		return CommitmentInfo{}, false, nil
	}
	return CommitmentInfo{
		Commitment: "mock:" + receipt.ID,
		MerkleRoot: receipt.ID,
		Proof:      "mock-proof:" + receipt.ID,
	}, true, nil
}
