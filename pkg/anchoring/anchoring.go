// Package anchoring submits SMT roots (§4.7) to an external anchoring
// service and folds confirmation receipts back into store.Root rows,
// per SPEC_FULL.md §4.8. The external service itself is out of scope
// (spec.md §1, non-goal: no chain client is bundled); this package only
// defines the seam, grounded on the teacher's AnchorSchedulerService
// (pkg/anchor/scheduler.go) for the periodic-submission half and
// EventWatcher (pkg/anchor/event_watcher.go) for the poll-and-match
// confirmation half, generalized from Accumulate-batch/Ethereum-event
// specifics down to "submit a 32-byte root, poll for its receipt".
package anchoring

import (
	"context"
	"time"
)

// Receipt is whatever identifier the external anchoring service hands
// back for a submitted root -- a tx hash, a batch id, anything the
// Submitter can later use to check confirmation status.
type Receipt struct {
	ID          string
	SubmittedAt time.Time
}

// Submitter is the out-of-scope collaborator named in §4.8: an
// external chain or notarization service that accepts a 32-byte root
// hash and eventually confirms it. MockSubmitter is the only
// implementation in this repository, and cmd/sce-server wires it in
// every mode; there is no HTTP client for an external service.
type Submitter interface {
	// Submit hands a root hash to the external service and returns a
	// receipt identifying the submission.
	Submit(ctx context.Context, hash [32]byte) (Receipt, error)

	// Confirmed reports whether the submission behind receipt has
	// landed, and if so, the commitment details to persist onto the
	// Root row (contract address, chain txid, inclusion proof -- shape
	// left to the concrete Submitter).
	Confirmed(ctx context.Context, receipt Receipt) (info CommitmentInfo, ok bool, err error)
}

// CommitmentInfo mirrors store.CommitmentInfo field-for-field; kept as
// its own type so this package doesn't need to import pkg/store for
// anything but the Root/CommitmentInfo conversion performed in
// confirmer.go.
type CommitmentInfo struct {
	Commitment string
	MerkleRoot string
	Proof      string
}
