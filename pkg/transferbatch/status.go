// Package transferbatch implements the atomic multi-transfer lifecycle
// of SPEC_FULL.md §4.4: N participants enroll a transfer_receiver call
// into a shared batch, and either all finalize together within
// batch_lifetime or all get punished on timeout. Lifecycle bookkeeping
// is grounded on the teacher's pkg/batch/status.go and
// pkg/batch/collector.go, renamed from that package's on-cadence/
// on-demand anchoring batches to this protocol's collecting/timed-out
// transfer batches.
package transferbatch

import "time"

// Status names where a TransferBatch sits in its lifecycle.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusRevealed   Status = "revealed"
	StatusTimedOut   Status = "timed_out"
)

// Default batch window, overridable per Engine.
const DefaultLifetime = 10 * time.Minute

// StatusInfo is the status/health report surfaced to clients polling a
// batch, adapted from the teacher's BatchStatusInfo.
type StatusInfo struct {
	Status               Status     `json:"status"`
	StatusMessage        string     `json:"status_message"`
	EnrolledCount        int        `json:"enrolled_count"`
	TotalCount           int        `json:"total_count"`
	ExpectedCompletionAt *time.Time `json:"expected_completion_at,omitempty"`
}

// statusMessage mirrors the teacher's GetStatusMessage: a human
// readable sentence per status, not just an enum value.
func statusMessage(status Status, enrolled, total int) string {
	switch status {
	case StatusCollecting:
		return "batch is open, waiting for all participants to reveal"
	case StatusRevealed:
		return "batch revealed and finalized"
	case StatusTimedOut:
		return "batch timed out before all participants revealed; non-revealing state chains were punished"
	default:
		return "unknown batch status"
	}
}

// isStalled mirrors the teacher's IsBatchStalled: a collecting batch
// past its lifetime (but not yet processed) is stalled and due for a
// Timeout call.
func isStalled(age, lifetime time.Duration) bool {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return age > lifetime
}

// buildStatusInfo mirrors the teacher's GetBatchStatusInfo: assembles
// the full status report for one batch.
func buildStatusInfo(status Status, startTime time.Time, lifetime time.Duration, enrolled, total int) *StatusInfo {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	info := &StatusInfo{
		Status:        status,
		StatusMessage: statusMessage(status, enrolled, total),
		EnrolledCount: enrolled,
		TotalCount:    total,
	}
	if status == StatusCollecting {
		completion := startTime.Add(lifetime)
		info.ExpectedCompletionAt = &completion
	}
	return info
}
