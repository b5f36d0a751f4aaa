package transfer

import "github.com/certen/statechain-entity/pkg/sceerr"

// Error text reworded (never copied) from
// original_source/server/src/protocol/transfer.rs, per SPEC_FULL.md
// §4.3's expansion.
var (
	ErrStateChainSigMismatch = sceerr.Protocol("transfer receiver's state chain signature does not match the recorded transfer")
	ErrS2OutOfRange          = sceerr.Protocol("recovered key share out of range, try again")
	ErrProtocolMismatch      = sceerr.Protocol("transfer protocol failed: P1 != P2")
	ErrNotOwner              = sceerr.Auth("state chain is not owned by the requesting user")
	ErrBadAuth               = sceerr.Auth("invalid auth token for shared key id")
)

// ErrLocked builds the Conflict error for a state chain still locked
// from a prior batch punishment.
func ErrLocked(minutesRemaining int64) *sceerr.Error {
	return sceerr.Conflict(lockedMessage(minutesRemaining))
}

func lockedMessage(minutes int64) string {
	if minutes <= 1 {
		return "state chain locked for 1 minute"
	}
	return "state chain locked for " + itoa(minutes) + " minutes"
}

// ErrTransferAlreadyCompleted is returned when transfer_receiver is
// called a second time against a transfer that already produced
// finalize data and is only waiting on finalize/batch-reveal.
var ErrTransferAlreadyCompleted = sceerr.Conflict("transfer already completed, awaiting finalize")

// ErrBatchEnded is returned when a transfer_receiver call names a
// batch that already ended (timed out) before this transfer revealed.
var ErrBatchEnded = sceerr.BatchExpired("transfer batch ended, too late to complete transfer")

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
