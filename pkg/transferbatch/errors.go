package transferbatch

import "github.com/certen/statechain-entity/pkg/sceerr"

var (
	// ErrAlreadyProcessed is returned by Reveal/Timeout against a batch
	// that already finalized or was punished.
	ErrAlreadyProcessed = sceerr.Conflict("transfer batch already finalized or punished")

	// ErrIncomplete is returned by Reveal when not every enrolled state
	// chain has revealed yet.
	ErrIncomplete = sceerr.Conflict("transfer batch still collecting, not all participants have revealed")

	// ErrUnknownStateChain is returned when a transfer_receiver call
	// names a batch_id that doesn't include its state chain.
	ErrUnknownStateChain = sceerr.Conflict("state chain is not enrolled in the named batch")
)
