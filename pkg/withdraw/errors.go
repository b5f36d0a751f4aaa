package withdraw

import "github.com/certen/statechain-entity/pkg/sceerr"

var (
	// ErrNoPendingWithdraw is returned by prepare_sign_withdraw or
	// withdraw_confirm when withdraw_init was never called (or already
	// confirmed) for this user session.
	ErrNoPendingWithdraw = sceerr.Conflict("no withdraw staged for this user session")

	// ErrNotStaged is returned by withdraw_confirm when
	// prepare_sign_withdraw has not yet run (no tx_withdraw to
	// confirm).
	ErrNotStaged = sceerr.Conflict("withdraw transaction not yet prepared")

	ErrBadAuth = sceerr.Auth("invalid auth token for user session")
)
