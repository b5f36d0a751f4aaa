package ledger

import "github.com/certen/statechain-entity/pkg/sceerr"

// Rejections named in §4.6.
var (
	ErrSigInvalid        = sceerr.Protocol("statechain entry signature invalid")
	ErrPrevOwnerMismatch = sceerr.Protocol("statechain entry does not match previous owner")
)
