package store

import "github.com/certen/statechain-entity/pkg/sceerr"

// Sentinel not-found errors per entity, grounded on the teacher's
// pkg/database/errors.go convention of one exported sentinel per
// missing-row case, wrapped with fmt.Errorf("...: %w", err) by callers
// so errors.Is keeps working through the handler layer.
var (
	ErrUserSessionNotFound   = sceerr.NotFound("user session not found", nil)
	ErrStateChainNotFound    = sceerr.NotFound("state chain not found", nil)
	ErrBackupTxNotFound      = sceerr.NotFound("backup transaction not found", nil)
	ErrEcdsaSessionNotFound  = sceerr.NotFound("ecdsa session not found", nil)
	ErrTransferDataNotFound  = sceerr.NotFound("transfer data not found", nil)
	ErrTransferBatchNotFound = sceerr.NotFound("transfer batch not found", nil)
	ErrRootNotFound          = sceerr.NotFound("root not found", nil)

	// ErrTransferDataExists signals invariant I4: at most one
	// TransferData per state chain.
	ErrTransferDataExists = sceerr.Conflict("transfer already initiated for this state chain")
)
