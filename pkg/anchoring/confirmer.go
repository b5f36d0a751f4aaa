package anchoring

import (
	"context"
	"log"

	"github.com/certen/statechain-entity/pkg/store"
)

// confirmOutstanding adapts the teacher's EventWatcher poll-and-match
// loop: for every root this process has an outstanding receipt for, it
// asks the Submitter whether confirmation has landed, and on a match
// fills in the Root row's commitment_info. get_confirmed_smt_root
// (§4.8's LatestConfirmedRoot) then finds it on its newest-first scan.
func confirmOutstanding(ctx context.Context, s store.StateStore, submitter Submitter, tracked map[[32]byte]Receipt, forget func([32]byte), logger *log.Logger) error {
	unconfirmed, err := s.UnconfirmedRoots(ctx)
	if err != nil {
		return err
	}

	for _, root := range unconfirmed {
		receipt, ok := tracked[root.Hash]
		if !ok {
			continue
		}

		info, confirmed, err := submitter.Confirmed(ctx, receipt)
		if err != nil {
			logger.Printf("[anchor] confirm check for %x: %v", root.Hash, err)
			continue
		}
		if !confirmed {
			continue
		}

		if err := s.SetRootCommitment(ctx, root.Hash, store.CommitmentInfo{
			Commitment: info.Commitment,
			MerkleRoot: info.MerkleRoot,
			Proof:      info.Proof,
		}); err != nil {
			return err
		}
		forget(root.Hash)
		logger.Printf("[anchor] confirmed root %x via receipt %s", root.Hash, receipt.ID)
	}
	return nil
}
