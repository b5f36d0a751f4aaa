package transferbatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/certen/statechain-entity/pkg/statelock"
	"github.com/certen/statechain-entity/pkg/store"
	"github.com/certen/statechain-entity/pkg/transfer"
)

// Engine runs the atomic batch-transfer lifecycle of §4.4 on top of a
// transfer.Engine: Initiate opens a batch, Receive wraps
// transfer.Engine.Receiver for batch-enrolled transfers, and Reveal/
// Timeout implement the all-or-nothing close.
type Engine struct {
	Store          store.StateStore
	Transfer       *transfer.Engine
	Lock           *statelock.Locker
	Lifetime       time.Duration
	PunishDuration time.Duration
}

// NewEngine constructs an Engine with SPEC_FULL.md §4.4's default
// batch_lifetime and a one-hour punishment window. Lock is this
// engine's own shard table, keyed by batch_id -- deliberately distinct
// from transferEngine's Lock, which is keyed by state_chain_id.
// Sharing one Locker across both id spaces would let a batch id and
// one of its enrolled state chain ids land on the same shard and
// deadlock, since Receive holds the batch lock while calling into
// Transfer.Receiver, which takes the state-chain lock.
func NewEngine(s store.StateStore, transferEngine *transfer.Engine) *Engine {
	return &Engine{
		Store:          s,
		Transfer:       transferEngine,
		Lock:           statelock.New(),
		Lifetime:       DefaultLifetime,
		PunishDuration: time.Hour,
	}
}

// Initiate opens a TransferBatch: the client supplies the batch id and
// the set of state chains that have committed (by signature, verified
// at the façade layer before this call) to swap ownership together.
func (e *Engine) Initiate(ctx context.Context, batchID uuid.UUID, stateChainIDs []uuid.UUID) error {
	return e.Lock.WithLock(batchID, func() error {
		stateChains := make(map[uuid.UUID]bool, len(stateChainIDs))
		for _, id := range stateChainIDs {
			stateChains[id] = false
		}
		return e.Store.PutTransferBatch(ctx, &store.TransferBatch{
			ID:          batchID,
			StartTime:   time.Now(),
			StateChains: stateChains,
		})
	})
}

// Receive wraps transfer.Engine.Receiver for a transfer_receiver call
// carrying batch_data: it checks the batch hasn't already ended,
// delegates the Lindell math to Transfer.Receiver, then marks this
// state chain revealed and stages its finalize data. If every
// enrolled state chain has now revealed, it immediately attempts
// Reveal.
func (e *Engine) Receive(ctx context.Context, msg4 transfer.TransferMsg4) (*transfer.TransferMsg5, error) {
	if msg4.BatchData == nil {
		msg5, _, err := e.Transfer.Receiver(ctx, msg4)
		return msg5, err
	}
	batchID := msg4.BatchData.ID

	var msg5 *transfer.TransferMsg5
	err := e.Lock.WithLock(batchID, func() error {
		batch, err := e.Store.GetTransferBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Finalized || batch.TimedOut {
			return ErrAlreadyProcessed
		}
		if time.Since(batch.StartTime) > e.lifetime() {
			_ = e.timeoutLocked(ctx, batch)
			return transfer.ErrBatchEnded
		}
		if _, enrolled := batch.StateChains[msg4.StateChainID]; !enrolled {
			return ErrUnknownStateChain
		}

		result, finalizeData, err := e.Transfer.Receiver(ctx, msg4)
		if err != nil {
			return err
		}
		msg5 = result

		batch.StateChains[msg4.StateChainID] = true
		batch.FinalizedData = append(batch.FinalizedData, *finalizeData)
		if err := e.Store.PutTransferBatch(ctx, batch); err != nil {
			return err
		}

		if allRevealed(batch) {
			return e.revealLocked(ctx, batch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg5, nil
}

// Reveal runs the batch's all-or-nothing finalize (§4.4): if every
// enrolled state chain has revealed and the batch is still within its
// lifetime, every staged TransferFinalizeData is applied inside one
// store transaction. Safe to call repeatedly; a batch already
// finalized or punished returns ErrAlreadyProcessed, and a batch past
// its lifetime is punished and returns transfer.ErrBatchEnded.
func (e *Engine) Reveal(ctx context.Context, batchID uuid.UUID) error {
	return e.Lock.WithLock(batchID, func() error {
		batch, err := e.Store.GetTransferBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Finalized || batch.TimedOut {
			return ErrAlreadyProcessed
		}
		if time.Since(batch.StartTime) > e.lifetime() {
			if err := e.timeoutLocked(ctx, batch); err != nil {
				return err
			}
			return transfer.ErrBatchEnded
		}
		if !allRevealed(batch) {
			return ErrIncomplete
		}
		return e.revealLocked(ctx, batch)
	})
}

// revealLocked applies every staged finalize entry inside one store
// transaction, per §4.4's "either all finalize or none". Callers must
// already hold batchID's lock.
func (e *Engine) revealLocked(ctx context.Context, batch *store.TransferBatch) error {
	err := e.Store.WithTx(ctx, func(ctx context.Context, tx store.StateStore) error {
		for i := range batch.FinalizedData {
			if err := e.Transfer.FinalizeWithinTx(ctx, tx, &batch.FinalizedData[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	batch.Finalized = true
	return e.Store.PutTransferBatch(ctx, batch)
}

// Timeout runs §4.4's punishment path: every state chain that never
// revealed is locked for PunishDuration and recorded into
// PunishedStateChains; any staged finalize data for chains that did
// reveal is dropped without applying.
func (e *Engine) Timeout(ctx context.Context, batchID uuid.UUID) error {
	return e.Lock.WithLock(batchID, func() error {
		batch, err := e.Store.GetTransferBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Finalized || batch.TimedOut {
			return ErrAlreadyProcessed
		}
		if time.Since(batch.StartTime) <= e.lifetime() {
			return ErrIncomplete
		}
		return e.timeoutLocked(ctx, batch)
	})
}

func (e *Engine) timeoutLocked(ctx context.Context, batch *store.TransferBatch) error {
	if batch.Finalized || batch.TimedOut {
		return nil
	}
	now := time.Now()
	for scID, revealed := range batch.StateChains {
		if revealed {
			continue
		}
		sc, err := e.Store.GetStateChain(ctx, scID)
		if err != nil {
			return err
		}
		sc.LockedUntil = now.Add(e.PunishDuration)
		if err := e.Store.PutStateChain(ctx, sc); err != nil {
			return err
		}
		batch.PunishedStateChains = append(batch.PunishedStateChains, scID)
	}
	batch.FinalizedData = nil
	batch.TimedOut = true
	return e.Store.PutTransferBatch(ctx, batch)
}

// Status reports a batch's current lifecycle state for client polling.
func (e *Engine) Status(ctx context.Context, batchID uuid.UUID) (*StatusInfo, error) {
	batch, err := e.Store.GetTransferBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	status := StatusCollecting
	switch {
	case batch.TimedOut:
		status = StatusTimedOut
	case batch.Finalized:
		status = StatusRevealed
	case time.Since(batch.StartTime) > e.lifetime():
		status = StatusTimedOut
	}

	enrolled := 0
	for _, revealed := range batch.StateChains {
		if revealed {
			enrolled++
		}
	}
	return buildStatusInfo(status, batch.StartTime, e.lifetime(), enrolled, len(batch.StateChains)), nil
}

func (e *Engine) lifetime() time.Duration {
	if e.Lifetime <= 0 {
		return DefaultLifetime
	}
	return e.Lifetime
}

func allRevealed(batch *store.TransferBatch) bool {
	for _, revealed := range batch.StateChains {
		if !revealed {
			return false
		}
	}
	return len(batch.StateChains) > 0
}
