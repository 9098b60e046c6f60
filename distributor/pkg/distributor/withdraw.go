package distributor

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
	"github.com/malbeclabs/merkledrop/distributor/pkg/events"
	"github.com/malbeclabs/merkledrop/distributor/pkg/metrics"
)

// Withdraw reconciles a distribution after its window: the remaining pool
// balance goes back to the creator, the pool is retired, and the
// distribution record is deleted, returning its storage cost. A
// distribution whose window was never scheduled has EndTS zero and can be
// withdrawn immediately; that is the escape valve for abandoned
// campaigns. Claim records survive and are closed individually by their
// recipients.
func (e *Engine) Withdraw(ctx context.Context, caller, dist solana.PublicKey) (uint64, error) {
	start := time.Now()
	remainder, err := e.withdraw(ctx, caller, dist)
	metrics.RecordOperation("withdraw", time.Since(start), err)
	return remainder, err
}

func (e *Engine) withdraw(ctx context.Context, caller, dist solana.PublicKey) (uint64, error) {
	unlock := e.locks.lock(dist)
	defer unlock()

	d, err := e.cfg.Store.GetDistribution(ctx, dist)
	if err != nil {
		return 0, err
	}
	if caller != d.Creator {
		return 0, drop.ErrNotCreator
	}

	now := e.cfg.Clock.Now().Unix()
	if now <= d.EndTS {
		return 0, drop.ErrNotEnded
	}

	// Checked up front so the pool teardown cannot fail after the state
	// commit.
	if err := e.checkDestinationAsset(ctx, caller, d.Asset); err != nil {
		return 0, err
	}

	if err := e.cfg.Store.DeleteDistribution(ctx, dist); err != nil {
		return 0, fmt.Errorf("failed to delete distribution: %w", err)
	}

	remainder, err := e.cfg.Bank.ClosePool(ctx, d.Pool, caller)
	if err != nil {
		// State is already committed; surface loudly, operator
		// reconciliation needed.
		e.cfg.Logger.Error("pool teardown failed after distribution delete",
			"distribution", dist.String(),
			"pool", d.Pool.String(),
			"error", err,
		)
		return 0, fmt.Errorf("failed to close pool: %w", err)
	}

	metrics.DistributionsOpen.Dec()
	metrics.WithdrawnAmountTotal.Add(float64(remainder))

	e.cfg.Logger.Info("distribution withdrawn",
		"distribution", dist.String(),
		"creator", caller.String(),
		"remainder", remainder,
		"released", d.Released,
	)

	e.cfg.Events.Emit(ctx, events.Event{
		ID:           uuid.New().String(),
		Kind:         events.KindWithdrawn,
		TS:           e.cfg.Clock.Now(),
		Distribution: dist,
		Creator:      caller,
		Amount:       remainder,
		Released:     d.Released,
	})

	return remainder, nil
}
