package distributor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
	"github.com/malbeclabs/merkledrop/distributor/pkg/events"
	"github.com/malbeclabs/merkledrop/distributor/pkg/merkle"
	"github.com/malbeclabs/merkledrop/distributor/pkg/metrics"
)

// Claim releases the part of a recipient's entitlement not yet paid out.
// ceiling is the recipient's total entitlement under the current
// commitment; proof authenticates the (recipient, ceiling) pair against
// it. Claims are incremental: the payout is ceiling minus what the
// recipient has already received, and a raised ceiling can be claimed
// again for the difference.
func (e *Engine) Claim(ctx context.Context, recipient, dist solana.PublicKey, ceiling uint64, proof [][32]byte) (uint64, error) {
	start := time.Now()
	pending, err := e.claim(ctx, recipient, dist, ceiling, proof)
	metrics.RecordOperation("claim", time.Since(start), err)
	return pending, err
}

func (e *Engine) claim(ctx context.Context, recipient, dist solana.PublicKey, ceiling uint64, proof [][32]byte) (uint64, error) {
	unlock := e.locks.lock(dist)
	defer unlock()

	d, err := e.cfg.Store.GetDistribution(ctx, dist)
	if err != nil {
		return 0, err
	}

	now := e.cfg.Clock.Now().Unix()
	if !d.HasCommitment() {
		return 0, drop.ErrNoCommitment
	}
	if d.StartTS == 0 {
		return 0, drop.ErrWindowNotSet
	}
	if now < d.StartTS {
		return 0, drop.ErrNotStarted
	}
	if now > d.EndTS {
		return 0, drop.ErrEnded
	}

	cumulative, err := e.cfg.Ledger.Cumulative(ctx, dist, recipient)
	if err != nil {
		return 0, err
	}
	if ceiling <= cumulative {
		return 0, drop.ErrNothingToClaim
	}

	leaf := merkle.LeafHash(recipient, ceiling)
	if !merkle.Verify(proof, d.Root, leaf) {
		return 0, drop.ErrInvalidProof
	}

	pending := ceiling - cumulative

	balance, err := e.cfg.Bank.Balance(ctx, d.Pool)
	if err != nil {
		return 0, fmt.Errorf("failed to read pool balance: %w", err)
	}
	if balance < pending {
		return 0, drop.ErrInsufficientPool
	}
	if pending > math.MaxUint64-d.Released {
		return 0, drop.ErrArithmeticOverflow
	}
	released := d.Released + pending

	// Checked up front so the payout cannot fail after the state commit.
	if err := e.checkDestinationAsset(ctx, recipient, d.Asset); err != nil {
		return 0, err
	}

	rec := drop.ClaimRecord{
		Address:      drop.ClaimAddress(dist, recipient),
		Distribution: dist,
		Recipient:    recipient,
		Cumulative:   ceiling,
		Rent:         drop.ClaimRecordRent,
	}
	if err := e.cfg.Store.CommitClaim(ctx, rec, released); err != nil {
		return 0, fmt.Errorf("failed to commit claim: %w", err)
	}

	if err := e.cfg.Bank.PayOut(ctx, d.Pool, recipient, pending); err != nil {
		// State is already committed; surface loudly, operator
		// reconciliation needed.
		e.cfg.Logger.Error("payout failed after claim commit",
			"distribution", dist.String(),
			"recipient", recipient.String(),
			"pending", pending,
			"error", err,
		)
		return 0, fmt.Errorf("failed to pay out claim: %w", err)
	}

	metrics.ClaimedAmountTotal.Add(float64(pending))

	e.cfg.Logger.Info("claim released",
		"distribution", dist.String(),
		"recipient", recipient.String(),
		"pending", pending,
		"ceiling", ceiling,
		"released", released,
	)

	e.cfg.Events.Emit(ctx, events.Event{
		ID:           uuid.New().String(),
		Kind:         events.KindClaimed,
		TS:           e.cfg.Clock.Now(),
		Distribution: dist,
		Recipient:    recipient,
		Amount:       pending,
		Ceiling:      ceiling,
		Released:     released,
	})

	return pending, nil
}

// CloseClaim erases the recipient's claim record and returns the storage
// cost it reclaims. Allowed once the parent distribution has ended or
// has been torn down.
func (e *Engine) CloseClaim(ctx context.Context, recipient, dist solana.PublicKey) (uint64, error) {
	start := time.Now()
	reclaimed, err := e.closeClaim(ctx, recipient, dist)
	metrics.RecordOperation("close_claim", time.Since(start), err)
	return reclaimed, err
}

func (e *Engine) closeClaim(ctx context.Context, recipient, dist solana.PublicKey) (uint64, error) {
	unlock := e.locks.lock(dist)
	defer unlock()

	return e.cfg.Ledger.Close(ctx, dist, recipient)
}

// checkDestinationAsset rejects a destination account whose asset tag
// differs from want. An account the bank has not seen yet is fine; it is
// created with the pool's asset at payout.
func (e *Engine) checkDestinationAsset(ctx context.Context, account, want solana.PublicKey) error {
	asset, err := e.cfg.Bank.AssetOf(ctx, account)
	if err != nil {
		if errors.Is(err, drop.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to check destination asset: %w", err)
	}
	if asset != want {
		return drop.ErrAssetMismatch
	}
	return nil
}
