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

// SetWindow schedules the claim window: [startTS, startTS+WindowDuration].
// Only the operator may call it, and only until the window goes live;
// before that it can be called again, each call fully overwriting.
func (e *Engine) SetWindow(ctx context.Context, caller, dist solana.PublicKey, startTS int64) error {
	start := time.Now()
	err := e.setWindow(ctx, caller, dist, startTS)
	metrics.RecordOperation("set_window", time.Since(start), err)
	return err
}

func (e *Engine) setWindow(ctx context.Context, caller, dist solana.PublicKey, startTS int64) error {
	unlock := e.locks.lock(dist)
	defer unlock()

	d, err := e.cfg.Store.GetDistribution(ctx, dist)
	if err != nil {
		return err
	}
	if caller != d.Operator {
		return drop.ErrNotOperator
	}

	now := e.cfg.Clock.Now().Unix()
	if d.StartTS > 0 && now >= d.StartTS {
		return drop.ErrAlreadyStarted
	}
	if startTS <= now {
		return drop.ErrInvalidStartTime
	}
	if startTS > now+drop.MaxStartAhead {
		return drop.ErrStartTimeTooFar
	}

	endTS := startTS + drop.WindowDuration
	if err := e.cfg.Store.UpdateWindow(ctx, dist, startTS, endTS); err != nil {
		return fmt.Errorf("failed to update window: %w", err)
	}

	e.cfg.Logger.Info("claim window set",
		"distribution", dist.String(),
		"start_ts", startTS,
		"end_ts", endTS,
	)

	e.cfg.Events.Emit(ctx, events.Event{
		ID:           uuid.New().String(),
		Kind:         events.KindWindowSet,
		TS:           e.cfg.Clock.Now(),
		Distribution: dist,
		Operator:     caller,
		StartTS:      startTS,
		EndTS:        endTS,
	})

	return nil
}

// SetCommitment publishes the entitlement commitment. Only the operator
// may call it; an all-zero root is invalid. Republishing is allowed at
// any time, including mid-window.
func (e *Engine) SetCommitment(ctx context.Context, caller, dist solana.PublicKey, root [32]byte) error {
	start := time.Now()
	err := e.setCommitment(ctx, caller, dist, root)
	metrics.RecordOperation("set_commitment", time.Since(start), err)
	return err
}

func (e *Engine) setCommitment(ctx context.Context, caller, dist solana.PublicKey, root [32]byte) error {
	unlock := e.locks.lock(dist)
	defer unlock()

	d, err := e.cfg.Store.GetDistribution(ctx, dist)
	if err != nil {
		return err
	}
	if caller != d.Operator {
		return drop.ErrNotOperator
	}
	if root == ([32]byte{}) {
		return drop.ErrInvalidCommitment
	}

	if err := e.cfg.Store.UpdateRoot(ctx, dist, root); err != nil {
		return fmt.Errorf("failed to update commitment: %w", err)
	}

	e.cfg.Logger.Info("commitment set", "distribution", dist.String())

	e.cfg.Events.Emit(ctx, events.Event{
		ID:           uuid.New().String(),
		Kind:         events.KindCommitmentSet,
		TS:           e.cfg.Clock.Now(),
		Distribution: dist,
		Operator:     caller,
		Root:         root,
	})

	return nil
}
