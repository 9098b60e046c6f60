// Package ledger tracks per-recipient cumulative claim records and their
// teardown. Writes happen through the engine's transactional claim
// commit; this package owns the read side and the record close rule.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
	"github.com/malbeclabs/merkledrop/distributor/pkg/events"
	"github.com/malbeclabs/merkledrop/distributor/pkg/store"
)

type Config struct {
	Logger *slog.Logger
	Store  store.Store
	Clock  clockwork.Clock
	Events events.Sink
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Store == nil {
		return fmt.Errorf("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard{}
	}
	return nil
}

type Ledger struct {
	cfg Config
}

func New(cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate ledger config: %w", err)
	}
	return &Ledger{cfg: cfg}, nil
}

// Cumulative returns the total a recipient has already claimed from a
// distribution. A recipient with no record has claimed nothing.
func (l *Ledger) Cumulative(ctx context.Context, dist, recipient solana.PublicKey) (uint64, error) {
	rec, err := l.cfg.Store.GetClaim(ctx, dist, recipient)
	if err != nil {
		if errors.Is(err, drop.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get claim record: %w", err)
	}
	return rec.Cumulative, nil
}

// Record returns the claim record for a recipient.
func (l *Ledger) Record(ctx context.Context, dist, recipient solana.PublicKey) (drop.ClaimRecord, error) {
	return l.cfg.Store.GetClaim(ctx, dist, recipient)
}

// Close erases a recipient's claim record and returns the storage cost it
// reclaims. While the distribution still exists its window must be over;
// once the distribution itself is gone the record can go at any time.
func (l *Ledger) Close(ctx context.Context, dist, recipient solana.PublicKey) (uint64, error) {
	rec, err := l.cfg.Store.GetClaim(ctx, dist, recipient)
	if err != nil {
		return 0, fmt.Errorf("failed to get claim record: %w", err)
	}

	parent, err := l.cfg.Store.GetDistribution(ctx, dist)
	switch {
	case err == nil:
		now := l.cfg.Clock.Now().Unix()
		if now <= parent.EndTS {
			return 0, drop.ErrNotEnded
		}
	case errors.Is(err, drop.ErrNotFound):
		// Distribution already torn down
	default:
		return 0, fmt.Errorf("failed to get distribution: %w", err)
	}

	if err := l.cfg.Store.DeleteClaim(ctx, dist, recipient); err != nil {
		return 0, fmt.Errorf("failed to delete claim record: %w", err)
	}

	l.cfg.Logger.Debug("claim record closed",
		"distribution", dist.String(),
		"recipient", recipient.String(),
		"cumulative", rec.Cumulative,
		"rent", rec.Rent,
	)

	l.cfg.Events.Emit(ctx, events.Event{
		ID:           uuid.New().String(),
		Kind:         events.KindClaimClosed,
		TS:           l.cfg.Clock.Now(),
		Distribution: dist,
		Recipient:    recipient,
		Amount:       rec.Cumulative,
	})

	return rec.Rent, nil
}
