// Package distributor implements the distribution engine: opening a
// campaign, window and commitment control, proof-gated incremental
// claims, and teardown. Callers passed to operations are authenticated
// principals; signature verification happens at the transport layer.
package distributor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/merkledrop/distributor/pkg/custody"
	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
	"github.com/malbeclabs/merkledrop/distributor/pkg/events"
	"github.com/malbeclabs/merkledrop/distributor/pkg/ledger"
	"github.com/malbeclabs/merkledrop/distributor/pkg/metrics"
	"github.com/malbeclabs/merkledrop/distributor/pkg/store"
)

type Config struct {
	Logger *slog.Logger
	Store  store.Store
	Ledger *ledger.Ledger
	Bank   custody.Bank
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
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger is required")
	}
	if cfg.Bank == nil {
		return fmt.Errorf("bank is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard{}
	}
	return nil
}

// Engine serializes every mutation per distribution address with a keyed
// mutex; Open additionally serializes per creator so sequence numbers
// land in order. Operations on disjoint distributions run concurrently.
// Time is read once per operation.
type Engine struct {
	cfg   Config
	locks *keyedMutex
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate distributor config: %w", err)
	}
	return &Engine{
		cfg:   cfg,
		locks: newKeyedMutex(),
	}, nil
}

// Get returns the distribution at addr.
func (e *Engine) Get(ctx context.Context, addr solana.PublicKey) (drop.Distribution, error) {
	return e.cfg.Store.GetDistribution(ctx, addr)
}

// Open creates a distribution for (creator, asset) under the creator's
// next sequence number and moves poolAmount of the creator's funds into
// the derived custody pool.
func (e *Engine) Open(ctx context.Context, creator, operator, asset solana.PublicKey, poolAmount uint64) (drop.Distribution, error) {
	start := time.Now()
	dist, err := e.open(ctx, creator, operator, asset, poolAmount)
	metrics.RecordOperation("open", time.Since(start), err)
	return dist, err
}

func (e *Engine) open(ctx context.Context, creator, operator, asset solana.PublicKey, poolAmount uint64) (drop.Distribution, error) {
	if poolAmount == 0 {
		return drop.Distribution{}, drop.ErrInvalidAmount
	}
	if operator.IsZero() {
		return drop.Distribution{}, drop.ErrInvalidOperator
	}

	unlock := e.locks.lock(creator)
	defer unlock()

	seq, err := e.cfg.Store.NextNonce(ctx, creator)
	if err != nil {
		return drop.Distribution{}, fmt.Errorf("failed to allocate sequence number: %w", err)
	}

	addr := drop.DistributionAddress(creator, asset, seq)
	pool := drop.PoolAddress(addr)

	if err := e.cfg.Bank.OpenPool(ctx, pool, asset); err != nil {
		return drop.Distribution{}, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := e.cfg.Bank.Deposit(ctx, pool, creator, poolAmount); err != nil {
		if _, cerr := e.cfg.Bank.ClosePool(ctx, pool, creator); cerr != nil {
			e.cfg.Logger.Error("failed to retire pool after deposit failure", "pool", pool.String(), "error", cerr)
		}
		return drop.Distribution{}, fmt.Errorf("failed to fund pool: %w", err)
	}

	dist := drop.Distribution{
		Address:           addr,
		Creator:           creator,
		Operator:          operator,
		Asset:             asset,
		Pool:              pool,
		Seq:               seq,
		InitialPoolAmount: poolAmount,
		Rent:              drop.DistributionRent,
	}
	if err := e.cfg.Store.CreateDistribution(ctx, dist); err != nil {
		// The distribution never existed: refund the deposit and retire
		// the pool.
		if _, cerr := e.cfg.Bank.ClosePool(ctx, pool, creator); cerr != nil {
			e.cfg.Logger.Error("failed to refund pool after store failure", "pool", pool.String(), "error", cerr)
		}
		return drop.Distribution{}, fmt.Errorf("failed to create distribution: %w", err)
	}

	metrics.DistributionsOpen.Inc()

	e.cfg.Logger.Info("distribution opened",
		"distribution", addr.String(),
		"creator", creator.String(),
		"operator", operator.String(),
		"asset", asset.String(),
		"seq", seq,
		"pool_amount", poolAmount,
	)

	e.cfg.Events.Emit(ctx, events.Event{
		ID:                uuid.New().String(),
		Kind:              events.KindDistributionCreated,
		TS:                e.cfg.Clock.Now(),
		Distribution:      addr,
		Creator:           creator,
		Operator:          operator,
		Asset:             asset,
		Pool:              pool,
		Seq:               seq,
		InitialPoolAmount: poolAmount,
	})

	return dist, nil
}
