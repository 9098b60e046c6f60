// Package postgres persists distributions, claim records and sequence
// counters in PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
	"github.com/malbeclabs/merkledrop/distributor/pkg/store"
)

type Config struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Pool == nil {
		return fmt.Errorf("pool is required")
	}
	return nil
}

// Store is the PostgreSQL store.Store backend. Every method is a single
// statement or a single transaction; serialization across calls is the
// engine's concern. Amounts are stored as BIGINT, which caps them at
// the signed 64-bit range.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate postgres store config: %w", err)
	}
	return &Store{log: cfg.Logger, pool: cfg.Pool}, nil
}

func (s *Store) CreateDistribution(ctx context.Context, dist drop.Distribution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO distributions (address, creator, operator, asset, pool, seq, initial_pool_amount, released, start_ts, end_ts, root, rent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		dist.Address.String(), dist.Creator.String(), dist.Operator.String(), dist.Asset.String(), dist.Pool.String(),
		int64(dist.Seq), int64(dist.InitialPoolAmount), int64(dist.Released), dist.StartTS, dist.EndTS, dist.Root[:], int64(dist.Rent),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("distribution %s already exists", dist.Address)
		}
		return fmt.Errorf("failed to insert distribution: %w", err)
	}
	return nil
}

func (s *Store) GetDistribution(ctx context.Context, addr solana.PublicKey) (drop.Distribution, error) {
	var (
		creator, operator, asset, pool string
		seq                            int64
		initial, released, rent        int64
		startTS, endTS                 int64
		root                           []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT creator, operator, asset, pool, seq, initial_pool_amount, released, start_ts, end_ts, root, rent
		FROM distributions
		WHERE address = $1
	`, addr.String()).Scan(&creator, &operator, &asset, &pool, &seq, &initial, &released, &startTS, &endTS, &root, &rent)
	if errors.Is(err, pgx.ErrNoRows) {
		return drop.Distribution{}, fmt.Errorf("distribution %s: %w", addr, drop.ErrNotFound)
	}
	if err != nil {
		return drop.Distribution{}, fmt.Errorf("failed to query distribution: %w", err)
	}

	dist := drop.Distribution{
		Address:           addr,
		Seq:               uint32(seq),
		InitialPoolAmount: uint64(initial),
		Released:          uint64(released),
		StartTS:           startTS,
		EndTS:             endTS,
		Rent:              uint64(rent),
	}
	copy(dist.Root[:], root)
	if dist.Creator, err = solana.PublicKeyFromBase58(creator); err != nil {
		return drop.Distribution{}, fmt.Errorf("failed to parse creator key %q: %w", creator, err)
	}
	if dist.Operator, err = solana.PublicKeyFromBase58(operator); err != nil {
		return drop.Distribution{}, fmt.Errorf("failed to parse operator key %q: %w", operator, err)
	}
	if dist.Asset, err = solana.PublicKeyFromBase58(asset); err != nil {
		return drop.Distribution{}, fmt.Errorf("failed to parse asset key %q: %w", asset, err)
	}
	if dist.Pool, err = solana.PublicKeyFromBase58(pool); err != nil {
		return drop.Distribution{}, fmt.Errorf("failed to parse pool key %q: %w", pool, err)
	}
	return dist, nil
}

func (s *Store) UpdateWindow(ctx context.Context, addr solana.PublicKey, startTS, endTS int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE distributions SET start_ts = $2, end_ts = $3, updated_at = NOW()
		WHERE address = $1
	`, addr.String(), startTS, endTS)
	if err != nil {
		return fmt.Errorf("failed to update window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("distribution %s: %w", addr, drop.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateRoot(ctx context.Context, addr solana.PublicKey, root [32]byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE distributions SET root = $2, updated_at = NOW()
		WHERE address = $1
	`, addr.String(), root[:])
	if err != nil {
		return fmt.Errorf("failed to update root: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("distribution %s: %w", addr, drop.ErrNotFound)
	}
	return nil
}

func (s *Store) CommitClaim(ctx context.Context, rec drop.ClaimRecord, released uint64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op once the transaction committed.
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE distributions SET released = $2, updated_at = NOW()
		WHERE address = $1
	`, rec.Distribution.String(), int64(released))
	if err != nil {
		return fmt.Errorf("failed to update released total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("distribution %s: %w", rec.Distribution, drop.ErrNotFound)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO claim_records (distribution, recipient, address, cumulative, rent)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (distribution, recipient) DO UPDATE SET
			cumulative = EXCLUDED.cumulative,
			updated_at = NOW()
	`, rec.Distribution.String(), rec.Recipient.String(), rec.Address.String(), int64(rec.Cumulative), int64(rec.Rent))
	if err != nil {
		return fmt.Errorf("failed to upsert claim record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit claim: %w", err)
	}
	return nil
}

func (s *Store) DeleteDistribution(ctx context.Context, addr solana.PublicKey) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM distributions WHERE address = $1`, addr.String())
	if err != nil {
		return fmt.Errorf("failed to delete distribution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("distribution %s: %w", addr, drop.ErrNotFound)
	}
	return nil
}

func (s *Store) GetClaim(ctx context.Context, dist, recipient solana.PublicKey) (drop.ClaimRecord, error) {
	var (
		address          string
		cumulative, rent int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT address, cumulative, rent FROM claim_records
		WHERE distribution = $1 AND recipient = $2
	`, dist.String(), recipient.String()).Scan(&address, &cumulative, &rent)
	if errors.Is(err, pgx.ErrNoRows) {
		return drop.ClaimRecord{}, fmt.Errorf("claim record for %s in %s: %w", recipient, dist, drop.ErrNotFound)
	}
	if err != nil {
		return drop.ClaimRecord{}, fmt.Errorf("failed to query claim record: %w", err)
	}

	rec := drop.ClaimRecord{
		Distribution: dist,
		Recipient:    recipient,
		Cumulative:   uint64(cumulative),
		Rent:         uint64(rent),
	}
	if rec.Address, err = solana.PublicKeyFromBase58(address); err != nil {
		return drop.ClaimRecord{}, fmt.Errorf("failed to parse claim record key %q: %w", address, err)
	}
	return rec, nil
}

func (s *Store) DeleteClaim(ctx context.Context, dist, recipient solana.PublicKey) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM claim_records WHERE distribution = $1 AND recipient = $2
	`, dist.String(), recipient.String())
	if err != nil {
		return fmt.Errorf("failed to delete claim record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("claim record for %s in %s: %w", recipient, dist, drop.ErrNotFound)
	}
	return nil
}

func (s *Store) NextNonce(ctx context.Context, creator solana.PublicKey) (uint32, error) {
	var issued int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sequence_counters (creator, issued)
		VALUES ($1, 1)
		ON CONFLICT (creator) DO UPDATE SET
			issued = sequence_counters.issued + 1,
			updated_at = NOW()
		RETURNING issued
	`, creator.String()).Scan(&issued)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence number: %w", err)
	}
	if issued > math.MaxUint32 {
		return 0, fmt.Errorf("sequence counter for %s is exhausted: %w", creator, drop.ErrArithmeticOverflow)
	}
	return uint32(issued), nil
}
