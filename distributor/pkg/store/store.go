// Package store defines the persistence surface for distributions and
// claim records, with interchangeable memory and postgres backends.
package store

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
)

// Store persists distributions and claim records. Reads of absent rows
// return drop.ErrNotFound. The engine serializes writes per distribution,
// so backends only need to make each call atomic on its own.
type Store interface {
	CreateDistribution(ctx context.Context, dist drop.Distribution) error
	GetDistribution(ctx context.Context, addr solana.PublicKey) (drop.Distribution, error)
	UpdateWindow(ctx context.Context, addr solana.PublicKey, startTS, endTS int64) error
	UpdateRoot(ctx context.Context, addr solana.PublicKey, root [32]byte) error

	// CommitClaim upserts the claim record and sets the distribution's
	// released total in one atomic step.
	CommitClaim(ctx context.Context, rec drop.ClaimRecord, released uint64) error

	// DeleteDistribution removes the distribution only. Claim records
	// survive until each recipient closes their own.
	DeleteDistribution(ctx context.Context, addr solana.PublicKey) error

	GetClaim(ctx context.Context, dist, recipient solana.PublicKey) (drop.ClaimRecord, error)
	DeleteClaim(ctx context.Context, dist, recipient solana.PublicKey) error

	// NextNonce allocates the next open sequence number for a creator.
	// The first allocation yields 1.
	NextNonce(ctx context.Context, creator solana.PublicKey) (uint32, error)
}
