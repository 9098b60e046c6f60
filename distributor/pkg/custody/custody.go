package custody

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ErrInsufficientFunds is returned when a funding account cannot cover a
// deposit. Pool-side shortfalls use drop.ErrInsufficientPool instead.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Bank moves value between accounts on behalf of the distribution
// engine. The Bank instance handed to the engine is the capability
// scoped to the pools the engine derives; there is no free-standing
// signer. Amounts are base units of the account's asset.
type Bank interface {
	// OpenPool creates the custodial account backing a distribution's
	// pool, tagged with the asset it will hold.
	OpenPool(ctx context.Context, pool, asset solana.PublicKey) error

	// Deposit moves amount from the funding account into the pool.
	Deposit(ctx context.Context, pool, from solana.PublicKey, amount uint64) error

	// PayOut moves amount from the pool to the destination, creating the
	// destination with the pool's asset when it does not exist yet.
	PayOut(ctx context.Context, pool, to solana.PublicKey, amount uint64) error

	// Balance returns the pool's live balance.
	Balance(ctx context.Context, pool solana.PublicKey) (uint64, error)

	// ClosePool pays the pool's remaining balance to the destination and
	// retires the pool account, returning the amount moved.
	ClosePool(ctx context.Context, pool, to solana.PublicKey) (uint64, error)

	// AssetOf reports the asset held by an existing account, or
	// drop.ErrNotFound when the account does not exist.
	AssetOf(ctx context.Context, account solana.PublicKey) (solana.PublicKey, error)
}
