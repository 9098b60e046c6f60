package custody

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
)

type account struct {
	asset   solana.PublicKey
	balance uint64
}

// MemoryBank is a process-local Bank for custodial deployments and
// tests. Accounts are tagged with an asset on creation; transfers
// between accounts of different assets are rejected.
type MemoryBank struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*account
}

var _ Bank = (*MemoryBank)(nil)

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{accounts: make(map[solana.PublicKey]*account)}
}

// Mint credits an account out of thin air, creating it with the given
// asset when absent. This is the funding entry point for tests and for
// custodial deployments where balances mirror an external source.
func (b *MemoryBank) Mint(_ context.Context, to, asset solana.PublicKey, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[to]
	if !ok {
		b.accounts[to] = &account{asset: asset, balance: amount}
		return nil
	}
	if acct.asset != asset {
		return fmt.Errorf("account %s holds a different asset: %w", to, drop.ErrAssetMismatch)
	}
	if acct.balance > math.MaxUint64-amount {
		return fmt.Errorf("minting %d to %s: %w", amount, to, drop.ErrArithmeticOverflow)
	}
	acct.balance += amount
	return nil
}

func (b *MemoryBank) OpenPool(_ context.Context, pool, asset solana.PublicKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.accounts[pool]; ok {
		return fmt.Errorf("pool %s already exists", pool)
	}
	b.accounts[pool] = &account{asset: asset}
	return nil
}

func (b *MemoryBank) Deposit(_ context.Context, pool, from solana.PublicKey, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	poolAcct, ok := b.accounts[pool]
	if !ok {
		return fmt.Errorf("pool %s: %w", pool, drop.ErrNotFound)
	}
	fromAcct, ok := b.accounts[from]
	if !ok {
		return fmt.Errorf("funding account %s: %w", from, drop.ErrNotFound)
	}
	if fromAcct.asset != poolAcct.asset {
		return fmt.Errorf("funding account %s does not hold the pool asset: %w", from, drop.ErrAssetMismatch)
	}
	if fromAcct.balance < amount {
		return fmt.Errorf("funding account %s has %d, need %d: %w", from, fromAcct.balance, amount, ErrInsufficientFunds)
	}
	if poolAcct.balance > math.MaxUint64-amount {
		return fmt.Errorf("depositing %d into %s: %w", amount, pool, drop.ErrArithmeticOverflow)
	}

	fromAcct.balance -= amount
	poolAcct.balance += amount
	return nil
}

func (b *MemoryBank) PayOut(_ context.Context, pool, to solana.PublicKey, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.payOutLocked(pool, to, amount)
}

func (b *MemoryBank) Balance(_ context.Context, pool solana.PublicKey) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[pool]
	if !ok {
		return 0, fmt.Errorf("pool %s: %w", pool, drop.ErrNotFound)
	}
	return acct.balance, nil
}

func (b *MemoryBank) ClosePool(_ context.Context, pool, to solana.PublicKey) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[pool]
	if !ok {
		return 0, fmt.Errorf("pool %s: %w", pool, drop.ErrNotFound)
	}
	remainder := acct.balance
	if remainder > 0 {
		if err := b.payOutLocked(pool, to, remainder); err != nil {
			return 0, err
		}
	}
	delete(b.accounts, pool)
	return remainder, nil
}

func (b *MemoryBank) AssetOf(_ context.Context, acc solana.PublicKey) (solana.PublicKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[acc]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("account %s: %w", acc, drop.ErrNotFound)
	}
	return acct.asset, nil
}

func (b *MemoryBank) payOutLocked(pool, to solana.PublicKey, amount uint64) error {
	poolAcct, ok := b.accounts[pool]
	if !ok {
		return fmt.Errorf("pool %s: %w", pool, drop.ErrNotFound)
	}
	if poolAcct.balance < amount {
		return fmt.Errorf("pool %s has %d, need %d: %w", pool, poolAcct.balance, amount, drop.ErrInsufficientPool)
	}

	toAcct, ok := b.accounts[to]
	if !ok {
		toAcct = &account{asset: poolAcct.asset}
		b.accounts[to] = toAcct
	}
	if toAcct.asset != poolAcct.asset {
		return fmt.Errorf("destination %s does not hold the pool asset: %w", to, drop.ErrAssetMismatch)
	}
	if toAcct.balance > math.MaxUint64-amount {
		return fmt.Errorf("paying %d to %s: %w", amount, to, drop.ErrArithmeticOverflow)
	}

	poolAcct.balance -= amount
	toAcct.balance += amount
	return nil
}
