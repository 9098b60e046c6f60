package custody

import (
	"crypto/sha256"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
)

func key(tag string) solana.PublicKey {
	sum := sha256.Sum256([]byte(tag))
	return solana.PublicKeyFromBytes(sum[:])
}

func TestMerkleDrop_Custody_MemoryBank(t *testing.T) {
	t.Parallel()

	asset := key("asset")
	other := key("other asset")

	t.Run("deposit moves funds into the pool", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		require.NoError(t, bank.Mint(ctx, key("creator"), asset, 10_000))
		require.NoError(t, bank.OpenPool(ctx, key("pool"), asset))
		require.NoError(t, bank.Deposit(ctx, key("pool"), key("creator"), 7_500))

		bal, err := bank.Balance(ctx, key("pool"))
		require.NoError(t, err)
		require.EqualValues(t, 7_500, bal)

		got, err := bank.AssetOf(ctx, key("pool"))
		require.NoError(t, err)
		require.Equal(t, asset, got)
	})

	t.Run("deposit rejects an underfunded account", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		require.NoError(t, bank.Mint(ctx, key("creator"), asset, 100))
		require.NoError(t, bank.OpenPool(ctx, key("pool"), asset))
		err := bank.Deposit(ctx, key("pool"), key("creator"), 101)
		require.ErrorIs(t, err, ErrInsufficientFunds)

		bal, err := bank.Balance(ctx, key("pool"))
		require.NoError(t, err)
		require.Zero(t, bal)
	})

	t.Run("deposit rejects a foreign asset", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		require.NoError(t, bank.Mint(ctx, key("creator"), other, 100))
		require.NoError(t, bank.OpenPool(ctx, key("pool"), asset))
		err := bank.Deposit(ctx, key("pool"), key("creator"), 100)
		require.ErrorIs(t, err, drop.ErrAssetMismatch)
	})

	t.Run("pay out creates the destination with the pool asset", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		require.NoError(t, bank.Mint(ctx, key("creator"), asset, 1_000))
		require.NoError(t, bank.OpenPool(ctx, key("pool"), asset))
		require.NoError(t, bank.Deposit(ctx, key("pool"), key("creator"), 1_000))
		require.NoError(t, bank.PayOut(ctx, key("pool"), key("recipient"), 400))

		got, err := bank.AssetOf(ctx, key("recipient"))
		require.NoError(t, err)
		require.Equal(t, asset, got)

		bal, err := bank.Balance(ctx, key("pool"))
		require.NoError(t, err)
		require.EqualValues(t, 600, bal)
	})

	t.Run("pay out rejects an overdraft", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		require.NoError(t, bank.OpenPool(ctx, key("pool"), asset))
		err := bank.PayOut(ctx, key("pool"), key("recipient"), 1)
		require.ErrorIs(t, err, drop.ErrInsufficientPool)
	})

	t.Run("pay out rejects a destination holding another asset", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		require.NoError(t, bank.Mint(ctx, key("creator"), asset, 100))
		require.NoError(t, bank.Mint(ctx, key("recipient"), other, 1))
		require.NoError(t, bank.OpenPool(ctx, key("pool"), asset))
		require.NoError(t, bank.Deposit(ctx, key("pool"), key("creator"), 100))
		err := bank.PayOut(ctx, key("pool"), key("recipient"), 50)
		require.ErrorIs(t, err, drop.ErrAssetMismatch)
	})

	t.Run("close pool drains the remainder and retires the account", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		require.NoError(t, bank.Mint(ctx, key("creator"), asset, 1_000))
		require.NoError(t, bank.OpenPool(ctx, key("pool"), asset))
		require.NoError(t, bank.Deposit(ctx, key("pool"), key("creator"), 1_000))
		require.NoError(t, bank.PayOut(ctx, key("pool"), key("recipient"), 250))

		remainder, err := bank.ClosePool(ctx, key("pool"), key("creator"))
		require.NoError(t, err)
		require.EqualValues(t, 750, remainder)

		_, err = bank.Balance(ctx, key("pool"))
		require.ErrorIs(t, err, drop.ErrNotFound)

		// The creator got the remainder back on top of what was left.
		_, err = bank.AssetOf(ctx, key("creator"))
		require.NoError(t, err)
	})

	t.Run("close of an empty pool returns zero", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		require.NoError(t, bank.OpenPool(ctx, key("pool"), asset))
		remainder, err := bank.ClosePool(ctx, key("pool"), key("creator"))
		require.NoError(t, err)
		require.Zero(t, remainder)
	})

	t.Run("reopening a pool fails", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		require.NoError(t, bank.OpenPool(ctx, key("pool"), asset))
		require.Error(t, bank.OpenPool(ctx, key("pool"), asset))
	})

	t.Run("mint guards against balance overflow", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		require.NoError(t, bank.Mint(ctx, key("creator"), asset, math.MaxUint64))
		err := bank.Mint(ctx, key("creator"), asset, 1)
		require.ErrorIs(t, err, drop.ErrArithmeticOverflow)
	})

	t.Run("unknown accounts report not found", func(t *testing.T) {
		t.Parallel()

		bank := NewMemoryBank()
		ctx := t.Context()

		_, err := bank.Balance(ctx, key("missing"))
		require.ErrorIs(t, err, drop.ErrNotFound)
		_, err = bank.AssetOf(ctx, key("missing"))
		require.ErrorIs(t, err, drop.ErrNotFound)
		require.ErrorIs(t, bank.Deposit(ctx, key("missing"), key("creator"), 1), drop.ErrNotFound)
		require.ErrorIs(t, bank.PayOut(ctx, key("missing"), key("recipient"), 1), drop.ErrNotFound)
		_, err = bank.ClosePool(ctx, key("missing"), key("creator"))
		require.ErrorIs(t, err, drop.ErrNotFound)
	})
}
