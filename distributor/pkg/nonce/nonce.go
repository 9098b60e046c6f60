package nonce

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
)

// Allocator assigns per-creator campaign sequence numbers. Allocation is
// increment-then-return: a creator's counter starts at zero and the
// first allocation yields 1. A value is never reused, even for
// campaigns that were later torn down.
type Allocator interface {
	NextNonce(ctx context.Context, creator solana.PublicKey) (uint32, error)
}

// Memory is a process-local allocator. It backs the in-memory store and
// is safe for concurrent allocations on the same creator.
type Memory struct {
	mu       sync.Mutex
	counters map[solana.PublicKey]uint32
}

var _ Allocator = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{counters: make(map[solana.PublicKey]uint32)}
}

func (m *Memory) NextNonce(_ context.Context, creator solana.PublicKey) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.counters[creator]
	if cur == math.MaxUint32 {
		return 0, fmt.Errorf("sequence counter for %s is exhausted: %w", creator, drop.ErrArithmeticOverflow)
	}
	m.counters[creator] = cur + 1
	return cur + 1, nil
}
