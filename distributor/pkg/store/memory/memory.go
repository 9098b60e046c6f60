// Package memory provides the in-memory Store backend used by tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
	"github.com/malbeclabs/merkledrop/distributor/pkg/nonce"
	"github.com/malbeclabs/merkledrop/distributor/pkg/store"
)

type claimKey struct {
	distribution solana.PublicKey
	recipient    solana.PublicKey
}

type Store struct {
	*nonce.Memory

	mu            sync.RWMutex
	distributions map[solana.PublicKey]drop.Distribution
	claims        map[claimKey]drop.ClaimRecord
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		Memory:        nonce.NewMemory(),
		distributions: make(map[solana.PublicKey]drop.Distribution),
		claims:        make(map[claimKey]drop.ClaimRecord),
	}
}

func (s *Store) CreateDistribution(_ context.Context, dist drop.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.distributions[dist.Address]; ok {
		return fmt.Errorf("distribution %s already exists", dist.Address)
	}
	s.distributions[dist.Address] = dist
	return nil
}

func (s *Store) GetDistribution(_ context.Context, addr solana.PublicKey) (drop.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dist, ok := s.distributions[addr]
	if !ok {
		return drop.Distribution{}, fmt.Errorf("distribution %s: %w", addr, drop.ErrNotFound)
	}
	return dist, nil
}

func (s *Store) UpdateWindow(_ context.Context, addr solana.PublicKey, startTS, endTS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dist, ok := s.distributions[addr]
	if !ok {
		return fmt.Errorf("distribution %s: %w", addr, drop.ErrNotFound)
	}
	dist.StartTS = startTS
	dist.EndTS = endTS
	s.distributions[addr] = dist
	return nil
}

func (s *Store) UpdateRoot(_ context.Context, addr solana.PublicKey, root [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dist, ok := s.distributions[addr]
	if !ok {
		return fmt.Errorf("distribution %s: %w", addr, drop.ErrNotFound)
	}
	dist.Root = root
	s.distributions[addr] = dist
	return nil
}

func (s *Store) CommitClaim(_ context.Context, rec drop.ClaimRecord, released uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dist, ok := s.distributions[rec.Distribution]
	if !ok {
		return fmt.Errorf("distribution %s: %w", rec.Distribution, drop.ErrNotFound)
	}
	dist.Released = released
	s.distributions[rec.Distribution] = dist
	s.claims[claimKey{rec.Distribution, rec.Recipient}] = rec
	return nil
}

func (s *Store) DeleteDistribution(_ context.Context, addr solana.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.distributions[addr]; !ok {
		return fmt.Errorf("distribution %s: %w", addr, drop.ErrNotFound)
	}
	delete(s.distributions, addr)
	return nil
}

func (s *Store) GetClaim(_ context.Context, dist, recipient solana.PublicKey) (drop.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.claims[claimKey{dist, recipient}]
	if !ok {
		return drop.ClaimRecord{}, fmt.Errorf("claim record for %s in %s: %w", recipient, dist, drop.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) DeleteClaim(_ context.Context, dist, recipient solana.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{dist, recipient}
	if _, ok := s.claims[key]; !ok {
		return fmt.Errorf("claim record for %s in %s: %w", recipient, dist, drop.ErrNotFound)
	}
	delete(s.claims, key)
	return nil
}
