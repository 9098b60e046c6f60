package merkle

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Entry is one (recipient, ceiling) pair committed to by a tree.
type Entry struct {
	Recipient solana.PublicKey
	Ceiling   uint64
}

// Tree is an in-memory Merkle tree over entitlement entries, built the
// way Verify expects: sorted-pair hashing, with odd-width levels padded
// by duplicating the last node. Only off-line tooling and tests build
// trees; the service verifies.
type Tree struct {
	// levels[0] holds the leaves in entry order; the last level holds the
	// root. Levels are stored unpadded.
	levels [][][32]byte
}

// NewTree builds a tree over the given entries. Entry order fixes leaf
// indices and therefore proofs; the root itself is order-dependent too,
// so builder and publisher must agree on ordering.
func NewTree(entries []Entry) (*Tree, error) {
	if len(entries) == 0 {
		return nil, errors.New("at least one entry is required")
	}

	leaves := make([][32]byte, len(entries))
	for i, e := range entries {
		leaves[i] = LeafHash(e.Recipient, e.Ceiling)
	}

	levels := [][][32]byte{leaves}
	level := leaves
	for len(level) > 1 {
		if len(level)%2 == 1 {
			padded := make([][32]byte, len(level)+1)
			copy(padded, level)
			padded[len(level)] = level[len(level)-1]
			level = padded
		}
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}, nil
}

// Root returns the tree's commitment. A single-leaf tree's root is the
// leaf itself.
func (t *Tree) Root() [32]byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Len returns the number of committed entries.
func (t *Tree) Len() int {
	return len(t.levels[0])
}

// Proof returns the sibling path for the entry at index i, ordered leaf
// to root. For a single-leaf tree the proof is empty.
func (t *Tree) Proof(i int) ([][32]byte, error) {
	if i < 0 || i >= len(t.levels[0]) {
		return nil, fmt.Errorf("entry index %d out of range [0, %d)", i, len(t.levels[0]))
	}

	proof := make([][32]byte, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := i ^ 1
		if sibling >= len(level) {
			// Odd-width level: the last node is its own sibling.
			sibling = i
		}
		proof = append(proof, level[sibling])
		i /= 2
	}
	return proof, nil
}
