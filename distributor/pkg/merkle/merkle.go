package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// LeafHash commits to one (recipient, ceiling) entitlement: SHA-256 over
// the 32-byte recipient key followed by the ceiling as 8 little-endian
// bytes. No domain-separation prefix is used for leaves or interior
// nodes; verifier and off-line builder must agree byte for byte.
func LeafHash(recipient solana.PublicKey, ceiling uint64) [32]byte {
	var buf [40]byte
	copy(buf[:32], recipient[:])
	binary.LittleEndian.PutUint64(buf[32:], ceiling)
	return sha256.Sum256(buf[:])
}

// Verify reports whether leaf belongs to the tree committed to by root,
// given the ordered sibling path from leaf to root. An empty proof is
// valid only for a single-leaf tree where leaf == root. A malformed
// proof is indistinguishable from a non-member; the result is false,
// never an error.
func Verify(proof [][32]byte, root, leaf [32]byte) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}

// hashPair combines two sibling digests with canonical ordering: the
// lexicographically smaller digest is hashed first, so verification does
// not depend on left/right position.
func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return sha256.Sum256(buf[:])
}
