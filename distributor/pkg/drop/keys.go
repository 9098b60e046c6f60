package drop

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ProgramID anchors every derived record address. Deployments must agree
// on it the same way chains agree on a program id; records are never
// held at caller-chosen addresses.
var ProgramID = solana.PublicKeyFromBytes(programIDBytes())

func programIDBytes() []byte {
	sum := sha256.Sum256([]byte("merkledrop/distributor/v1"))
	return sum[:]
}

// Seed tags for the four record kinds.
const (
	seedCounter      = "owner_nonce"
	seedDistribution = "distributor"
	seedPool         = "vault"
	seedClaim        = "claim"
)

// CounterAddress derives the sequence-counter address for a creator.
func CounterAddress(creator solana.PublicKey) solana.PublicKey {
	return mustDerive([][]byte{[]byte(seedCounter), creator.Bytes()})
}

// DistributionAddress derives the address of the distribution identified
// by (creator, asset, seq).
func DistributionAddress(creator, asset solana.PublicKey, seq uint32) solana.PublicKey {
	var seqLE [4]byte
	binary.LittleEndian.PutUint32(seqLE[:], seq)
	return mustDerive([][]byte{[]byte(seedDistribution), asset.Bytes(), creator.Bytes(), seqLE[:]})
}

// PoolAddress derives the custodial pool address owned by a distribution.
func PoolAddress(distribution solana.PublicKey) solana.PublicKey {
	return mustDerive([][]byte{[]byte(seedPool), distribution.Bytes()})
}

// ClaimAddress derives the claim-record address for a recipient under a
// distribution.
func ClaimAddress(distribution, recipient solana.PublicKey) solana.PublicKey {
	return mustDerive([][]byte{[]byte(seedClaim), distribution.Bytes(), recipient.Bytes()})
}

// mustDerive panics only on statically invalid seeds (too many, or one
// longer than 32 bytes), which no caller in this package can produce.
func mustDerive(seeds [][]byte) solana.PublicKey {
	addr, _, err := solana.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		panic(fmt.Sprintf("derive record address: %v", err))
	}
	return addr
}
