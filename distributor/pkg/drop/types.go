// Package drop holds the domain model shared by every distributor
// component: records, derived addresses, storage costs, fixed campaign
// parameters, and the failure codes operations raise.
package drop

import (
	"github.com/gagliardetto/solana-go"
)

const (
	// WindowDuration is the fixed length of the claim window in unix
	// seconds (14 days). SetWindow derives the end from the start; it is
	// never configurable per campaign.
	WindowDuration int64 = 14 * 24 * 60 * 60

	// MaxStartAhead bounds how far in the future a window start may be
	// scheduled, in unix seconds (90 days) measured from the time of the
	// call.
	MaxStartAhead int64 = 90 * 24 * 60 * 60
)

// Distribution is one proof-gated giveaway campaign. Identity is
// (Creator, Asset, Seq); Address and Pool are derived from it.
type Distribution struct {
	Address  solana.PublicKey
	Creator  solana.PublicKey
	Operator solana.PublicKey
	Asset    solana.PublicKey
	Pool     solana.PublicKey
	Seq      uint32

	// InitialPoolAmount is set once at open and never changes. Released
	// grows with each claim and is bounded by the live pool balance, not
	// by InitialPoolAmount.
	InitialPoolAmount uint64
	Released          uint64

	// StartTS and EndTS are unix seconds. StartTS == 0 means the window
	// was never set; EndTS is always StartTS + WindowDuration once set.
	StartTS int64
	EndTS   int64

	// Root is the current commitment. All-zero means unset.
	Root [32]byte

	// Rent is the storage deposit paid at creation, refunded to the
	// creator when the record is destroyed by withdraw.
	Rent uint64
}

// HasCommitment reports whether a root has been published.
func (d *Distribution) HasCommitment() bool {
	return d.Root != [32]byte{}
}

// WindowSet reports whether the claim window has been scheduled.
func (d *Distribution) WindowSet() bool {
	return d.StartTS > 0
}

// ClaimRecord tracks the cumulative amount released to one recipient
// under one distribution. Created lazily on the first successful claim.
type ClaimRecord struct {
	Address      solana.PublicKey
	Distribution solana.PublicKey
	Recipient    solana.PublicKey

	// Cumulative is monotonically non-decreasing for the record's
	// lifetime; a claim must present a ceiling strictly above it.
	Cumulative uint64

	// Rent is the storage deposit, refunded to the recipient on close.
	Rent uint64
}
