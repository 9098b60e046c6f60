package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Kind names the operation an event records.
type Kind string

const (
	KindDistributionCreated Kind = "distribution.created"
	KindWindowSet           Kind = "distribution.window_set"
	KindCommitmentSet       Kind = "distribution.commitment_set"
	KindClaimed             Kind = "distribution.claimed"
	KindWithdrawn           Kind = "distribution.withdrawn"
	KindClaimClosed         Kind = "claim_record.closed"
)

// Event is the flat record emitted after every successful operation.
// Fields that do not apply to a kind stay zero. Consumed by off-chain
// indexers; never required for correctness.
type Event struct {
	ID   string
	Kind Kind
	TS   time.Time

	Distribution solana.PublicKey
	Creator      solana.PublicKey
	Operator     solana.PublicKey
	Asset        solana.PublicKey
	Pool         solana.PublicKey
	Recipient    solana.PublicKey
	Seq          uint32

	// Amount is the headline value of the operation: the pending amount
	// for a claim, the remainder for a withdrawal, the record's
	// cumulative total for a record close.
	Amount uint64

	// Ceiling is the entitlement presented with a claim.
	Ceiling uint64

	// Released is the distribution's running total after the operation.
	Released uint64

	InitialPoolAmount uint64
	StartTS           int64
	EndTS             int64
	Root              [32]byte
}

// Sink consumes events. Emission is fire and forget: a sink must never
// block an operation or surface an error into its result.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Discard drops every event.
type Discard struct{}

var _ Sink = Discard{}

func (Discard) Emit(context.Context, Event) {}

// LogSink writes events to the logger.
type LogSink struct {
	log *slog.Logger
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, ev Event) {
	attrs := []any{
		"id", ev.ID,
		"kind", string(ev.Kind),
		"distribution", ev.Distribution.String(),
	}
	if !ev.Recipient.IsZero() {
		attrs = append(attrs, "recipient", ev.Recipient.String())
	}
	if ev.Amount > 0 {
		attrs = append(attrs, "amount", ev.Amount)
	}
	if ev.Kind == KindClaimed || ev.Kind == KindWithdrawn {
		attrs = append(attrs, "released", ev.Released)
	}
	if ev.Kind == KindWindowSet {
		attrs = append(attrs, "start_ts", ev.StartTS, "end_ts", ev.EndTS)
	}
	s.log.Info("distribution event", attrs...)
}

// MultiSink fans an event out to every sink, in order.
type MultiSink []Sink

var _ Sink = MultiSink(nil)

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
