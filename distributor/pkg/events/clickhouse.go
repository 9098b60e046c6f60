package events

import (
	"context"
	"embed"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/merkledrop/distributor/pkg/clickhouse"
	"github.com/malbeclabs/merkledrop/distributor/pkg/metrics"
	"github.com/malbeclabs/merkledrop/utils/pkg/retry"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the SQL files.
const MigrationsDir = "migrations"

const (
	DefaultTable         = "distributor_events"
	DefaultBufferSize    = 1024
	DefaultFlushInterval = 2 * time.Second
	DefaultMaxBatch      = 256

	sinkStopTimeout = 5 * time.Second
)

type ClickHouseSinkConfig struct {
	Logger *slog.Logger
	Conn   clickhouse.Connection

	Table         string
	BufferSize    int
	FlushInterval time.Duration
	MaxBatch      int
	Retry         retry.Config
}

func (cfg *ClickHouseSinkConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Conn == nil {
		return fmt.Errorf("clickhouse connection is required")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// ClickHouseSink buffers events in memory and writes them to ClickHouse in
// batches from a background goroutine. Emit never blocks: when the buffer is
// full the event is dropped and counted.
type ClickHouseSink struct {
	cfg ClickHouseSinkConfig

	buf  chan Event
	done chan struct{}
}

var _ Sink = (*ClickHouseSink)(nil)

func NewClickHouseSink(cfg ClickHouseSinkConfig) (*ClickHouseSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate ClickHouse sink config: %w", err)
	}
	return &ClickHouseSink{
		cfg:  cfg,
		buf:  make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}, nil
}

// Start launches the background flush loop. It runs until ctx is cancelled,
// then drains the buffer with one final flush.
func (s *ClickHouseSink) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop waits for the flush loop to exit after its context is cancelled.
func (s *ClickHouseSink) Stop() {
	select {
	case <-s.done:
	case <-time.After(sinkStopTimeout):
		s.cfg.Logger.Warn("event sink stop timed out, continuing shutdown")
	}
}

func (s *ClickHouseSink) Emit(_ context.Context, ev Event) {
	metrics.EventsEmittedTotal.WithLabelValues(string(ev.Kind)).Inc()
	select {
	case s.buf <- ev:
	default:
		metrics.EventsDroppedTotal.Inc()
		s.cfg.Logger.Warn("event sink buffer full, dropping event", "kind", string(ev.Kind), "id", ev.ID)
	}
}

func (s *ClickHouseSink) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, s.cfg.MaxBatch)
	for {
		select {
		case ev := <-s.buf:
			batch = append(batch, ev)
			if len(batch) >= s.cfg.MaxBatch {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain anything still buffered and flush once more. The parent
			// context is gone, so the final write gets its own deadline.
			for {
				select {
				case ev := <-s.buf:
					batch = append(batch, ev)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), sinkStopTimeout)
				s.flush(flushCtx, batch)
				cancel()
			}
			return
		}
	}
}

func (s *ClickHouseSink) flush(ctx context.Context, batch []Event) {
	start := time.Now()
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		return s.insert(ctx, batch)
	})
	metrics.RecordEventFlush(len(batch), err)
	if err != nil {
		s.cfg.Logger.Error("failed to flush events to ClickHouse", "count", len(batch), "error", err)
		return
	}
	s.cfg.Logger.Debug("flushed events to ClickHouse", "count", len(batch), "duration", time.Since(start))
}

func (s *ClickHouseSink) insert(ctx context.Context, batch []Event) error {
	b, err := s.cfg.Conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", s.cfg.Table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer b.Close() // Always release the connection back to the pool

	now := time.Now().UTC()
	for _, ev := range batch {
		err := b.Append(
			ev.ID,
			string(ev.Kind),
			ev.TS,
			ev.Distribution.String(),
			ev.Creator.String(),
			ev.Operator.String(),
			ev.Asset.String(),
			ev.Pool.String(),
			ev.Recipient.String(),
			ev.Seq,
			ev.Amount,
			ev.Ceiling,
			ev.Released,
			ev.InitialPoolAmount,
			ev.StartTS,
			ev.EndTS,
			hex.EncodeToString(ev.Root[:]),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s: %w", ev.ID, err)
		}
	}

	if err := b.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}
