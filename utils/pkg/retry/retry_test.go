package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// timeoutErr implements net.Error with a message that matches none of
// the retryable patterns, so only the typed branch can classify it.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline passed" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

func TestMerkleDrop_Retry_Do(t *testing.T) {
	t.Parallel()

	fastCfg := Config{
		MaxAttempts: 3,
		BaseBackoff: 5 * time.Millisecond,
		MaxBackoff:  50 * time.Millisecond,
	}

	t.Run("first attempt succeeds", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := Do(t.Context(), DefaultConfig(), func() error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("transient failure recovers", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := Do(t.Context(), fastCfg, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("attempts are exhausted", func(t *testing.T) {
		t.Parallel()

		transient := errors.New("connection refused")
		attempts := 0
		err := Do(t.Context(), fastCfg, func() error {
			attempts++
			return transient
		})
		require.ErrorIs(t, err, transient)
		require.ErrorContains(t, err, "after 3 attempts")
		require.Equal(t, 3, attempts)
	})

	t.Run("non-retryable error fails fast", func(t *testing.T) {
		t.Parallel()

		fatal := errors.New("table missing")
		attempts := 0
		err := Do(t.Context(), fastCfg, func() error {
			attempts++
			return fatal
		})
		require.Same(t, fatal, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("cancelled context stops the backoff wait", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		attempts := 0
		err := Do(ctx, Config{MaxAttempts: 5, BaseBackoff: 5 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}, func() error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("broken pipe")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 2, attempts)
	})

	t.Run("waits between attempts", func(t *testing.T) {
		t.Parallel()

		cfg := Config{
			MaxAttempts: 3,
			BaseBackoff: 20 * time.Millisecond,
			MaxBackoff:  time.Second,
		}
		attempts := 0
		start := time.Now()
		err := Do(t.Context(), cfg, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("connection reset")
			}
			return nil
		})
		require.NoError(t, err)

		// Two backoff sleeps at the jitter floor: 20ms then 40ms.
		require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	})
}

func TestMerkleDrop_Retry_IsRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
		{"wrapped deadline", fmt.Errorf("flush: %w", context.DeadlineExceeded), false},
		{"typed net timeout", timeoutErr{}, true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9000: connect: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"native protocol hiccup", errors.New("unexpected packet [89] from server"), true},
		{"handshake", errors.New("handshake: database default does not exist"), true},
		{"schema error", errors.New("table missing"), false},
		{"query error", errors.New("syntax error at or near SELECT"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestMerkleDrop_Retry_Backoff(t *testing.T) {
	t.Parallel()

	t.Run("doubles and caps", func(t *testing.T) {
		t.Parallel()

		cfg := Config{BaseBackoff: 100 * time.Millisecond, MaxBackoff: 500 * time.Millisecond}
		cases := []struct {
			attempt  int
			min, max time.Duration
		}{
			{1, 100 * time.Millisecond, 200 * time.Millisecond},
			{2, 200 * time.Millisecond, 400 * time.Millisecond},
			{3, 250 * time.Millisecond, 500 * time.Millisecond}, // capped at max before jitter
		}
		for _, tc := range cases {
			for range 16 {
				got := backoff(cfg, tc.attempt)
				require.GreaterOrEqual(t, got, tc.min, "attempt %d", tc.attempt)
				require.LessOrEqual(t, got, tc.max, "attempt %d", tc.attempt)
			}
		}
	})

	t.Run("jitter varies", func(t *testing.T) {
		t.Parallel()

		cfg := Config{BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}
		seen := make(map[time.Duration]bool)
		for range 64 {
			seen[backoff(cfg, 2)] = true
		}
		require.Greater(t, len(seen), 4)
	})
}
