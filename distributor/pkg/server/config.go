package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/merkledrop/distributor/pkg/distributor"
)

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second

	// DefaultMaxClockSkew bounds how far a signed request timestamp may
	// drift from server time, in either direction.
	DefaultMaxClockSkew = 5 * time.Minute

	// Default per-IP rate limit for the /api/v1 routes.
	DefaultRateBurst = 40

	maxBodyBytes = 1 << 20 // 1MB
)

// DefaultRateLimit allows 20 requests per second per IP.
var DefaultRateLimit = rate.Every(time.Second / 20)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger *slog.Logger
	Engine *distributor.Engine
	Clock  clockwork.Clock

	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// MaxClockSkew is the freshness bound applied to signed request
	// timestamps.
	MaxClockSkew time.Duration

	RateLimit rate.Limit
	RateBurst int

	VersionInfo VersionInfo

	// Ready reports readiness for /readyz. Nil means always ready.
	Ready func() bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxClockSkew <= 0 {
		cfg.MaxClockSkew = DefaultMaxClockSkew
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}
	return nil
}
