package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/merkledrop/distributor/pkg/clickhouse"
	"github.com/malbeclabs/merkledrop/distributor/pkg/custody"
	"github.com/malbeclabs/merkledrop/distributor/pkg/distributor"
	"github.com/malbeclabs/merkledrop/distributor/pkg/events"
	"github.com/malbeclabs/merkledrop/distributor/pkg/ledger"
	"github.com/malbeclabs/merkledrop/distributor/pkg/metrics"
	"github.com/malbeclabs/merkledrop/distributor/pkg/server"
	"github.com/malbeclabs/merkledrop/distributor/pkg/store"
	"github.com/malbeclabs/merkledrop/distributor/pkg/store/memory"
	"github.com/malbeclabs/merkledrop/distributor/pkg/store/postgres"
	"github.com/malbeclabs/merkledrop/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	showVersionFlag := flag.Bool("version", false, "Print version and exit")
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	enablePprofFlag := flag.Bool("enable-pprof", false, "Enable pprof server")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on for the HTTP API (or set DISTRIBUTOR_LISTEN_ADDR env var)")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics (or set DISTRIBUTOR_METRICS_ADDR env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", server.DefaultShutdownTimeout, "Maximum time to wait for in-flight requests during graceful shutdown")
	rateLimitFlag := flag.Float64("rate-limit", 20, "API requests per second allowed per client IP")
	rateBurstFlag := flag.Int("rate-burst", server.DefaultRateBurst, "API request burst allowed per client IP")

	// Store configuration
	storeFlag := flag.String("store", "memory", "Backing store: 'memory' or 'postgres' (or set DISTRIBUTOR_STORE env var)")
	pgHostFlag := flag.String("pg-host", "localhost", "PostgreSQL host (or set PG_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "PostgreSQL port (or set PG_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "", "PostgreSQL database name (or set PG_DATABASE env var)")
	pgUsernameFlag := flag.String("pg-username", "", "PostgreSQL username (or set PG_USERNAME env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set PG_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "PostgreSQL sslmode (or set PG_SSLMODE env var)")
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run pending PostgreSQL migrations on startup")

	// ClickHouse event sink configuration; leaving the address empty keeps
	// the log-only sink.
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) for the event sink (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	flag.Parse()

	if *showVersionFlag {
		fmt.Printf("distributord %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logger.New(*verboseFlag)

	// Load a local .env when present; explicit environment wins below.
	_ = godotenv.Load()

	if env := os.Getenv("DISTRIBUTOR_LISTEN_ADDR"); env != "" {
		*listenAddrFlag = env
	}
	if env := os.Getenv("DISTRIBUTOR_METRICS_ADDR"); env != "" {
		*metricsAddrFlag = env
	}
	if env := os.Getenv("DISTRIBUTOR_STORE"); env != "" {
		*storeFlag = env
	}
	if env := os.Getenv("PG_HOST"); env != "" {
		*pgHostFlag = env
	}
	if env := os.Getenv("PG_PORT"); env != "" {
		*pgPortFlag = env
	}
	if env := os.Getenv("PG_DATABASE"); env != "" {
		*pgDatabaseFlag = env
	}
	if env := os.Getenv("PG_USERNAME"); env != "" {
		*pgUsernameFlag = env
	}
	if env := os.Getenv("PG_PASSWORD"); env != "" {
		*pgPasswordFlag = env
	}
	if env := os.Getenv("PG_SSLMODE"); env != "" {
		*pgSSLModeFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_ADDR_TCP"); env != "" {
		*clickhouseAddrFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_DATABASE"); env != "" {
		*clickhouseDatabaseFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_USERNAME"); env != "" {
		*clickhouseUsernameFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_PASSWORD"); env != "" {
		*clickhousePasswordFlag = env
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start pprof server if enabled
	if *enablePprofFlag {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	var st store.Store
	switch *storeFlag {
	case "memory":
		st = memory.New()
	case "postgres":
		poolCfg := postgres.PoolConfig{
			Host:     *pgHostFlag,
			Port:     *pgPortFlag,
			Database: *pgDatabaseFlag,
			Username: *pgUsernameFlag,
			Password: *pgPasswordFlag,
			SSLMode:  *pgSSLModeFlag,
		}
		if err := poolCfg.Validate(); err != nil {
			return fmt.Errorf("invalid postgres configuration: %w", err)
		}
		if *pgMigrateFlag {
			if err := postgres.Up(ctx, log, poolCfg.ConnString()); err != nil {
				return err
			}
		}
		pool, err := postgres.NewPool(ctx, log, poolCfg.ConnString())
		if err != nil {
			return err
		}
		defer pool.Close()
		pgStore, err := postgres.New(postgres.Config{Logger: log, Pool: pool})
		if err != nil {
			return err
		}
		st = pgStore
	default:
		return fmt.Errorf("unknown store %q (want 'memory' or 'postgres')", *storeFlag)
	}

	var sink events.Sink = events.NewLogSink(log)
	if *clickhouseAddrFlag != "" {
		chClient, err := clickhouse.NewClient(ctx, log,
			*clickhouseAddrFlag, *clickhouseDatabaseFlag, *clickhouseUsernameFlag, *clickhousePasswordFlag, *clickhouseSecureFlag)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer chClient.Close()

		conn, err := chClient.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to get ClickHouse connection: %w", err)
		}
		chSink, err := events.NewClickHouseSink(events.ClickHouseSinkConfig{
			Logger: log,
			Conn:   conn,
		})
		if err != nil {
			return err
		}
		chSink.Start(ctx)
		defer chSink.Stop()
		sink = events.MultiSink{sink, chSink}
	}

	bank := custody.NewMemoryBank()

	led, err := ledger.New(ledger.Config{
		Logger: log,
		Store:  st,
		Events: sink,
	})
	if err != nil {
		return err
	}

	engine, err := distributor.New(distributor.Config{
		Logger: log,
		Store:  st,
		Ledger: led,
		Bank:   bank,
		Events: sink,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		Engine:          engine,
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		RateLimit:       rate.Limit(*rateLimitFlag),
		RateBurst:       *rateBurstFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
	})
	if err != nil {
		return err
	}

	log.Info("starting distributor",
		"version", version,
		"commit", commit,
		"store", *storeFlag,
		"listen_addr", *listenAddrFlag,
	)

	g, gctx := errgroup.WithContext(ctx)

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

		metricsListener, err := net.Listen("tcp", *metricsAddrFlag)
		if err != nil {
			return fmt.Errorf("failed to start prometheus metrics listener: %w", err)
		}
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Handler: metricsMux}

		g.Go(func() error {
			log.Info("prometheus metrics server listening", "address", metricsListener.Addr().String())
			if err := metricsSrv.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return srv.Run(gctx)
	})

	return g.Wait()
}
