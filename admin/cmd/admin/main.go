package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/merkledrop/admin/internal/admin"
	"github.com/malbeclabs/merkledrop/distributor/pkg/clickhouse"
	"github.com/malbeclabs/merkledrop/distributor/pkg/events"
	"github.com/malbeclabs/merkledrop/distributor/pkg/store/postgres"
	"github.com/malbeclabs/merkledrop/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// PostgreSQL configuration
	pgHostFlag := flag.String("pg-host", "localhost", "PostgreSQL host (or set PG_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "PostgreSQL port (or set PG_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "", "PostgreSQL database name (or set PG_DATABASE env var)")
	pgUsernameFlag := flag.String("pg-username", "", "PostgreSQL username (or set PG_USERNAME env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set PG_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "PostgreSQL sslmode (or set PG_SSLMODE env var)")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Commands
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run PostgreSQL store migrations using goose")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the most recent PostgreSQL store migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show PostgreSQL store migration status")
	chMigrateFlag := flag.Bool("ch-migrate", false, "Run ClickHouse event table migrations using goose")
	chMigrateStatusFlag := flag.Bool("ch-migrate-status", false, "Show ClickHouse event table migration status")
	buildTreeFlag := flag.Bool("build-tree", false, "Build a commitment tree from an entitlements CSV")

	// build-tree options
	csvFlag := flag.String("csv", "", "Entitlements CSV (recipient,amount) for --build-tree")
	outFlag := flag.String("out", "", "Output JSON path for --build-tree")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// Override PostgreSQL flags with environment variables if set
	if envPgHost := os.Getenv("PG_HOST"); envPgHost != "" {
		*pgHostFlag = envPgHost
	}
	if envPgPort := os.Getenv("PG_PORT"); envPgPort != "" {
		*pgPortFlag = envPgPort
	}
	if envPgDatabase := os.Getenv("PG_DATABASE"); envPgDatabase != "" {
		*pgDatabaseFlag = envPgDatabase
	}
	if envPgUsername := os.Getenv("PG_USERNAME"); envPgUsername != "" {
		*pgUsernameFlag = envPgUsername
	}
	if envPgPassword := os.Getenv("PG_PASSWORD"); envPgPassword != "" {
		*pgPasswordFlag = envPgPassword
	}
	if envPgSSLMode := os.Getenv("PG_SSLMODE"); envPgSSLMode != "" {
		*pgSSLModeFlag = envPgSSLMode
	}

	// Override ClickHouse flags with environment variables if set
	if envClickhouseAddr := os.Getenv("CLICKHOUSE_ADDR_TCP"); envClickhouseAddr != "" {
		*clickhouseAddrFlag = envClickhouseAddr
	}
	if envClickhouseDatabase := os.Getenv("CLICKHOUSE_DATABASE"); envClickhouseDatabase != "" {
		*clickhouseDatabaseFlag = envClickhouseDatabase
	}
	if envClickhouseUsername := os.Getenv("CLICKHOUSE_USERNAME"); envClickhouseUsername != "" {
		*clickhouseUsernameFlag = envClickhouseUsername
	}
	if envClickhousePassword := os.Getenv("CLICKHOUSE_PASSWORD"); envClickhousePassword != "" {
		*clickhousePasswordFlag = envClickhousePassword
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}

	pgConnStr := func() (string, error) {
		cfg := postgres.PoolConfig{
			Host:     *pgHostFlag,
			Port:     *pgPortFlag,
			Database: *pgDatabaseFlag,
			Username: *pgUsernameFlag,
			Password: *pgPasswordFlag,
			SSLMode:  *pgSSLModeFlag,
		}
		if err := cfg.Validate(); err != nil {
			return "", fmt.Errorf("invalid postgres configuration: %w", err)
		}
		return cfg.ConnString(), nil
	}

	chMigrationConfig := clickhouse.MigrationConfig{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}

	// Execute commands
	if *pgMigrateFlag {
		connStr, err := pgConnStr()
		if err != nil {
			return err
		}
		return postgres.Up(context.Background(), log, connStr)
	}

	if *pgMigrateDownFlag {
		connStr, err := pgConnStr()
		if err != nil {
			return err
		}
		return postgres.Down(context.Background(), log, connStr)
	}

	if *pgMigrateStatusFlag {
		connStr, err := pgConnStr()
		if err != nil {
			return err
		}
		return postgres.Status(context.Background(), log, connStr)
	}

	if *chMigrateFlag {
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --ch-migrate")
		}
		return clickhouse.Up(context.Background(), log, chMigrationConfig, events.Migrations, events.MigrationsDir)
	}

	if *chMigrateStatusFlag {
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --ch-migrate-status")
		}
		return clickhouse.Status(context.Background(), log, chMigrationConfig, events.Migrations, events.MigrationsDir)
	}

	if *buildTreeFlag {
		if *csvFlag == "" {
			return fmt.Errorf("--csv is required for --build-tree")
		}
		if *outFlag == "" {
			return fmt.Errorf("--out is required for --build-tree")
		}
		return admin.BuildTree(log, *csvFlag, *outFlag)
	}

	return nil
}
