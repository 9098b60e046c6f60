package droptesting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/merkledrop/distributor/pkg/clickhouse"
	clickhousetesting "github.com/malbeclabs/merkledrop/distributor/pkg/clickhouse/testing"
	"github.com/malbeclabs/merkledrop/distributor/pkg/events"
)

// ClientInfo holds a test client and its database name.
type ClientInfo struct {
	Client   clickhouse.Client
	Database string
}

// NewClient creates a client bound to a fresh test database with the
// event schema applied.
func NewClient(t *testing.T, db *clickhousetesting.DB) clickhouse.Client {
	info := NewClientWithInfo(t, db)
	return info.Client
}

// NewClientWithInfo creates a test client and returns info including the database name.
func NewClientWithInfo(t *testing.T, db *clickhousetesting.DB) *ClientInfo {
	client, database, err := clickhousetesting.NewTestClient(t, db)
	require.NoError(t, err)

	log := NewLogger()
	err = clickhouse.Up(t.Context(), log, db.MigrationConfig(database), events.Migrations, events.MigrationsDir)
	require.NoError(t, err)

	return &ClientInfo{
		Client:   client,
		Database: database,
	}
}
