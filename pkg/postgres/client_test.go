package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient connects to the database named by FTS_TEST_POSTGRES_HOST and
// skips when none is configured or reachable.
func testClient(t *testing.T) *Client {
	t.Helper()
	host := os.Getenv("FTS_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("FTS_TEST_POSTGRES_HOST not set")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Postgres.Host = host
	c, err := New(cfg.Postgres)
	if err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEach(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	var got []int64
	err := c.Each(ctx, "SELECT g FROM generate_series(1, $1) AS g", func(rows *sql.Rows) error {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return err
		}
		got = append(got, n)
		return nil
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got)
	assert.NoError(t, c.Ping(ctx))
}

func TestNewUnreachable(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Postgres.Host = "127.0.0.1"
	cfg.Postgres.Port = 1
	cfg.Postgres.ConnMaxLifetime = time.Second

	_, err = New(cfg.Postgres)
	assert.Error(t, err)
}
