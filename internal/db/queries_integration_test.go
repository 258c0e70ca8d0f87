package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquill-team/riskgate/internal/ledger"
	"github.com/openquill-team/riskgate/internal/models"
)

// setupTestDB connects to the database named by TEST_DATABASE_URL and wipes
// test rows. Tests that need it are skipped when the variable is unset, so
// the unit suite stays runnable without Postgres.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database integration test")
	}

	dbConn, err := sql.Open("postgres", url)
	require.NoError(t, err, "Failed to open test database")

	require.NoError(t, dbConn.PingContext(context.Background()), "Failed to ping test database")

	for _, stmt := range []string{
		"DELETE FROM decision_log",
		"DELETE FROM abuse_records WHERE address LIKE '203.0.113.%'",
		"DELETE FROM accounts WHERE email LIKE '%@integration.test'",
	} {
		if _, err := dbConn.Exec(stmt); err != nil {
			t.Logf("Warning: cleanup failed: %v", err)
		}
	}

	return dbConn
}

func TestAbuseRecordQueries(t *testing.T) {
	dbConn := setupTestDB(t)
	defer dbConn.Close()

	queries := NewQueries(dbConn)
	ctx := context.Background()

	addr := "203.0.113.10"

	t.Run("get missing record returns ErrNotFound", func(t *testing.T) {
		_, err := queries.Get(ctx, "203.0.113.99")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("create and get round trip", func(t *testing.T) {
		rec := models.NewAbuseRecord(addr, "Mozilla/5.0 Chrome/126.0", "fp-abc123")
		rec.VPN = true
		rec.RiskScore = 80
		require.NoError(t, queries.Create(ctx, rec))

		got, err := queries.Get(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, addr, got.Address)
		assert.True(t, got.VPN)
		assert.Equal(t, 80, got.RiskScore)
		assert.False(t, got.Banned)
	})

	t.Run("create is idempotent per address", func(t *testing.T) {
		dup := models.NewAbuseRecord(addr, "other agent", "fp-other")
		require.NoError(t, queries.Create(ctx, dup))

		got, err := queries.Get(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, "fp-abc123", got.Fingerprint, "first sighting wins")
	})

	t.Run("counters increment atomically", func(t *testing.T) {
		require.NoError(t, queries.IncrementFreeUsage(ctx, addr))
		require.NoError(t, queries.IncrementFreeUsage(ctx, addr))
		require.NoError(t, queries.IncrementAccountsCreated(ctx, addr))

		got, err := queries.Get(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, 2, got.FreeUsageCount)
		assert.Equal(t, 1, got.AccountsCreated)
	})

	t.Run("touch never moves last activity backwards", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, queries.Touch(ctx, addr, now))
		require.NoError(t, queries.Touch(ctx, addr, now.Add(-time.Hour)))

		got, err := queries.Get(ctx, addr)
		require.NoError(t, err)
		assert.False(t, got.LastActivity.Before(now))
	})

	t.Run("update applies only patched fields", func(t *testing.T) {
		banned := true
		score := 100
		require.NoError(t, queries.Update(ctx, addr, ledger.Patch{
			Banned:    &banned,
			RiskScore: &score,
		}))

		got, err := queries.Get(ctx, addr)
		require.NoError(t, err)
		assert.True(t, got.Banned)
		assert.Equal(t, 100, got.RiskScore)
		assert.True(t, got.VPN, "unpatched flag survives")
	})

	t.Run("purge skips banned and fresh records", func(t *testing.T) {
		stale := models.NewAbuseRecord("203.0.113.20", "agent", "fp")
		require.NoError(t, queries.Create(ctx, stale))

		// Backdate both the unbanned record and the banned one from the
		// previous subtest past the cutoff.
		_, err := dbConn.ExecContext(ctx,
			"UPDATE abuse_records SET last_activity = NOW() - INTERVAL '200 days' WHERE address IN ($1, $2)",
			stale.Address, addr)
		require.NoError(t, err)

		purged, err := queries.PurgeStale(ctx, time.Now().AddDate(0, 0, -90))
		require.NoError(t, err)
		assert.Equal(t, int64(1), purged)

		_, err = queries.Get(ctx, stale.Address)
		assert.ErrorIs(t, err, ledger.ErrNotFound)

		// The banned record is past the cutoff too but must survive.
		_, err = queries.Get(ctx, addr)
		assert.NoError(t, err)
	})
}

func TestAccountQueries(t *testing.T) {
	dbConn := setupTestDB(t)
	defer dbConn.Close()

	queries := NewQueries(dbConn)
	ctx := context.Background()

	acct := models.NewAccount("writer@integration.test")
	acct.Credits = 5
	require.NoError(t, queries.CreateAccount(ctx, acct))

	t.Run("get missing account returns ErrNotFound", func(t *testing.T) {
		_, err := queries.GetAccount(ctx, uuid.New())
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("round trip", func(t *testing.T) {
		got, err := queries.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, acct.Email, got.Email)
		assert.Equal(t, 5, got.Credits)
		assert.Equal(t, 0, got.FreeArticlesUsed)
	})

	t.Run("free article counter increments", func(t *testing.T) {
		require.NoError(t, queries.IncrementFreeArticles(ctx, acct.ID))

		got, err := queries.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.FreeArticlesUsed)
	})

	t.Run("deduct within balance", func(t *testing.T) {
		require.NoError(t, queries.DeductCredits(ctx, acct.ID, 3))

		got, err := queries.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Credits)
	})

	t.Run("deduct past balance fails without mutating", func(t *testing.T) {
		err := queries.DeductCredits(ctx, acct.ID, 3)
		assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)

		got, err := queries.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Credits)
	})

	t.Run("deduct from missing account returns ErrNotFound", func(t *testing.T) {
		err := queries.DeductCredits(ctx, uuid.New(), 1)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

func TestDecisionLogQueries(t *testing.T) {
	dbConn := setupTestDB(t)
	defer dbConn.Close()

	queries := NewQueries(dbConn)
	ctx := context.Background()

	for i, decision := range []string{"allow", "verify", "block"} {
		entry := &DecisionLog{
			Address:  fmt.Sprintf("203.0.113.%d", 30+i),
			Score:    i * 40,
			Decision: decision,
			Reason:   "integration test",
		}
		require.NoError(t, queries.LogDecision(ctx, entry))
		assert.NotEqual(t, uuid.Nil, entry.ID, "LogDecision fills in the ID")
	}

	var count int
	require.NoError(t, dbConn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM decision_log WHERE reason = 'integration test'").Scan(&count))
	assert.Equal(t, 3, count)
}
