package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquill-team/riskgate/internal/models"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "203.0.113.5")
	assert.ErrorIs(t, err, ErrNotFound)

	rec := models.NewAbuseRecord("203.0.113.5", "Mozilla/5.0", "fp-1")
	rec.VPN = true
	rec.RiskScore = 80
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.True(t, got.VPN)
	assert.Equal(t, 80, got.RiskScore)

	// The returned record is a copy; mutating it must not affect the store.
	got.Banned = true
	again, err := s.Get(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.False(t, again.Banned)
}

func TestMemoryStore_CreateRejectsInvalidRecord(t *testing.T) {
	s := NewMemoryStore()
	rec := models.NewAbuseRecord("203.0.113.5", "", "")
	rec.RiskScore = 150

	err := s.Create(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk score")
}

func TestMemoryStore_Update(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, models.NewAbuseRecord("203.0.113.5", "ua", "fp")))

	banned := true
	vpn := false
	score := 95
	require.NoError(t, s.Update(ctx, "203.0.113.5", Patch{Banned: &banned, VPN: &vpn, RiskScore: &score}))

	got, err := s.Get(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.True(t, got.Banned)
	assert.False(t, got.VPN)
	assert.Equal(t, 95, got.RiskScore)
	// Untouched fields survive.
	assert.Equal(t, "ua", got.UserAgent)

	assert.ErrorIs(t, s.Update(ctx, "198.51.100.1", Patch{Banned: &banned}), ErrNotFound)
}

func TestMemoryStore_Touch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := models.NewAbuseRecord("203.0.113.5", "ua", "")
	require.NoError(t, s.Create(ctx, rec))

	later := rec.LastActivity.Add(time.Minute)
	require.NoError(t, s.Touch(ctx, "203.0.113.5", later))

	got, err := s.Get(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(later))

	// Touch never moves the timestamp backwards.
	require.NoError(t, s.Touch(ctx, "203.0.113.5", later.Add(-time.Hour)))
	got, err = s.Get(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(later))
}

func TestMemoryStore_IncrementFreeUsage_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, models.NewAbuseRecord("203.0.113.5", "ua", "")))

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = s.IncrementFreeUsage(ctx, "203.0.113.5")
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.Equal(t, workers, got.FreeUsageCount, "no updates may be lost under concurrency")
}

func TestMemoryStore_PurgeStale(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stale := models.NewAbuseRecord("203.0.113.1", "ua", "")
	stale.LastActivity = time.Now().Add(-90 * 24 * time.Hour)
	require.NoError(t, s.Create(ctx, stale))

	bannedStale := models.NewAbuseRecord("203.0.113.2", "ua", "")
	bannedStale.LastActivity = time.Now().Add(-90 * 24 * time.Hour)
	bannedStale.Banned = true
	require.NoError(t, s.Create(ctx, bannedStale))

	fresh := models.NewAbuseRecord("203.0.113.3", "ua", "")
	require.NoError(t, s.Create(ctx, fresh))

	purged, err := s.PurgeStale(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	// Banned records are kept regardless of age.
	_, err = s.Get(ctx, "203.0.113.2")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "203.0.113.1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Accounts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acct := models.NewAccount("writer@example.com")
	acct.Credits = 5
	require.NoError(t, s.CreateAccount(ctx, acct))

	got, err := s.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Credits)

	require.NoError(t, s.IncrementFreeArticles(ctx, acct.ID))
	require.NoError(t, s.DeductCredits(ctx, acct.ID, 3))

	got, err = s.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FreeArticlesUsed)
	assert.Equal(t, 2, got.Credits)

	err = s.DeductCredits(ctx, acct.ID, 3)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	// Balance unchanged after the refused deduction.
	got, err = s.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Credits)
}

func TestMemoryStore_DeductCredits_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acct := models.NewAccount("writer@example.com")
	acct.Credits = 30
	require.NoError(t, s.CreateAccount(ctx, acct))

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = s.DeductCredits(ctx, acct.ID, 3)
		}()
	}
	wg.Wait()

	got, err := s.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Credits, "exactly ten deductions of three must succeed")
}
