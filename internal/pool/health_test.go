package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/tokenpool/internal/pool"
)

func TestHealthTrackerRecordFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("RepeatedClientErrorsExpireTheToken", func(t *testing.T) {
		store := createTestStore(t)
		tracker := pool.NewHealthTracker(nil, store)

		_, err := store.BulkAdd(ctx, pool.TokenTypeStandard, []string{"sk-bad"})
		require.NoError(t, err)

		require.NoError(t, tracker.RecordFailure(ctx, "sk-bad", 404, "model not found"))
		require.NoError(t, tracker.RecordFailure(ctx, "sk-bad", 404, "model not found"))

		tok, err := store.Get(ctx, "sk-bad")
		require.NoError(t, err)
		assert.Equal(t, pool.TokenStatusActive, tok.Status)
		assert.Equal(t, 2, tok.FailureCount)

		require.NoError(t, tracker.RecordFailure(ctx, "sk-bad", 404, "model not found"))

		tok, err = store.Get(ctx, "sk-bad")
		require.NoError(t, err)
		assert.Equal(t, pool.TokenStatusExpired, tok.Status)
		assert.Equal(t, 3, tok.FailureCount)
	})

	t.Run("ServerErrorsNeverExpire", func(t *testing.T) {
		store := createTestStore(t)
		tracker := pool.NewHealthTracker(nil, store)

		_, err := store.BulkAdd(ctx, pool.TokenTypeStandard, []string{"sk-unlucky"})
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			require.NoError(t, tracker.RecordFailure(ctx, "sk-unlucky", 500, "internal error"))
		}

		tok, err := store.Get(ctx, "sk-unlucky")
		require.NoError(t, err)
		assert.Equal(t, pool.TokenStatusActive, tok.Status)
		assert.Equal(t, 5, tok.FailureCount)
	})

	t.Run("DiagnosticsCarryStatusAndMessage", func(t *testing.T) {
		store := createTestStore(t)
		tracker := pool.NewHealthTracker(nil, store)

		_, err := store.BulkAdd(ctx, pool.TokenTypeStandard, []string{"sk-diag"})
		require.NoError(t, err)

		require.NoError(t, tracker.RecordFailure(ctx, "sk-diag", 403, "forbidden"))

		tok, err := store.Get(ctx, "sk-diag")
		require.NoError(t, err)
		assert.Equal(t, "403: forbidden", tok.LastFailureReason)
		require.NotNil(t, tok.LastFailureTime)
		assert.WithinDuration(t, time.Now(), *tok.LastFailureTime, 5*time.Second)
	})

	t.Run("MissingToken", func(t *testing.T) {
		store := createTestStore(t)
		tracker := pool.NewHealthTracker(nil, store)

		err := tracker.RecordFailure(ctx, "sk-missing", 404, "nope")
		assert.ErrorIs(t, err, pool.ErrTokenNotFound)
	})
}

func TestHealthTrackerApplyCooldown(t *testing.T) {
	ctx := context.Background()

	cooldownOf := func(t *testing.T, store *pool.Store, secret string) time.Time {
		t.Helper()
		tok, err := store.Get(ctx, secret)
		require.NoError(t, err)
		require.NotNil(t, tok.CooldownUntil)
		return *tok.CooldownUntil
	}

	t.Run("RateLimitedWithBudgetRestsOneHour", func(t *testing.T) {
		store := createTestStore(t)
		tracker := pool.NewHealthTracker(nil, store)

		_, err := store.BulkAdd(ctx, pool.TokenTypeStandard, []string{"sk-429"})
		require.NoError(t, err)
		require.NoError(t, store.SetQuota(ctx, "sk-429", pool.QuotaFromRaw(10), pool.QuotaFromRaw(-1)))

		require.NoError(t, tracker.ApplyCooldown(ctx, "sk-429", 429))
		assert.WithinDuration(t, time.Now().Add(time.Hour), cooldownOf(t, store, "sk-429"), 5*time.Second)
	})

	t.Run("RateLimitedAndExhaustedRestsTenHours", func(t *testing.T) {
		store := createTestStore(t)
		tracker := pool.NewHealthTracker(nil, store)

		_, err := store.BulkAdd(ctx, pool.TokenTypeStandard, []string{"sk-broke"})
		require.NoError(t, err)
		require.NoError(t, store.SetQuota(ctx, "sk-broke", pool.QuotaFromRaw(0), pool.QuotaFromRaw(-1)))

		require.NoError(t, tracker.ApplyCooldown(ctx, "sk-broke", 429))
		assert.WithinDuration(t, time.Now().Add(10*time.Hour), cooldownOf(t, store, "sk-broke"), 5*time.Second)
	})

	t.Run("RateLimitedWhileUnusedCountsAsHavingBudget", func(t *testing.T) {
		store := createTestStore(t)
		tracker := pool.NewHealthTracker(nil, store)

		_, err := store.BulkAdd(ctx, pool.TokenTypeStandard, []string{"sk-fresh"})
		require.NoError(t, err)

		require.NoError(t, tracker.ApplyCooldown(ctx, "sk-fresh", 429))
		assert.WithinDuration(t, time.Now().Add(time.Hour), cooldownOf(t, store, "sk-fresh"), 5*time.Second)
	})

	t.Run("OtherStatusesGetTheShortBackoff", func(t *testing.T) {
		store := createTestStore(t)
		tracker := pool.NewHealthTracker(nil, store)

		_, err := store.BulkAdd(ctx, pool.TokenTypeStandard, []string{"sk-503"})
		require.NoError(t, err)

		require.NoError(t, tracker.ApplyCooldown(ctx, "sk-503", 503))
		assert.WithinDuration(t, time.Now().Add(30*time.Second), cooldownOf(t, store, "sk-503"), 5*time.Second)
	})

	t.Run("RateLimitedMissingToken", func(t *testing.T) {
		store := createTestStore(t)
		tracker := pool.NewHealthTracker(nil, store)

		err := tracker.ApplyCooldown(ctx, "sk-missing", 429)
		assert.ErrorIs(t, err, pool.ErrTokenNotFound)
	})
}
