package calllog_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/tokenpool/internal/calllog"
	"github.com/modelgate/tokenpool/internal/db"
	"github.com/modelgate/tokenpool/internal/usage"
)

func createTestStore(t *testing.T) *calllog.Store {
	t.Helper()
	ctx := context.Background()

	conn, err := db.OpenSQLite(ctx, db.SQLiteMemory)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = conn.Close() })

	store, err := calllog.NewStore(ctx, conn)
	require.NoError(t, err, "failed to create test store")
	return store
}

func TestNewRecord(t *testing.T) {
	counts := usage.Counts{TotalTokens: 12, InputTokens: 10, OutputTokens: 2}
	rec := calllog.NewRecord("10.0.0.1", "big-model", 1200*time.Millisecond, 200, "sk-abcdef1234567890", counts)

	assert.NotEmpty(t, rec.ID)
	assert.WithinDuration(t, time.Now(), rec.CreatedAt, 5*time.Second)
	assert.Equal(t, "34567890", rec.TokenSuffix, "secret must be stored redacted")
	assert.Equal(t, counts, rec.Usage)

	other := calllog.NewRecord("10.0.0.1", "big-model", time.Second, 200, "sk-abcdef1234567890", counts)
	assert.NotEqual(t, rec.ID, other.ID, "every record gets its own identity")
}

func TestStoreAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := calllog.NewRecord("10.0.0.1", fmt.Sprintf("model-%d", i), time.Second, 200, "sk-secret-token", usage.Counts{TotalTokens: i})
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Append(ctx, rec))
	}

	t.Run("NewestFirst", func(t *testing.T) {
		records, err := store.Recent(ctx, 3)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "model-4", records[0].Model)
		assert.Equal(t, "model-2", records[2].Model)
	})

	t.Run("RoundTripFields", func(t *testing.T) {
		records, err := store.Recent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, records, 1)

		rec := records[0]
		assert.Equal(t, "10.0.0.1", rec.SourceAddr)
		assert.Equal(t, 200, rec.HTTPStatus)
		assert.Equal(t, time.Second, rec.Duration)
		assert.Equal(t, "et-token", rec.TokenSuffix)
		assert.Equal(t, 4, rec.Usage.TotalTokens)
	})

	t.Run("DefaultLimit", func(t *testing.T) {
		records, err := store.Recent(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, records, 5)
	})
}
