package pool_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/modelgate/tokenpool/internal/pool"
)

func TestQuotaEncoding(t *testing.T) {
	t.Run("RawRoundTrip", func(t *testing.T) {
		for _, raw := range []int{-1, 0, 1, 500} {
			assert.Equal(t, raw, pool.QuotaFromRaw(raw).Raw())
		}
	})

	t.Run("NegativeValuesCollapseToUnused", func(t *testing.T) {
		q := pool.QuotaFromRaw(-7)
		assert.True(t, q.Unused())
		assert.Equal(t, pool.QuotaUnused, q.Raw())
	})

	t.Run("Availability", func(t *testing.T) {
		assert.True(t, pool.QuotaFromRaw(-1).Available())
		assert.True(t, pool.QuotaFromRaw(3).Available())
		assert.False(t, pool.QuotaFromRaw(0).Available())
	})

	t.Run("ExhaustedIsKnownZero", func(t *testing.T) {
		assert.True(t, pool.QuotaFromRaw(0).Exhausted())
		assert.False(t, pool.QuotaFromRaw(-1).Exhausted())
		assert.False(t, pool.QuotaFromRaw(1).Exhausted())
	})
}

func TestTokenBucket(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		tok  pool.Token
		want pool.StatusBucket
	}{
		{
			name: "ExpiredIsInvalidRegardlessOfQuota",
			tok: pool.Token{Type: pool.TokenTypeStandard, Status: pool.TokenStatusExpired,
				Quota: pool.QuotaFromRaw(10)},
			want: pool.BucketInvalid,
		},
		{
			name: "CooldownWinsOverExhaustion",
			tok: pool.Token{Type: pool.TokenTypeStandard, Status: pool.TokenStatusActive,
				Quota: pool.QuotaFromRaw(0), CooldownUntil: &future},
			want: pool.BucketCooling,
		},
		{
			name: "ElapsedCooldownIsIgnored",
			tok: pool.Token{Type: pool.TokenTypeStandard, Status: pool.TokenStatusActive,
				Quota: pool.QuotaFromRaw(5), CooldownUntil: &past},
			want: pool.BucketActive,
		},
		{
			name: "StandardExhaustedIgnoresTheHeavyField",
			tok: pool.Token{Type: pool.TokenTypeStandard, Status: pool.TokenStatusActive,
				Quota: pool.QuotaFromRaw(0), HeavyQuota: pool.QuotaFromRaw(5)},
			want: pool.BucketExhausted,
		},
		{
			name: "PremiumExhaustedNeedsBothFieldsSpent",
			tok: pool.Token{Type: pool.TokenTypePremium, Status: pool.TokenStatusActive,
				Quota: pool.QuotaFromRaw(0), HeavyQuota: pool.QuotaFromRaw(5)},
			want: pool.BucketActive,
		},
		{
			name: "PremiumFullySpent",
			tok: pool.Token{Type: pool.TokenTypePremium, Status: pool.TokenStatusActive,
				Quota: pool.QuotaFromRaw(0), HeavyQuota: pool.QuotaFromRaw(0)},
			want: pool.BucketExhausted,
		},
		{
			name: "FreshStandardIsUnused",
			tok:  pool.Token{Type: pool.TokenTypeStandard, Status: pool.TokenStatusActive},
			want: pool.BucketUnused,
		},
		{
			name: "PremiumWithOneTouchedFieldIsNotUnused",
			tok: pool.Token{Type: pool.TokenTypePremium, Status: pool.TokenStatusActive,
				Quota: pool.QuotaFromRaw(10)},
			want: pool.BucketActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tok.Bucket(now))
		})
	}
}

func TestTokenView(t *testing.T) {
	now := time.Now()

	t.Run("CooldownSecondsRoundUp", func(t *testing.T) {
		until := now.Add(1500 * time.Millisecond)
		tok := pool.Token{Type: pool.TokenTypeStandard, Status: pool.TokenStatusActive,
			Quota: pool.QuotaFromRaw(5), CooldownUntil: &until}

		v := tok.View(now)
		assert.Equal(t, pool.BucketCooling, v.Status)
		assert.Equal(t, int64(2), v.CooldownSeconds)
		assert.Equal(t, pool.LimitReasonCooldown, v.LimitReason)
	})

	t.Run("RawQuotaEncodingIsExposed", func(t *testing.T) {
		tok := pool.Token{Type: pool.TokenTypePremium, Status: pool.TokenStatusActive,
			Quota: pool.QuotaFromRaw(7), HeavyQuota: pool.QuotaFromRaw(-1)}

		v := tok.View(now)
		assert.Equal(t, 7, v.Quota)
		assert.Equal(t, -1, v.HeavyQuota)
	})
}
