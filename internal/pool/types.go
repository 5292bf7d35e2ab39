package pool

import (
	"math"
	"time"
)

// TokenType classifies a credential by the quota kinds it carries.
type TokenType string

const (
	// TokenTypeStandard tokens carry only the regular call quota.
	TokenTypeStandard TokenType = "standard"
	// TokenTypePremium tokens additionally carry a heavy-workload quota.
	TokenTypePremium TokenType = "premium"
)

// Valid reports whether the type is one of the known token types.
func (t TokenType) Valid() bool {
	return t == TokenTypeStandard || t == TokenTypePremium
}

// WorkloadClass categorizes an upstream request and determines which quota
// field and token types are eligible to serve it.
type WorkloadClass string

const (
	// WorkloadStandard requests prefer standard tokens and may fall back
	// to premium ones.
	WorkloadStandard WorkloadClass = "standard"
	// WorkloadHeavy requests require a premium token.
	WorkloadHeavy WorkloadClass = "heavy"
)

// Valid reports whether the class is one of the known workload classes.
func (c WorkloadClass) Valid() bool {
	return c == WorkloadStandard || c == WorkloadHeavy
}

const (
	// TokenStatusActive indicates the token is usable, subject to quota,
	// cooldown and failure-count checks.
	TokenStatusActive = "active"
	// TokenStatusExpired is terminal; expired tokens are never selected.
	TokenStatusExpired = "expired"
)

// FailureLimit is the recent-failure count at which a token is skipped by
// selection, and at which repeated client errors expire it for good.
const FailureLimit = 3

// Token is a credential for the rate-limited upstream API together with its
// quota counters and health state.
type Token struct {
	Secret            string     `json:"token"`
	Type              TokenType  `json:"type"`
	CreatedAt         time.Time  `json:"createdAt"`
	Quota             Quota      `json:"-"`
	HeavyQuota        Quota      `json:"-"`
	Status            string     `json:"status"`
	CooldownUntil     *time.Time `json:"cooldownUntil,omitempty"`
	FailureCount      int        `json:"failureCount"`
	LastFailureTime   *time.Time `json:"lastFailureTime,omitempty"`
	LastFailureReason string     `json:"lastFailureReason,omitempty"`
	Tags              []string   `json:"tags"`
	Note              string     `json:"note"`
}

// Cooling reports whether the token is inside a cooldown window at the
// given instant.
func (t *Token) Cooling(now time.Time) bool {
	return t.CooldownUntil != nil && now.Before(*t.CooldownUntil)
}

// StatusBucket is the derived display state of a token. Every non-expired
// token falls in exactly one of the active/cooling/exhausted/unused buckets
// at a fixed instant.
type StatusBucket string

const (
	BucketInvalid   StatusBucket = "invalid"
	BucketActive    StatusBucket = "active"
	BucketCooling   StatusBucket = "cooling"
	BucketExhausted StatusBucket = "exhausted"
	BucketUnused    StatusBucket = "unused"
)

// Valid reports whether the bucket is one of the known status buckets.
func (b StatusBucket) Valid() bool {
	switch b {
	case BucketInvalid, BucketActive, BucketCooling, BucketExhausted, BucketUnused:
		return true
	}
	return false
}

// Bucket derives the status bucket of the token at the given instant.
// Premium tokens count both quota fields as relevant: exhausted means every
// relevant field is at 0, unused means every relevant field is still at the
// unused sentinel.
func (t *Token) Bucket(now time.Time) StatusBucket {
	if t.Status == TokenStatusExpired {
		return BucketInvalid
	}
	if t.Cooling(now) {
		return BucketCooling
	}
	if t.Quota.Exhausted() && (t.Type != TokenTypePremium || t.HeavyQuota.Exhausted()) {
		return BucketExhausted
	}
	if t.Quota.Unused() && (t.Type != TokenTypePremium || t.HeavyQuota.Unused()) {
		return BucketUnused
	}
	return BucketActive
}

const (
	LimitReasonNone      = ""
	LimitReasonCooldown  = "cooldown"
	LimitReasonExhausted = "exhausted"
)

// statusLabels maps buckets to the human-readable labels shown by the
// admin UI.
var statusLabels = map[StatusBucket]string{
	BucketInvalid:   "Invalid",
	BucketActive:    "Active",
	BucketCooling:   "Cooling down",
	BucketExhausted: "Quota exhausted",
	BucketUnused:    "Unused",
}

// TokenView is the admin-facing projection of a token with derived display
// fields resolved at a fixed instant.
type TokenView struct {
	Secret            string       `json:"token"`
	Type              TokenType    `json:"type"`
	CreatedAt         time.Time    `json:"createdAt"`
	Quota             int          `json:"quota"`
	HeavyQuota        int          `json:"heavyQuota"`
	Status            StatusBucket `json:"status"`
	StatusLabel       string       `json:"statusLabel"`
	CooldownSeconds   int64        `json:"cooldownSeconds"`
	LimitReason       string       `json:"limitReason"`
	FailureCount      int          `json:"failureCount"`
	LastFailureTime   *time.Time   `json:"lastFailureTime,omitempty"`
	LastFailureReason string       `json:"lastFailureReason,omitempty"`
	Tags              []string     `json:"tags"`
	Note              string       `json:"note"`
}

// View resolves the token's derived display fields at the given instant.
func (t *Token) View(now time.Time) TokenView {
	bucket := t.Bucket(now)

	var cooldownSecs int64
	if bucket == BucketCooling {
		// Whole seconds, rounded up
		cooldownSecs = int64(math.Ceil(t.CooldownUntil.Sub(now).Seconds()))
	}

	reason := LimitReasonNone
	switch bucket {
	case BucketCooling:
		reason = LimitReasonCooldown
	case BucketExhausted:
		reason = LimitReasonExhausted
	}

	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}

	return TokenView{
		Secret:            t.Secret,
		Type:              t.Type,
		CreatedAt:         t.CreatedAt,
		Quota:             t.Quota.Raw(),
		HeavyQuota:        t.HeavyQuota.Raw(),
		Status:            bucket,
		StatusLabel:       statusLabels[bucket],
		CooldownSeconds:   cooldownSecs,
		LimitReason:       reason,
		FailureCount:      t.FailureCount,
		LastFailureTime:   t.LastFailureTime,
		LastFailureReason: t.LastFailureReason,
		Tags:              tags,
		Note:              t.Note,
	}
}
