// Package calllog persists an append-only record per proxied upstream call,
// consumed by external reporting.
package calllog

import (
	"time"

	"github.com/google/uuid"

	"github.com/modelgate/tokenpool/internal/usage"
)

// Record is one call outcome. Records are append-only and keyed by a
// generated identity unique per call.
type Record struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"createdAt"`
	SourceAddr  string        `json:"sourceAddr"`
	Model       string        `json:"model"`
	Duration    time.Duration `json:"duration"`
	HTTPStatus  int           `json:"httpStatus"`
	TokenSuffix string        `json:"tokenSuffix"`
	Usage       usage.Counts  `json:"usage"`
}

// NewRecord stamps a fresh record with a generated identity and the current
// time. The token secret is stored redacted to its suffix.
func NewRecord(sourceAddr, model string, duration time.Duration, httpStatus int, tokenSecret string, counts usage.Counts) Record {
	return Record{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		SourceAddr:  sourceAddr,
		Model:       model,
		Duration:    duration,
		HTTPStatus:  httpStatus,
		TokenSuffix: redactSecret(tokenSecret),
		Usage:       counts,
	}
}

func redactSecret(secret string) string {
	const visible = 8
	if len(secret) <= visible {
		return secret
	}
	return secret[len(secret)-visible:]
}
