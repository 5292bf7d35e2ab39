package pool

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelgate/tokenpool/internal/logger"
	"github.com/modelgate/tokenpool/internal/metrics"
)

const (
	// cooldownRateLimited rests a rate-limited token that still has budget.
	cooldownRateLimited = time.Hour
	// cooldownExhausted rests a rate-limited token whose quota is spent;
	// it is unlikely to gain capacity soon, so it sits out ten times longer.
	cooldownExhausted = 10 * time.Hour
	// cooldownDefault is the short backoff for transient non-2xx statuses.
	cooldownDefault = 30 * time.Second
)

// HealthTracker records per-call outcomes and drives cooldown windows and
// terminal expiry. Its two operations are independent: a single failing call
// may trigger both, either, or neither, depending on caller policy.
type HealthTracker struct {
	store  *Store
	logger *logger.Logger
}

// NewHealthTracker creates a health tracker over the given store.
func NewHealthTracker(log *logger.Logger, store *Store) *HealthTracker {
	if log == nil {
		log = logger.Production()
	}
	return &HealthTracker{store: store, logger: log}
}

// RecordFailure bumps the token's failure counter and diagnostics. Repeated
// client errors (4xx) expire the token once the counter reaches FailureLimit;
// server errors and network failures only ever increment the counter.
func (h *HealthTracker) RecordFailure(ctx context.Context, secret string, httpStatus int, message string) error {
	reason := fmt.Sprintf("%d: %s", httpStatus, message)

	if err := h.store.IncrementFailure(ctx, secret, time.Now(), reason); err != nil {
		return err
	}

	clientError := httpStatus >= http.StatusBadRequest && httpStatus < http.StatusInternalServerError
	if clientError {
		metrics.FailuresRecorded.WithLabelValues("client_error").Inc()
	} else {
		metrics.FailuresRecorded.WithLabelValues("server_error").Inc()
	}

	if !clientError {
		return nil
	}

	expired, err := h.store.ExpireAtFailureLimit(ctx, secret, FailureLimit)
	if err != nil {
		return err
	}
	if expired {
		metrics.TokensExpired.Inc()
		h.logger.Warn("Token expired after repeated client errors",
			"token", RedactSecret(secret),
			"status", httpStatus,
		)
	}
	return nil
}

// ApplyCooldown rests the token for a window starting now. Rate limiting
// (429) earns a long rest scaled by remaining quota; any other non-success
// status passed here earns a short default backoff. The stored deadline
// never moves backward.
func (h *HealthTracker) ApplyCooldown(ctx context.Context, secret string, httpStatus int) error {
	duration := cooldownDefault
	reason := "transient"

	if httpStatus == http.StatusTooManyRequests {
		tok, err := h.store.Get(ctx, secret)
		if err != nil {
			return err
		}
		if tok.Quota.Exhausted() {
			duration = cooldownExhausted
			reason = "rate_limited_exhausted"
		} else {
			duration = cooldownRateLimited
			reason = "rate_limited"
		}
	}

	if err := h.store.SetCooldown(ctx, secret, time.Now().Add(duration)); err != nil {
		return err
	}

	metrics.CooldownsApplied.WithLabelValues(reason).Inc()
	h.logger.Info("Applied cooldown",
		"token", RedactSecret(secret),
		"status", httpStatus,
		"duration", duration.String(),
	)
	return nil
}
