package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelgate/tokenpool/internal/logger"
	"github.com/modelgate/tokenpool/internal/metrics"
)

// ErrNoEligibleToken is returned by Select when the pool has no eligible
// candidate for the requested workload class. It is a legitimate "try again
// later" outcome, not a fault.
var ErrNoEligibleToken = errors.New("no eligible token available")

// Allocator picks the best available token for a workload class. Selection
// is a pure read: quota decrement and outcome recording are the caller's
// responsibility, so concurrent selections may return the same token.
type Allocator struct {
	store  *Store
	logger *logger.Logger
}

// NewAllocator creates an allocator over the given store.
func NewAllocator(log *logger.Logger, store *Store) *Allocator {
	if log == nil {
		log = logger.Production()
	}
	return &Allocator{store: store, logger: log}
}

// Select returns the single best eligible token for the workload class, or
// ErrNoEligibleToken.
//
// Heavy requests are served only by premium tokens. Standard requests prefer
// standard tokens and fall back to premium ones, spending their regular
// (non-heavy) quota.
func (a *Allocator) Select(ctx context.Context, class WorkloadClass) (*Token, error) {
	now := time.Now()

	var tok *Token
	var err error

	switch class {
	case WorkloadHeavy:
		tok, err = a.store.SelectEligible(ctx, TokenTypePremium, WorkloadHeavy, now)
	case WorkloadStandard:
		tok, err = a.store.SelectEligible(ctx, TokenTypeStandard, WorkloadStandard, now)
		if errors.Is(err, ErrTokenNotFound) {
			tok, err = a.store.SelectEligible(ctx, TokenTypePremium, WorkloadStandard, now)
		}
	default:
		return nil, fmt.Errorf("unknown workload class: %q", class)
	}

	if errors.Is(err, ErrTokenNotFound) {
		metrics.SelectionsTotal.WithLabelValues(string(class), "miss").Inc()
		a.logger.Debug("No eligible token for workload class", "class", class)
		return nil, ErrNoEligibleToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select token: %w", err)
	}

	metrics.SelectionsTotal.WithLabelValues(string(class), "hit").Inc()
	a.logger.Debug("Selected token",
		"class", class,
		"token", RedactSecret(tok.Secret),
		"type", tok.Type,
	)
	return tok, nil
}
