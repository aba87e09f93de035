package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/metrics"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// failoverState tracks whether the primary backend is considered down.
type failoverState struct {
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func (s *failoverState) usePrimary() bool {
	if !s.isDown.Load() {
		return true
	}
	// Try to recover after 1 minute
	return time.Since(time.Unix(0, s.lastCheck.Load())) > recoveryInterval
}

func (s *failoverState) markDown() {
	s.isDown.Store(true)
	s.lastCheck.Store(time.Now().UnixNano())
}

func (s *failoverState) markUp() {
	s.isDown.Store(false)
}

// FailoverSlotLocker always takes the in-process lock first and then the
// distributed one. While the distributed backend is failing the local lock alone
// serializes this replica.
type FailoverSlotLocker struct {
	primary  domain.SlotLocker
	fallback domain.SlotLocker
	logger   *zerolog.Logger
	state    failoverState
}

func NewFailoverSlotLocker(primary, fallback domain.SlotLocker, logger *zerolog.Logger) *FailoverSlotLocker {
	return &FailoverSlotLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *FailoverSlotLocker) Lock(ctx context.Context, key string) (func(), error) {
	releaseLocal, err := l.fallback.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	if !l.state.usePrimary() {
		metrics.IncLockFailover()
		return releaseLocal, nil
	}

	releasePrimary, err := l.primary.Lock(ctx, key)
	if err == nil {
		l.state.markUp()
		return func() {
			releasePrimary()
			releaseLocal()
		}, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		releaseLocal()
		return nil, err
	}

	l.logger.Error().Err(err).Str("slot", key).Msg("Distributed slot lock failed, falling back to in-process lock")
	l.state.markDown()
	metrics.IncLockFailover()
	return releaseLocal, nil
}

type FailoverRateLimiter struct {
	primary  domain.RateLimiter
	fallback domain.RateLimiter
	logger   *zerolog.Logger
	state    failoverState
}

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.state.usePrimary() {
		allowed, err := r.primary.Allow(ctx, key, limit, window)
		if err == nil {
			r.state.markUp()
			return allowed, nil
		}
		r.logger.Error().Err(err).Msg("Primary rate limiter failed, falling back to memory")
		r.state.markDown()
	}

	return r.fallback.Allow(ctx, key, limit, window)
}
