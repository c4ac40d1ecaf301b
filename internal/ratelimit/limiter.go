// Package ratelimit enforces per-user message quotas derived from the
// conversation log.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/wuwenbin0122/chatquota/internal/apperr"
	"github.com/wuwenbin0122/chatquota/internal/models"
)

// Counter counts a user's messages of a role created at or after since.
type Counter interface {
	CountMatching(ctx context.Context, userID string, role models.Role, since time.Time) (int64, error)
}

type Limits struct {
	BurstWindow time.Duration
	BurstLimit  int64
	DailyLimit  int64
}

func DefaultLimits() Limits {
	return Limits{
		BurstWindow: 30 * time.Second,
		BurstLimit:  3,
		DailyLimit:  20,
	}
}

type Limiter struct {
	counter Counter
	limits  Limits
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func New(counter Counter, limits Limits, opts ...Option) *Limiter {
	defaults := DefaultLimits()
	if limits.BurstWindow <= 0 {
		limits.BurstWindow = defaults.BurstWindow
	}
	if limits.BurstLimit <= 0 {
		limits.BurstLimit = defaults.BurstLimit
	}
	if limits.DailyLimit <= 0 {
		limits.DailyLimit = defaults.DailyLimit
	}

	l := &Limiter{
		counter: counter,
		limits:  limits,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckBurst rejects the message about to be sent when it would be more than
// BurstLimit user messages inside the rolling BurstWindow.
func (l *Limiter) CheckBurst(ctx context.Context, userID string) error {
	since := l.now().UTC().Add(-l.limits.BurstWindow)
	count, err := l.counter.CountMatching(ctx, userID, models.RoleUser, since)
	if err != nil {
		return err
	}
	if count+1 > l.limits.BurstLimit {
		return apperr.NotAuthorized(fmt.Sprintf("more than %d messages in %s", l.limits.BurstLimit, l.limits.BurstWindow))
	}
	return nil
}

// CheckDaily rejects the message about to be sent when it would be more than
// DailyLimit user messages since UTC midnight.
func (l *Limiter) CheckDaily(ctx context.Context, userID string) error {
	count, err := l.TodayCount(ctx, userID)
	if err != nil {
		return err
	}
	if count+1 > l.limits.DailyLimit {
		return apperr.NotAuthorized(fmt.Sprintf("more than %d messages today", l.limits.DailyLimit))
	}
	return nil
}

// TodayCount is the raw number of user messages since UTC midnight.
func (l *Limiter) TodayCount(ctx context.Context, userID string) (int64, error) {
	return l.counter.CountMatching(ctx, userID, models.RoleUser, StartOfDay(l.now()))
}

// StartOfDay returns midnight UTC of t's UTC calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
