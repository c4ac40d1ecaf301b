package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wuwenbin0122/chatquota/internal/apperr"
	"github.com/wuwenbin0122/chatquota/internal/models"
)

type stubCounter struct {
	times []time.Time
	role  models.Role
	err   error
	calls int
}

func (s *stubCounter) CountMatching(_ context.Context, _ string, role models.Role, since time.Time) (int64, error) {
	s.calls++
	s.role = role
	if s.err != nil {
		return 0, s.err
	}
	var n int64
	for _, at := range s.times {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func TestCheckBurstAllowsThreeRejectsFourth(t *testing.T) {
	now := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)
	counter := &stubCounter{}
	limiter := New(counter, DefaultLimits(), fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.CheckBurst(ctx, "u1"); err != nil {
			t.Fatalf("message %d: unexpected rejection: %v", i+1, err)
		}
		counter.times = append(counter.times, now.Add(-time.Duration(i)*time.Second))
	}

	err := limiter.CheckBurst(ctx, "u1")
	if !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("expected 4th message to be rejected, got %v", err)
	}
	if counter.role != models.RoleUser {
		t.Fatalf("expected only user messages to be counted, got %s", counter.role)
	}
}

func TestCheckBurstIgnoresMessagesOutsideWindow(t *testing.T) {
	now := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)
	counter := &stubCounter{times: []time.Time{
		now.Add(-31 * time.Second),
		now.Add(-45 * time.Second),
		now.Add(-10 * time.Minute),
		now.Add(-29 * time.Second),
	}}
	limiter := New(counter, DefaultLimits(), fixedClock(now))

	if err := limiter.CheckBurst(context.Background(), "u1"); err != nil {
		t.Fatalf("expected only one message inside the window, got %v", err)
	}
}

func TestCheckDailyRejectsAfterTwentyToday(t *testing.T) {
	now := time.Date(2024, time.May, 10, 18, 0, 0, 0, time.UTC)
	counter := &stubCounter{}
	for i := 0; i < 20; i++ {
		counter.times = append(counter.times, now.Add(-time.Duration(i)*10*time.Minute))
	}
	limiter := New(counter, DefaultLimits(), fixedClock(now))

	if err := limiter.CheckDaily(context.Background(), "u1"); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("expected daily rejection, got %v", err)
	}

	counter.times = counter.times[:19]
	if err := limiter.CheckDaily(context.Background(), "u1"); err != nil {
		t.Fatalf("expected 20th message to pass, got %v", err)
	}
}

func TestTodayCountStartsAtUTCMidnight(t *testing.T) {
	now := time.Date(2024, time.May, 10, 0, 5, 0, 0, time.UTC)
	counter := &stubCounter{times: []time.Time{
		now.Add(-time.Minute),
		now.Add(-10 * time.Minute),
		now.Add(-time.Hour),
	}}
	limiter := New(counter, DefaultLimits(), fixedClock(now))

	count, err := limiter.TodayCount(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 message since midnight, got %d", count)
	}
}

func TestStartOfDayUsesUTCCalendar(t *testing.T) {
	local := time.Date(2024, time.May, 10, 1, 30, 0, 0, time.FixedZone("UTC+8", 8*3600))
	got := StartOfDay(local)
	want := time.Date(2024, time.May, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCheckPropagatesCounterErrors(t *testing.T) {
	counter := &stubCounter{err: apperr.StoreUnavailable("count messages", errors.New("timeout"))}
	limiter := New(counter, DefaultLimits())

	if err := limiter.CheckBurst(context.Background(), "u1"); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable from burst check, got %v", err)
	}
	if err := limiter.CheckDaily(context.Background(), "u1"); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable from daily check, got %v", err)
	}
}

func TestNewFillsZeroLimitsWithDefaults(t *testing.T) {
	limiter := New(&stubCounter{}, Limits{})
	if limiter.limits != DefaultLimits() {
		t.Fatalf("expected defaults, got %+v", limiter.limits)
	}
}
