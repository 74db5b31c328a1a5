package service

import (
	"testing"
	"time"
)

func TestNextRetryAtDelaysAreMonotonic(t *testing.T) {
	t.Parallel()

	// Midday, well inside the sending window, so no clamping interferes.
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	wantDelays := []time.Duration{15 * time.Minute, 45 * time.Minute, 2 * time.Hour}
	previous := time.Duration(0)
	for attempt := 1; attempt <= 3; attempt++ {
		next, ok := NextRetryAt(attempt, now, time.UTC)
		if !ok {
			t.Fatalf("NextRetryAt(%d) exhausted, want retry", attempt)
		}

		delay := next.Sub(now)
		if delay != wantDelays[attempt-1] {
			t.Fatalf("attempt %d delay = %v, want %v", attempt, delay, wantDelays[attempt-1])
		}
		if delay <= previous {
			t.Fatalf("attempt %d delay %v not greater than previous %v", attempt, delay, previous)
		}
		previous = delay
	}
}

func TestNextRetryAtExhaustsAfterThirdAttempt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	if _, ok := NextRetryAt(4, now, time.UTC); ok {
		t.Fatal("NextRetryAt(4) should be exhausted")
	}
	if _, ok := NextRetryAt(0, now, time.UTC); ok {
		t.Fatal("NextRetryAt(0) should be rejected")
	}
}

func TestNextRetryAtClampsIntoSendingWindow(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}

	tests := []struct {
		name    string
		now     time.Time
		attempt int
		want    time.Time
	}{
		{
			name: "evening failure pushed to next morning",
			// 21:15 local + 15m = 21:30, outside the window.
			now:     time.Date(2026, time.June, 1, 21, 15, 0, 0, loc),
			attempt: 1,
			want:    time.Date(2026, time.June, 2, 8, 0, 0, 0, loc),
		},
		{
			name: "early morning failure pushed to same day open",
			// 05:00 local + 45m = 05:45, before open.
			now:     time.Date(2026, time.June, 1, 5, 0, 0, 0, loc),
			attempt: 2,
			want:    time.Date(2026, time.June, 1, 8, 0, 0, 0, loc),
		},
		{
			name: "midnight rollover lands next morning",
			// 23:30 local + 2h = 01:30 next day.
			now:     time.Date(2026, time.June, 1, 23, 30, 0, 0, loc),
			attempt: 3,
			want:    time.Date(2026, time.June, 2, 8, 0, 0, 0, loc),
		},
		{
			name:    "inside window untouched",
			now:     time.Date(2026, time.June, 1, 10, 0, 0, 0, loc),
			attempt: 1,
			want:    time.Date(2026, time.June, 1, 10, 15, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := NextRetryAt(tt.attempt, tt.now, loc)
			if !ok {
				t.Fatalf("NextRetryAt() exhausted, want retry")
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextRetryAt() = %v, want %v", got.In(loc), tt.want)
			}
		})
	}
}

func TestClampToSendingWindowNilLocationDefaultsUTC(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.June, 1, 22, 0, 0, 0, time.UTC)
	got := clampToSendingWindow(at, nil)
	want := time.Date(2026, time.June, 2, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("clampToSendingWindow() = %v, want %v", got, want)
	}
}
