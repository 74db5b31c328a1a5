package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestReaperSweepUsesConfiguredCutoffs(t *testing.T) {
	t.Parallel()

	var reapCutoff, settleCutoff time.Time
	reminders := &fakeReminderRepo{
		reapStuckClaimsFn: func(ctx context.Context, cutoff time.Time, now time.Time) (int64, error) {
			reapCutoff = cutoff
			return 2, nil
		},
		settleSentPendingFn: func(ctx context.Context, cutoff time.Time) ([]string, error) {
			settleCutoff = cutoff
			return []string{"r1"}, nil
		},
	}

	reaper, err := NewReaper(reminders, time.Minute, 10*time.Minute, 6*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReaper() error = %v", err)
	}
	now := time.Date(2026, time.March, 3, 14, 0, 0, 0, time.UTC)
	reaper.now = func() time.Time { return now }

	if err := reaper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if want := now.Add(-10 * time.Minute); !reapCutoff.Equal(want) {
		t.Fatalf("reap cutoff = %v, want %v", reapCutoff, want)
	}
	if want := now.Add(-6 * time.Hour); !settleCutoff.Equal(want) {
		t.Fatalf("settle cutoff = %v, want %v", settleCutoff, want)
	}
}

func TestReaperSweepPropagatesErrors(t *testing.T) {
	t.Parallel()

	reminders := &fakeReminderRepo{
		reapStuckClaimsFn: func(ctx context.Context, cutoff time.Time, now time.Time) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}

	reaper, err := NewReaper(reminders, 0, 0, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReaper() error = %v", err)
	}

	if err := reaper.Sweep(context.Background()); err == nil {
		t.Fatal("expected error from failed reap")
	}
}

func TestReaperStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	reminders := &fakeReminderRepo{}
	reaper, err := NewReaper(reminders, 10*time.Millisecond, time.Minute, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewReaper() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- reaper.Start(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after context cancellation")
	}
}

func TestNewReaperRequiresRepository(t *testing.T) {
	t.Parallel()

	if _, err := NewReaper(nil, time.Minute, time.Minute, time.Minute, zap.NewNop()); err == nil {
		t.Fatal("expected error for nil repository")
	}
}
