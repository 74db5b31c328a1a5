package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/careloop/reminder-engine/internal/repository"
)

const (
	defaultReaperInterval   = time.Minute
	defaultClaimTimeout     = 10 * time.Minute
	defaultSentPendingGrace = 6 * time.Hour
)

// Reaper periodically returns stuck CLAIMED items to the queue and settles
// SENT_PENDING items whose providers never sent a terminal callback.
type Reaper struct {
	reminders        repository.ReminderRepository
	logger           *zap.Logger
	interval         time.Duration
	claimTimeout     time.Duration
	sentPendingGrace time.Duration
	now              func() time.Time
}

func NewReaper(
	reminders repository.ReminderRepository,
	interval time.Duration,
	claimTimeout time.Duration,
	sentPendingGrace time.Duration,
	logger *zap.Logger,
) (*Reaper, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder repository is required")
	}
	if interval <= 0 {
		interval = defaultReaperInterval
	}
	if claimTimeout <= 0 {
		claimTimeout = defaultClaimTimeout
	}
	if sentPendingGrace <= 0 {
		sentPendingGrace = defaultSentPendingGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reaper{
		reminders:        reminders,
		logger:           logger,
		interval:         interval,
		claimTimeout:     claimTimeout,
		sentPendingGrace: sentPendingGrace,
		now:              time.Now,
	}, nil
}

func (s *Reaper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial sweep so a crash-restart recovers claims immediately.
	if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("reaper initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("reaper sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep performs one pass over stuck claims and overdue SENT_PENDING items.
func (s *Reaper) Sweep(ctx context.Context) error {
	now := s.now().UTC()

	reclaimed, err := s.reminders.ReapStuckClaims(ctx, now.Add(-s.claimTimeout), now)
	if err != nil {
		return fmt.Errorf("failed to reap stuck claims: %w", err)
	}
	if reclaimed > 0 {
		s.logger.Warn("returned stuck claims to queue", zap.Int64("count", reclaimed))
	}

	settled, err := s.reminders.SettleSentPending(ctx, now.Add(-s.sentPendingGrace))
	if err != nil {
		return fmt.Errorf("failed to settle sent-pending reminders: %w", err)
	}
	if len(settled) > 0 {
		s.logger.Info("settled sent-pending reminders without callback",
			zap.Int("count", len(settled)))
	}

	return nil
}
