package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/careloop/reminder-engine/internal/adapter"
	"github.com/careloop/reminder-engine/internal/domain"
	"github.com/careloop/reminder-engine/internal/events"
	"github.com/careloop/reminder-engine/internal/observability"
	"github.com/careloop/reminder-engine/internal/repository"
)

// fallbackMatchWindow bounds the destination-based lookup for callbacks that
// carry no provider message id.
const fallbackMatchWindow = 24 * time.Hour

// Reconciler applies asynchronous provider status callbacks to the delivery
// log and settles the owning work items. It is idempotent: replaying a
// callback never regresses recorded state.
type Reconciler struct {
	reminders repository.ReminderRepository
	logs      repository.DeliveryLogRepository
	publisher events.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewReconciler(
	reminders repository.ReminderRepository,
	logs repository.DeliveryLogRepository,
	publisher events.Publisher,
	logger *zap.Logger,
) (*Reconciler, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder repository is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("delivery log repository is required")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		reminders: reminders,
		logs:      logs,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *Reconciler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// HandleCallback matches a normalized provider callback to a delivery log
// entry and applies the status. Unmatched callbacks are logged and dropped;
// the provider must always receive a success response.
func (s *Reconciler) HandleCallback(ctx context.Context, provider string, cb adapter.StatusCallback) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if !cb.Status.IsValid() {
		s.logger.Warn("callback with unknown status dropped",
			zap.String("provider", provider),
			zap.String("providerMessageId", cb.ProviderMessageID),
		)
		s.countCallback(provider, "unknown_status")
		return nil
	}

	entry, outcome := s.matchEntry(ctx, cb)
	if entry == nil {
		s.logger.Warn("callback did not match any delivery attempt",
			zap.String("provider", provider),
			zap.String("providerMessageId", cb.ProviderMessageID),
			zap.String("destination", cb.Destination),
		)
		s.countCallback(provider, "unmatched")
		return nil
	}

	if !statusAdvances(entry.Status, cb.Status) {
		s.countCallback(provider, "ignored")
		return nil
	}

	meta := map[string]any{"provider": provider}
	if len(cb.Raw) > 0 {
		meta["callback"] = cb.Raw
	}
	if err := s.logs.UpdateStatus(ctx, entry.ID, cb.Status, meta); err != nil {
		return fmt.Errorf("failed to apply callback status: %w", err)
	}

	s.logger.Info("delivery status reconciled",
		zap.String("provider", provider),
		zap.String("entryId", entry.ID),
		zap.String("status", cb.Status.String()),
		zap.String("match", outcome),
	)
	s.countCallback(provider, outcome)

	if cb.Status.IsTerminal() && entry.WorkItemID != nil {
		s.settleWorkItem(ctx, *entry.WorkItemID, entry)
	}

	return nil
}

// matchEntry resolves the delivery log entry a callback refers to. Primary
// key is the provider message id; the fallback matches the most recent
// attempt to the same destination inside fallbackMatchWindow.
func (s *Reconciler) matchEntry(ctx context.Context, cb adapter.StatusCallback) (*domain.DeliveryLogEntry, string) {
	if id := strings.TrimSpace(cb.ProviderMessageID); id != "" {
		entry, err := s.logs.GetByProviderMessageID(ctx, id)
		if err == nil {
			return entry, "matched"
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("provider message id lookup failed", zap.Error(err))
			return nil, ""
		}
	}

	destination := strings.TrimSpace(cb.Destination)
	if destination == "" {
		return nil, ""
	}

	since := s.now().UTC().Add(-fallbackMatchWindow)
	item, err := s.reminders.FindRecentByDestination(ctx, destination, since)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("destination fallback lookup failed", zap.Error(err))
		}
		return nil, ""
	}

	entries, err := s.logs.GetByWorkItemID(ctx, item.ID)
	if err != nil {
		return nil, ""
	}
	if len(entries) == 0 {
		// The callback outran the send-response commit. Attach a fresh entry
		// so the status is not lost.
		attempt := item.AttemptCount
		if attempt < 1 {
			attempt = 1
		}
		entry := &domain.DeliveryLogEntry{
			WorkItemID:    &item.ID,
			OrgID:         item.OrgID,
			AttemptNumber: attempt,
			Channel:       item.Channel,
			Destination:   item.Address,
			Status:        domain.LogStatusSent,
		}
		// NULL, not "", so an id-less entry can never satisfy a
		// provider-message-id lookup.
		if id := strings.TrimSpace(cb.ProviderMessageID); id != "" {
			entry.ProviderMessageID = &id
		}
		if err := s.logs.Create(ctx, entry); err != nil {
			s.logger.Error("failed to attach fallback delivery entry", zap.Error(err))
			return nil, ""
		}
		return entry, "matched_fallback"
	}
	// Entries are ordered by attempt; the callback concerns the latest one.
	return &entries[len(entries)-1], "matched_fallback"
}

func (s *Reconciler) settleWorkItem(ctx context.Context, workItemID string, entry *domain.DeliveryLogEntry) {
	err := s.reminders.MarkDone(ctx, workItemID)
	if errors.Is(err, domain.ErrConflict) {
		// Already settled, replayed callback.
		return
	}
	if err != nil {
		s.logger.Error("failed to settle reminder after terminal callback",
			zap.String("reminderId", workItemID), zap.Error(err))
		return
	}

	event := events.StateChangeEvent{
		ReminderID:   workItemID,
		OrgID:        entry.OrgID,
		Channel:      entry.Channel,
		Status:       domain.ItemStatusDone,
		AttemptCount: entry.AttemptNumber,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish state change event",
			zap.String("reminderId", workItemID), zap.Error(err))
	}
}

func (s *Reconciler) countCallback(provider string, outcome string) {
	if s.metrics == nil || outcome == "" {
		return
	}
	s.metrics.IncCallback(provider, outcome)
}

// statusAdvances enforces monotonic delivery statuses: terminal states are
// final and a repeated status is a no-op.
func statusAdvances(current domain.LogStatus, next domain.LogStatus) bool {
	if current == next {
		return false
	}
	if current.IsTerminal() {
		return false
	}
	if current == domain.LogStatusSent && next == domain.LogStatusQueued {
		return false
	}
	return true
}
