package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/careloop/reminder-engine/internal/address"
	"github.com/careloop/reminder-engine/internal/domain"
	"github.com/careloop/reminder-engine/internal/events"
	"github.com/careloop/reminder-engine/internal/repository"
)

// EnqueueService admits reminder work items into the persisted queue.
type EnqueueService struct {
	reminders repository.ReminderRepository
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewEnqueueService(
	reminders repository.ReminderRepository,
	publisher events.Publisher,
	logger *zap.Logger,
) (*EnqueueService, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder repository is required")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EnqueueService{
		reminders: reminders,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Enqueue validates, normalizes, and persists a new work item in SCHEDULED
// state. A repeated idempotency key returns the already-stored item instead
// of an error.
func (s *EnqueueService) Enqueue(ctx context.Context, item *domain.ReminderWorkItem) (*domain.ReminderWorkItem, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.prepareForEnqueue(item); err != nil {
		return nil, err
	}

	if err := s.reminders.Create(ctx, item); err != nil {
		existing, resolved, resolveErr := s.resolveIdempotencyConflict(ctx, err, item.OrgID, item.IdempotencyKey)
		if resolveErr != nil {
			return nil, resolveErr
		}
		if resolved {
			return existing, nil
		}
		return nil, err
	}

	s.publishStateChange(ctx, item)
	return item, nil
}

func (s *EnqueueService) GetByID(ctx context.Context, orgID string, id string) (*domain.ReminderWorkItem, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, fmt.Errorf("%w: org id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: reminder id is required", domain.ErrValidation)
	}
	return s.reminders.GetByID(ctx, strings.TrimSpace(orgID), strings.TrimSpace(id))
}

func (s *EnqueueService) List(
	ctx context.Context,
	params repository.ListParams,
) ([]domain.ReminderWorkItem, int64, error) {
	if strings.TrimSpace(params.OrgID) == "" {
		return nil, 0, fmt.Errorf("%w: org id is required", domain.ErrValidation)
	}
	return s.reminders.List(ctx, params)
}

// Cancel withdraws a SCHEDULED reminder. Items already claimed or past
// dispatch cannot be canceled.
func (s *EnqueueService) Cancel(ctx context.Context, orgID string, id string) error {
	if strings.TrimSpace(orgID) == "" {
		return fmt.Errorf("%w: org id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: reminder id is required", domain.ErrValidation)
	}

	if err := s.reminders.Cancel(ctx, strings.TrimSpace(orgID), strings.TrimSpace(id)); err != nil {
		return err
	}

	item, err := s.reminders.GetByID(ctx, strings.TrimSpace(orgID), strings.TrimSpace(id))
	if err == nil {
		s.publishStateChange(ctx, item)
	}
	return nil
}

func (s *EnqueueService) prepareForEnqueue(item *domain.ReminderWorkItem) error {
	if item == nil {
		return fmt.Errorf("%w: reminder is required", domain.ErrValidation)
	}

	item.OrgID = strings.TrimSpace(item.OrgID)
	item.Address = address.Normalize(item.Channel, item.Address)
	item.IdempotencyKey = normalizeOptionalString(item.IdempotencyKey)
	item.TemplateRef = normalizeOptionalString(item.TemplateRef)
	item.Body = normalizeOptionalString(item.Body)
	item.Timezone = strings.TrimSpace(item.Timezone)

	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	item.Status = domain.ItemStatusScheduled
	item.AttemptCount = 0
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = domain.DefaultMaxAttempts
	}
	item.LastError = nil
	item.ClaimedAt = nil

	if item.NextRunAt == nil {
		now := s.now().UTC()
		item.NextRunAt = &now
	}

	if err := item.Validate(); err != nil {
		return err
	}

	if !address.IsValid(item.Channel, item.Address) {
		return fmt.Errorf("%w: address %q is not valid for channel %s", domain.ErrValidation, item.Address, item.Channel)
	}

	return nil
}

func (s *EnqueueService) resolveIdempotencyConflict(
	ctx context.Context,
	createErr error,
	orgID string,
	idempotencyKey *string,
) (*domain.ReminderWorkItem, bool, error) {
	if idempotencyKey == nil || strings.TrimSpace(*idempotencyKey) == "" {
		return nil, false, nil
	}
	if !isUniqueViolationError(createErr) {
		return nil, false, nil
	}

	existing, err := s.reminders.GetByIdempotencyKey(ctx, orgID, strings.TrimSpace(*idempotencyKey))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing reminder after idempotency conflict: %w", err)
	}
	s.logger.Info("idempotency conflict resolved",
		zap.String("existingId", existing.ID),
		zap.String("orgId", orgID),
		zap.String("idempotencyKey", *idempotencyKey),
	)
	return existing, true, nil
}

func (s *EnqueueService) publishStateChange(ctx context.Context, item *domain.ReminderWorkItem) {
	if item == nil {
		return
	}

	event := events.StateChangeEvent{
		ReminderID:   item.ID,
		OrgID:        item.OrgID,
		Channel:      item.Channel,
		Status:       item.Status,
		AttemptCount: item.AttemptCount,
		OccurredAt:   s.now().UTC(),
	}
	if item.LastError != nil {
		event.LastError = *item.LastError
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish state change event",
			zap.String("reminderId", item.ID),
			zap.String("status", item.Status.String()),
			zap.Error(err),
		)
	}
}

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
