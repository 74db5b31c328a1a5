package repository

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/careloop/reminder-engine/internal/domain"
)

// DeliveryLogRepository owns DeliveryLogEntry persistence.
type DeliveryLogRepository interface {
	Create(ctx context.Context, e *domain.DeliveryLogEntry) error
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.DeliveryLogEntry, error)
	GetByWorkItemID(ctx context.Context, workItemID string) ([]domain.DeliveryLogEntry, error)

	// OpenAttempt returns the non-terminal entry for a given work item
	// attempt, if any. The batch runner probes it before dispatching so a
	// re-run after a partial crash does not double-send.
	OpenAttempt(ctx context.Context, workItemID string, attemptNumber int) (*domain.DeliveryLogEntry, error)

	// UpdateStatus overwrites status and merges meta. Terminal statuses are
	// only overwritten by reconciliation events for the same provider
	// message id, which is what every caller of this method is.
	UpdateStatus(ctx context.Context, id string, status domain.LogStatus, meta map[string]any) error

	// MarkSent records the provider message id once the provider accepts
	// the dispatch, moving the entry from QUEUED to SENT.
	MarkSent(ctx context.Context, id string, providerMessageID string, meta map[string]any) error
}

type GormDeliveryLogRepo struct {
	db *gorm.DB
}

func NewGormDeliveryLogRepo(db *gorm.DB) *GormDeliveryLogRepo {
	return &GormDeliveryLogRepo{db: db}
}

func (r *GormDeliveryLogRepo) Create(ctx context.Context, e *domain.DeliveryLogEntry) error {
	model := deliveryLogModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *deliveryLogModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryLogRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.DeliveryLogEntry, error) {
	var model DeliveryLogModel
	err := r.db.WithContext(ctx).
		Where("provider_message_id = ?", providerMessageID).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryLogModelToDomain(&model), nil
}

func (r *GormDeliveryLogRepo) GetByWorkItemID(ctx context.Context, workItemID string) ([]domain.DeliveryLogEntry, error) {
	var models []DeliveryLogModel
	err := r.db.WithContext(ctx).
		Where("work_item_id = ?", workItemID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.DeliveryLogEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *deliveryLogModelToDomain(&models[i]))
	}
	return entries, nil
}

func (r *GormDeliveryLogRepo) OpenAttempt(ctx context.Context, workItemID string, attemptNumber int) (*domain.DeliveryLogEntry, error) {
	var model DeliveryLogModel
	err := r.db.WithContext(ctx).
		Where("work_item_id = ? AND attempt_number = ? AND status IN ?",
			workItemID, attemptNumber,
			[]domain.LogStatus{domain.LogStatusQueued, domain.LogStatusSent}).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryLogModelToDomain(&model), nil
}

func (r *GormDeliveryLogRepo) UpdateStatus(ctx context.Context, id string, status domain.LogStatus, meta map[string]any) error {
	updates := map[string]any{"status": status}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err == nil {
			// Concatenate so callback meta lands next to the send-time
			// keys instead of replacing them.
			updates["meta"] = gorm.Expr("COALESCE(meta, '{}'::jsonb) || ?::jsonb", raw)
		}
	}

	result := r.db.WithContext(ctx).
		Model(&DeliveryLogModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeliveryLogRepo) MarkSent(ctx context.Context, id string, providerMessageID string, meta map[string]any) error {
	updates := map[string]any{
		"status":              domain.LogStatusSent,
		"provider_message_id": providerMessageID,
	}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err == nil {
			updates["meta"] = raw
		}
	}

	result := r.db.WithContext(ctx).
		Model(&DeliveryLogModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
