package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/careloop/reminder-engine/internal/domain"
)

// ListParams filters the tenant-scoped queue inspection listing.
type ListParams struct {
	OrgID    string
	Status   *domain.ItemStatus
	Channel  *domain.Channel
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// ReminderRepository owns ReminderWorkItem persistence. All state changes go
// through conditional updates; there is no read-then-write path.
type ReminderRepository interface {
	Create(ctx context.Context, r *domain.ReminderWorkItem) error
	GetByID(ctx context.Context, orgID string, id string) (*domain.ReminderWorkItem, error)
	GetByIdempotencyKey(ctx context.Context, orgID string, key string) (*domain.ReminderWorkItem, error)
	List(ctx context.Context, params ListParams) ([]domain.ReminderWorkItem, int64, error)

	// ClaimDue atomically selects up to limit due items and transitions them
	// to CLAIMED in the same statement. Two overlapping invocations can never
	// claim the same item.
	ClaimDue(ctx context.Context, orgID string, limit int, now time.Time) ([]domain.ReminderWorkItem, error)

	MarkSentPending(ctx context.Context, id string) error
	ScheduleRetry(ctx context.Context, id string, nextRunAt time.Time, lastError string) error
	MarkExhausted(ctx context.Context, id string, lastError string) error
	MarkDone(ctx context.Context, id string) error
	Cancel(ctx context.Context, orgID string, id string) error

	// ReapStuckClaims returns CLAIMED items older than cutoff to SCHEDULED,
	// treating a stuck claim as a crashed runner.
	ReapStuckClaims(ctx context.Context, cutoff time.Time, now time.Time) (int64, error)

	// SettleSentPending marks SENT_PENDING items untouched since cutoff as
	// DONE and returns their ids, for channels without delivery confirmation.
	SettleSentPending(ctx context.Context, cutoff time.Time) ([]string, error)

	// FindRecentByDestination returns the most recently created reminder for
	// a destination within a trailing window, for callback fallback matching.
	FindRecentByDestination(ctx context.Context, destination string, since time.Time) (*domain.ReminderWorkItem, error)
}

type GormReminderRepo struct {
	db *gorm.DB
}

func NewGormReminderRepo(db *gorm.DB) *GormReminderRepo {
	return &GormReminderRepo{db: db}
}

func (r *GormReminderRepo) Create(ctx context.Context, item *domain.ReminderWorkItem) error {
	model := reminderModelFromDomain(item)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if item != nil {
		*item = *reminderModelToDomain(model)
	}
	return nil
}

func (r *GormReminderRepo) GetByID(ctx context.Context, orgID string, id string) (*domain.ReminderWorkItem, error) {
	var model ReminderModel
	err := r.db.WithContext(ctx).
		First(&model, "id = ? AND org_id = ?", id, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reminderModelToDomain(&model), nil
}

func (r *GormReminderRepo) GetByIdempotencyKey(ctx context.Context, orgID string, key string) (*domain.ReminderWorkItem, error) {
	var model ReminderModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND idempotency_key = ?", orgID, key).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reminderModelToDomain(&model), nil
}

func (r *GormReminderRepo) List(ctx context.Context, params ListParams) ([]domain.ReminderWorkItem, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("org_id = ?", params.OrgID)

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []ReminderModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	items := make([]domain.ReminderWorkItem, 0, len(models))
	for i := range models {
		items = append(items, *reminderModelToDomain(&models[i]))
	}

	return items, total, nil
}

// claimDueSQL is the serialization point of the whole pipeline: selection and
// the transition to CLAIMED happen in one statement, and SKIP LOCKED keeps
// overlapping runner invocations from ever touching the same rows.
const claimDueSQL = `
UPDATE reminders
SET status = ?, claimed_at = ?, updated_at = ?
WHERE id IN (
	SELECT id FROM reminders
	WHERE status IN ? AND next_run_at <= ? AND (? = '' OR org_id = ?)
	ORDER BY next_run_at ASC
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING *`

func (r *GormReminderRepo) ClaimDue(ctx context.Context, orgID string, limit int, now time.Time) ([]domain.ReminderWorkItem, error) {
	if limit < 1 {
		return nil, nil
	}

	claimable := []domain.ItemStatus{domain.ItemStatusScheduled, domain.ItemStatusFailed}

	var models []ReminderModel
	err := r.db.WithContext(ctx).
		Raw(claimDueSQL, domain.ItemStatusClaimed, now, now, claimable, now, orgID, orgID, limit).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}

	items := make([]domain.ReminderWorkItem, 0, len(models))
	for i := range models {
		items = append(items, *reminderModelToDomain(&models[i]))
	}

	return items, nil
}

func (r *GormReminderRepo) MarkSentPending(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND status = ?", id, domain.ItemStatusClaimed).
		Updates(map[string]any{
			"status":        domain.ItemStatusSentPending,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"claimed_at":    nil,
			"next_run_at":   nil,
			"last_error":    nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormReminderRepo) ScheduleRetry(ctx context.Context, id string, nextRunAt time.Time, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND status = ?", id, domain.ItemStatusClaimed).
		Updates(map[string]any{
			"status":        domain.ItemStatusFailed,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"next_run_at":   nextRunAt,
			"claimed_at":    nil,
			"last_error":    lastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormReminderRepo) MarkExhausted(ctx context.Context, id string, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND status = ?", id, domain.ItemStatusClaimed).
		Updates(map[string]any{
			"status":        domain.ItemStatusExhausted,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"next_run_at":   nil,
			"claimed_at":    nil,
			"last_error":    lastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormReminderRepo) MarkDone(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND status = ?", id, domain.ItemStatusSentPending).
		Update("status", domain.ItemStatusDone)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormReminderRepo) Cancel(ctx context.Context, orgID string, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND org_id = ? AND status = ?", id, orgID, domain.ItemStatusScheduled).
		Update("status", domain.ItemStatusCanceled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormReminderRepo) ReapStuckClaims(ctx context.Context, cutoff time.Time, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("status = ? AND claimed_at < ?", domain.ItemStatusClaimed, cutoff).
		Updates(map[string]any{
			"status":      domain.ItemStatusScheduled,
			"claimed_at":  nil,
			"next_run_at": now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

const settleSentPendingSQL = `
UPDATE reminders
SET status = ?, updated_at = ?
WHERE status = ? AND updated_at < ?
RETURNING id`

func (r *GormReminderRepo) SettleSentPending(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Raw(settleSentPendingSQL, domain.ItemStatusDone, time.Now().UTC(), domain.ItemStatusSentPending, cutoff).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormReminderRepo) FindRecentByDestination(ctx context.Context, destination string, since time.Time) (*domain.ReminderWorkItem, error) {
	var model ReminderModel
	err := r.db.WithContext(ctx).
		Where("address = ? AND created_at >= ?", destination, since).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reminderModelToDomain(&model), nil
}
