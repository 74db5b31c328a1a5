package service

import (
	"context"
	"time"

	"github.com/careloop/reminder-engine/internal/adapter"
	"github.com/careloop/reminder-engine/internal/domain"
	"github.com/careloop/reminder-engine/internal/events"
	"github.com/careloop/reminder-engine/internal/repository"
)

type fakeReminderRepo struct {
	createFn                  func(ctx context.Context, r *domain.ReminderWorkItem) error
	getByIDFn                 func(ctx context.Context, orgID string, id string) (*domain.ReminderWorkItem, error)
	getByIdempotencyKeyFn     func(ctx context.Context, orgID string, key string) (*domain.ReminderWorkItem, error)
	listFn                    func(ctx context.Context, params repository.ListParams) ([]domain.ReminderWorkItem, int64, error)
	claimDueFn                func(ctx context.Context, orgID string, limit int, now time.Time) ([]domain.ReminderWorkItem, error)
	markSentPendingFn         func(ctx context.Context, id string) error
	scheduleRetryFn           func(ctx context.Context, id string, nextRunAt time.Time, lastError string) error
	markExhaustedFn           func(ctx context.Context, id string, lastError string) error
	markDoneFn                func(ctx context.Context, id string) error
	cancelFn                  func(ctx context.Context, orgID string, id string) error
	reapStuckClaimsFn         func(ctx context.Context, cutoff time.Time, now time.Time) (int64, error)
	settleSentPendingFn       func(ctx context.Context, cutoff time.Time) ([]string, error)
	findRecentByDestinationFn func(ctx context.Context, destination string, since time.Time) (*domain.ReminderWorkItem, error)
}

func (f *fakeReminderRepo) Create(ctx context.Context, r *domain.ReminderWorkItem) error {
	if f.createFn != nil {
		return f.createFn(ctx, r)
	}
	return nil
}

func (f *fakeReminderRepo) GetByID(ctx context.Context, orgID string, id string) (*domain.ReminderWorkItem, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, orgID, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReminderRepo) GetByIdempotencyKey(ctx context.Context, orgID string, key string) (*domain.ReminderWorkItem, error) {
	if f.getByIdempotencyKeyFn != nil {
		return f.getByIdempotencyKeyFn(ctx, orgID, key)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReminderRepo) List(ctx context.Context, params repository.ListParams) ([]domain.ReminderWorkItem, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeReminderRepo) ClaimDue(ctx context.Context, orgID string, limit int, now time.Time) ([]domain.ReminderWorkItem, error) {
	if f.claimDueFn != nil {
		return f.claimDueFn(ctx, orgID, limit, now)
	}
	return nil, nil
}

func (f *fakeReminderRepo) MarkSentPending(ctx context.Context, id string) error {
	if f.markSentPendingFn != nil {
		return f.markSentPendingFn(ctx, id)
	}
	return nil
}

func (f *fakeReminderRepo) ScheduleRetry(ctx context.Context, id string, nextRunAt time.Time, lastError string) error {
	if f.scheduleRetryFn != nil {
		return f.scheduleRetryFn(ctx, id, nextRunAt, lastError)
	}
	return nil
}

func (f *fakeReminderRepo) MarkExhausted(ctx context.Context, id string, lastError string) error {
	if f.markExhaustedFn != nil {
		return f.markExhaustedFn(ctx, id, lastError)
	}
	return nil
}

func (f *fakeReminderRepo) MarkDone(ctx context.Context, id string) error {
	if f.markDoneFn != nil {
		return f.markDoneFn(ctx, id)
	}
	return nil
}

func (f *fakeReminderRepo) Cancel(ctx context.Context, orgID string, id string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, orgID, id)
	}
	return nil
}

func (f *fakeReminderRepo) ReapStuckClaims(ctx context.Context, cutoff time.Time, now time.Time) (int64, error) {
	if f.reapStuckClaimsFn != nil {
		return f.reapStuckClaimsFn(ctx, cutoff, now)
	}
	return 0, nil
}

func (f *fakeReminderRepo) SettleSentPending(ctx context.Context, cutoff time.Time) ([]string, error) {
	if f.settleSentPendingFn != nil {
		return f.settleSentPendingFn(ctx, cutoff)
	}
	return nil, nil
}

func (f *fakeReminderRepo) FindRecentByDestination(ctx context.Context, destination string, since time.Time) (*domain.ReminderWorkItem, error) {
	if f.findRecentByDestinationFn != nil {
		return f.findRecentByDestinationFn(ctx, destination, since)
	}
	return nil, domain.ErrNotFound
}

type fakeDeliveryLogRepo struct {
	createFn                 func(ctx context.Context, e *domain.DeliveryLogEntry) error
	getByProviderMessageIDFn func(ctx context.Context, providerMessageID string) (*domain.DeliveryLogEntry, error)
	getByWorkItemIDFn        func(ctx context.Context, workItemID string) ([]domain.DeliveryLogEntry, error)
	openAttemptFn            func(ctx context.Context, workItemID string, attemptNumber int) (*domain.DeliveryLogEntry, error)
	updateStatusFn           func(ctx context.Context, id string, status domain.LogStatus, meta map[string]any) error
	markSentFn               func(ctx context.Context, id string, providerMessageID string, meta map[string]any) error
}

func (f *fakeDeliveryLogRepo) Create(ctx context.Context, e *domain.DeliveryLogEntry) error {
	if f.createFn != nil {
		return f.createFn(ctx, e)
	}
	if e.ID == "" {
		e.ID = "log-1"
	}
	return nil
}

func (f *fakeDeliveryLogRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.DeliveryLogEntry, error) {
	if f.getByProviderMessageIDFn != nil {
		return f.getByProviderMessageIDFn(ctx, providerMessageID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryLogRepo) GetByWorkItemID(ctx context.Context, workItemID string) ([]domain.DeliveryLogEntry, error) {
	if f.getByWorkItemIDFn != nil {
		return f.getByWorkItemIDFn(ctx, workItemID)
	}
	return nil, nil
}

func (f *fakeDeliveryLogRepo) OpenAttempt(ctx context.Context, workItemID string, attemptNumber int) (*domain.DeliveryLogEntry, error) {
	if f.openAttemptFn != nil {
		return f.openAttemptFn(ctx, workItemID, attemptNumber)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryLogRepo) UpdateStatus(ctx context.Context, id string, status domain.LogStatus, meta map[string]any) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, status, meta)
	}
	return nil
}

func (f *fakeDeliveryLogRepo) MarkSent(ctx context.Context, id string, providerMessageID string, meta map[string]any) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, providerMessageID, meta)
	}
	return nil
}

type fakeTemplateRepo struct {
	getByNameFn func(ctx context.Context, orgID string, name string, channel domain.Channel) (*domain.Template, error)
}

func (f *fakeTemplateRepo) GetByName(ctx context.Context, orgID string, name string, channel domain.Channel) (*domain.Template, error) {
	if f.getByNameFn != nil {
		return f.getByNameFn(ctx, orgID, name, channel)
	}
	return nil, domain.ErrNotFound
}

type fakeAdapter struct {
	channel domain.Channel
	sendFn  func(ctx context.Context, address string, renderedBody string) (*adapter.SendResult, error)
}

func (f *fakeAdapter) Channel() domain.Channel {
	return f.channel
}

func (f *fakeAdapter) Send(ctx context.Context, address string, renderedBody string) (*adapter.SendResult, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, address, renderedBody)
	}
	return &adapter.SendResult{ProviderMessageID: "pm-1", StatusCode: 202}, nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, orgID string, channel string) (bool, error)
	waitFn  func(ctx context.Context, orgID string, channel string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, orgID string, channel string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, orgID, channel)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, orgID string, channel string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, orgID, channel)
	}
	return nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, event events.StateChangeEvent) error
	published []events.StateChangeEvent
}

func (f *fakePublisher) Publish(ctx context.Context, event events.StateChangeEvent) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, event)
	}
	f.published = append(f.published, event)
	return nil
}

func (f *fakePublisher) Close() error { return nil }
