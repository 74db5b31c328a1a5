package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/careloop/reminder-engine/internal/adapter"
	"github.com/careloop/reminder-engine/internal/address"
	"github.com/careloop/reminder-engine/internal/domain"
	"github.com/careloop/reminder-engine/internal/events"
	"github.com/careloop/reminder-engine/internal/observability"
	"github.com/careloop/reminder-engine/internal/ratelimit"
	"github.com/careloop/reminder-engine/internal/repository"
	"github.com/careloop/reminder-engine/internal/template"
)

const (
	minRunnerConcurrency = 1
	defaultBatchLimit    = 100
)

// BatchRunner claims due work items and dispatches them through channel
// adapters. Every item leaves a run in a well-defined state; a failure on one
// item never aborts the rest of the batch.
type BatchRunner struct {
	reminders   repository.ReminderRepository
	logs        repository.DeliveryLogRepository
	templates   repository.TemplateRepository
	adapters    adapter.Registry
	rateLimiter ratelimit.RateLimiter
	publisher   events.Publisher
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

// RunReport summarizes one batch run.
type RunReport struct {
	Claimed   int `json:"claimed"`
	Sent      int `json:"sent"`
	Retried   int `json:"retried"`
	Exhausted int `json:"exhausted"`
	Skipped   int `json:"skipped"`
}

func NewBatchRunner(
	reminders repository.ReminderRepository,
	logs repository.DeliveryLogRepository,
	templates repository.TemplateRepository,
	adapters adapter.Registry,
	rateLimiter ratelimit.RateLimiter,
	publisher events.Publisher,
	concurrency int,
	logger *zap.Logger,
) (*BatchRunner, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder repository is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("delivery log repository is required")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one channel adapter is required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if concurrency < minRunnerConcurrency {
		concurrency = minRunnerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchRunner{
		reminders:   reminders,
		logs:        logs,
		templates:   templates,
		adapters:    adapters,
		rateLimiter: rateLimiter,
		publisher:   publisher,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *BatchRunner) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// RunBatch claims up to limit due items (all organizations when orgID is
// empty) and processes them with bounded parallelism.
func (s *BatchRunner) RunBatch(ctx context.Context, orgID string, limit int) (*RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = defaultBatchLimit
	}

	claimed, err := s.reminders.ClaimDue(ctx, strings.TrimSpace(orgID), limit, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to claim due reminders: %v", domain.ErrStoreUnavailable, err)
	}

	report := &RunReport{Claimed: len(claimed)}
	if len(claimed) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range claimed {
		item := claimed[i]
		g.Go(func() error {
			outcome := s.processItem(groupCtx, &item)

			mu.Lock()
			switch outcome {
			case outcomeSent:
				report.Sent++
			case outcomeRetried:
				report.Retried++
			case outcomeExhausted:
				report.Exhausted++
			case outcomeSkipped:
				report.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}

	// Item errors are absorbed into the report; Wait only observes ctx.
	_ = g.Wait()

	s.logger.Info("batch run completed",
		zap.Int("claimed", report.Claimed),
		zap.Int("sent", report.Sent),
		zap.Int("retried", report.Retried),
		zap.Int("exhausted", report.Exhausted),
		zap.Int("skipped", report.Skipped),
	)

	return report, nil
}

type itemOutcome int

const (
	outcomeSkipped itemOutcome = iota
	outcomeSent
	outcomeRetried
	outcomeExhausted
)

func (s *BatchRunner) processItem(ctx context.Context, item *domain.ReminderWorkItem) itemOutcome {
	channelName := strings.ToLower(item.Channel.String())
	if s.metrics != nil {
		s.metrics.IncRunnerInFlight(channelName)
		defer s.metrics.DecRunnerInFlight(channelName)
	}

	attemptNumber := item.AttemptCount + 1

	// A surviving open log row means a previous run crashed after handing the
	// attempt to the provider. Settle instead of re-sending.
	if open, err := s.logs.OpenAttempt(ctx, item.ID, attemptNumber); err == nil && open != nil {
		s.logger.Warn("open delivery attempt found, settling without re-send",
			zap.String("reminderId", item.ID),
			zap.Int("attempt", attemptNumber),
			zap.String("logStatus", open.Status.String()),
		)
		if err := s.reminders.MarkSentPending(ctx, item.ID); err != nil {
			s.logger.Error("failed to settle reminder with open attempt",
				zap.String("reminderId", item.ID), zap.Error(err))
			return outcomeSkipped
		}
		return outcomeSkipped
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Error("failed to probe open attempts",
			zap.String("reminderId", item.ID), zap.Error(err))
		return outcomeSkipped
	}

	if !address.IsValid(item.Channel, item.Address) {
		return s.exhaust(ctx, item, "invalid_address",
			fmt.Sprintf("address %q is not valid for channel %s", item.Address, item.Channel))
	}

	body, resolveErr := s.resolveBody(ctx, item)
	if resolveErr != nil {
		return s.exhaust(ctx, item, "template_error", resolveErr.Error())
	}

	channelAdapter, ok := s.adapters.For(item.Channel)
	if !ok {
		return s.exhaust(ctx, item, "no_adapter",
			fmt.Sprintf("no adapter registered for channel %s", item.Channel))
	}

	if err := s.rateLimiter.Wait(ctx, item.OrgID, channelName); err != nil {
		// Typically context cancellation mid-batch. No provider call was
		// made, so the item stays CLAIMED and the reaper returns it to the
		// queue without burning an attempt.
		s.logger.Warn("rate limiter wait aborted",
			zap.String("reminderId", item.ID), zap.Error(err))
		return outcomeSkipped
	}

	entry := &domain.DeliveryLogEntry{
		WorkItemID:    &item.ID,
		OrgID:         item.OrgID,
		AttemptNumber: attemptNumber,
		Channel:       item.Channel,
		Destination:   item.Address,
		Status:        domain.LogStatusQueued,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		// Same as above: nothing was sent yet, leave the claim for the reaper.
		s.logger.Error("failed to create delivery log entry",
			zap.String("reminderId", item.ID), zap.Error(err))
		return outcomeSkipped
	}

	sendStart := s.now()
	result, sendErr := channelAdapter.Send(ctx, item.Address, body)
	if s.metrics != nil {
		s.metrics.ObserveSendDuration(channelName, s.now().Sub(sendStart))
	}

	if sendErr == nil {
		meta := map[string]any{}
		if result != nil {
			if result.ProviderStatus != "" {
				meta["providerStatus"] = result.ProviderStatus
			}
			if result.StatusCode != 0 {
				meta["statusCode"] = result.StatusCode
			}
		}
		providerMessageID := ""
		if result != nil {
			providerMessageID = result.ProviderMessageID
		}
		if err := s.logs.MarkSent(ctx, entry.ID, providerMessageID, meta); err != nil {
			s.logger.Error("failed to mark delivery log entry sent",
				zap.String("reminderId", item.ID), zap.Error(err))
		}
		if err := s.reminders.MarkSentPending(ctx, item.ID); err != nil {
			s.logger.Error("failed to mark reminder sent_pending",
				zap.String("reminderId", item.ID), zap.Error(err))
			return outcomeSkipped
		}
		if s.metrics != nil {
			s.metrics.IncReminderSent(channelName)
		}
		s.publishTransition(ctx, item, domain.ItemStatusSentPending, attemptNumber, "")
		return outcomeSent
	}

	if err := s.logs.UpdateStatus(ctx, entry.ID, domain.LogStatusFailed, map[string]any{
		"error": sendErr.Error(),
	}); err != nil {
		s.logger.Error("failed to mark delivery log entry failed",
			zap.String("reminderId", item.ID), zap.Error(err))
	}

	return s.retryOrExhaust(ctx, item, attemptNumber, sendErr.Error(), adapter.IsTransient(sendErr))
}

// resolveBody produces the final message text, either from the inline body or
// by rendering the referenced template. Unresolvable templates and missing
// variables are permanent failures.
func (s *BatchRunner) resolveBody(ctx context.Context, item *domain.ReminderWorkItem) (string, error) {
	if item.Body != nil && strings.TrimSpace(*item.Body) != "" {
		return *item.Body, nil
	}

	if item.TemplateRef == nil || strings.TrimSpace(*item.TemplateRef) == "" {
		return "", fmt.Errorf("reminder has neither inline body nor template reference")
	}
	if s.templates == nil {
		return "", fmt.Errorf("template %q referenced but no template store configured", *item.TemplateRef)
	}

	tpl, err := s.templates.GetByName(ctx, item.OrgID, *item.TemplateRef, item.Channel)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("template %q not found for channel %s", *item.TemplateRef, item.Channel)
		}
		return "", fmt.Errorf("failed to load template %q: %w", *item.TemplateRef, err)
	}

	rendered := template.Render(tpl.Body, item.Vars)
	if len(rendered.Missing) > 0 {
		return "", fmt.Errorf("template %q is missing variables: %s",
			*item.TemplateRef, strings.Join(rendered.Missing, ", "))
	}

	return rendered.Text, nil
}

func (s *BatchRunner) retryOrExhaust(
	ctx context.Context,
	item *domain.ReminderWorkItem,
	attemptNumber int,
	lastError string,
	transient bool,
) itemOutcome {
	channelName := strings.ToLower(item.Channel.String())

	maxAttempts := item.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	if transient && attemptNumber < maxAttempts {
		nextRunAt, ok := NextRetryAt(attemptNumber, s.now().UTC(), item.Location())
		if ok {
			if err := s.reminders.ScheduleRetry(ctx, item.ID, nextRunAt, lastError); err != nil {
				s.logger.Error("failed to schedule retry",
					zap.String("reminderId", item.ID), zap.Error(err))
				return outcomeSkipped
			}
			if s.metrics != nil {
				s.metrics.IncRetryScheduled(channelName)
			}
			s.publishTransition(ctx, item, domain.ItemStatusFailed, attemptNumber, lastError)
			return outcomeRetried
		}
	}

	reason := "permanent_error"
	if transient {
		reason = "retry_exhausted"
	}
	return s.exhaustWithReason(ctx, item, attemptNumber, reason, lastError)
}

// exhaust terminates an item before any provider call was made.
func (s *BatchRunner) exhaust(ctx context.Context, item *domain.ReminderWorkItem, reason string, lastError string) itemOutcome {
	return s.exhaustWithReason(ctx, item, item.AttemptCount+1, reason, lastError)
}

func (s *BatchRunner) exhaustWithReason(
	ctx context.Context,
	item *domain.ReminderWorkItem,
	attemptNumber int,
	reason string,
	lastError string,
) itemOutcome {
	if err := s.reminders.MarkExhausted(ctx, item.ID, lastError); err != nil {
		s.logger.Error("failed to mark reminder exhausted",
			zap.String("reminderId", item.ID), zap.Error(err))
		return outcomeSkipped
	}

	if s.metrics != nil {
		s.metrics.IncReminderFailed(strings.ToLower(item.Channel.String()), reason)
	}
	s.logger.Warn("reminder exhausted",
		zap.String("reminderId", item.ID),
		zap.String("orgId", item.OrgID),
		zap.String("reason", reason),
		zap.String("lastError", lastError),
	)
	s.publishTransition(ctx, item, domain.ItemStatusExhausted, attemptNumber, lastError)
	return outcomeExhausted
}

func (s *BatchRunner) publishTransition(
	ctx context.Context,
	item *domain.ReminderWorkItem,
	status domain.ItemStatus,
	attemptNumber int,
	lastError string,
) {
	event := events.StateChangeEvent{
		ReminderID:   item.ID,
		OrgID:        item.OrgID,
		Channel:      item.Channel,
		Status:       status,
		AttemptCount: attemptNumber,
		LastError:    lastError,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish state change event",
			zap.String("reminderId", item.ID),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}
}
