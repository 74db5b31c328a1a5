package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/careloop/reminder-engine/internal/domain"
)

// StateChangeEvent is emitted whenever a reminder work item changes lifecycle
// state. Subscribers (dashboard counters, audit trails) bind their own queues;
// the pipeline core only publishes.
type StateChangeEvent struct {
	ReminderID   string            `json:"reminderId"`
	OrgID        string            `json:"orgId"`
	Channel      domain.Channel    `json:"channel"`
	Status       domain.ItemStatus `json:"status"`
	AttemptCount int               `json:"attemptCount"`
	LastError    string            `json:"lastError,omitempty"`
	OccurredAt   time.Time         `json:"occurredAt"`
}

func (e StateChangeEvent) Validate() error {
	if strings.TrimSpace(e.ReminderID) == "" {
		return fmt.Errorf("reminderId is required")
	}
	if strings.TrimSpace(e.OrgID) == "" {
		return fmt.Errorf("orgId is required")
	}
	if !e.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", e.Channel)
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	return nil
}

// RoutingKey is reminder.<status>, e.g. reminder.sent_pending, so subscribers
// can bind to a subset of transitions.
func (e StateChangeEvent) RoutingKey() string {
	return "reminder." + strings.ToLower(e.Status.String())
}

// Publisher is the observer port for state-change events. Publish failures
// must never fail the pipeline operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event StateChangeEvent) error
	Close() error
}

// NopPublisher discards events. Used when no broker is configured and in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, StateChangeEvent) error { return nil }
func (NopPublisher) Close() error                                    { return nil }
