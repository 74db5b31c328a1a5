package domain

import (
	"fmt"
	"strings"
	"time"
)

// LogStatus represents the delivery state of a single dispatch attempt.
type LogStatus string

const (
	LogStatusQueued    LogStatus = "QUEUED"
	LogStatusSent      LogStatus = "SENT"
	LogStatusDelivered LogStatus = "DELIVERED"
	LogStatusFailed    LogStatus = "FAILED"
)

func (s LogStatus) String() string { return string(s) }

func (s LogStatus) IsValid() bool {
	switch s {
	case LogStatusQueued, LogStatusSent, LogStatusDelivered, LogStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the provider will send no further status for
// this attempt.
func (s LogStatus) IsTerminal() bool {
	return s == LogStatusDelivered || s == LogStatusFailed
}

func ParseLogStatusFromString(s string) (LogStatus, error) {
	st := LogStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid log status %q", ErrValidation, s)
	}
	return st, nil
}

// DeliveryLogEntry records one dispatch attempt for a reminder work item.
// WorkItemID is nullable for entries created by the reconciliation fallback
// before the owning item could be identified.
type DeliveryLogEntry struct {
	ID                string
	WorkItemID        *string
	OrgID             string
	AttemptNumber     int
	Channel           Channel
	Destination       string
	ProviderMessageID *string
	Status            LogStatus
	Meta              map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
