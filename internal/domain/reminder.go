package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemStatus represents the lifecycle state of a reminder work item.
type ItemStatus string

const (
	ItemStatusScheduled   ItemStatus = "SCHEDULED"
	ItemStatusClaimed     ItemStatus = "CLAIMED"
	ItemStatusSentPending ItemStatus = "SENT_PENDING"
	ItemStatusFailed      ItemStatus = "FAILED"
	ItemStatusExhausted   ItemStatus = "EXHAUSTED"
	ItemStatusCanceled    ItemStatus = "CANCELED"
	ItemStatusDone        ItemStatus = "DONE"
)

func (s ItemStatus) String() string { return string(s) }

func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusScheduled, ItemStatusClaimed, ItemStatusSentPending, ItemStatusFailed,
		ItemStatusExhausted, ItemStatusCanceled, ItemStatusDone:
		return true
	}
	return false
}

// IsTerminal reports whether no further dispatch will happen for the item.
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case ItemStatusExhausted, ItemStatusCanceled, ItemStatusDone:
		return true
	}
	return false
}

func ParseItemStatusFromString(s string) (ItemStatus, error) {
	st := ItemStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelChat  Channel = "CHAT"
	ChannelEmail Channel = "EMAIL"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelChat, ChannelEmail:
		return true
	}
	return false
}

// IsPhoneBased reports whether the channel addresses recipients by phone number.
func (c Channel) IsPhoneBased() bool {
	return c == ChannelSMS || c == ChannelChat
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Channels lists every supported delivery channel.
func Channels() []Channel {
	return []Channel{ChannelSMS, ChannelChat, ChannelEmail}
}

// DefaultMaxAttempts is the dispatch cap per work item: the first send plus
// three backoff retries.
const DefaultMaxAttempts = 4

// ReminderWorkItem is one scheduled outbound patient reminder. All operations
// on it are scoped by OrgID.
type ReminderWorkItem struct {
	ID             string
	OrgID          string
	IdempotencyKey *string

	Channel Channel
	Address string

	// Either TemplateRef (+Vars) or an inline pre-rendered Body.
	TemplateRef *string
	Vars        map[string]any
	Body        *string

	AppointmentID *string
	PatientID     *string
	AppointmentAt *time.Time

	// Timezone is the organization's IANA zone used for the sending window.
	Timezone string

	Status       ItemStatus
	AttemptCount int
	MaxAttempts  int
	LastError    *string

	NextRunAt *time.Time
	ClaimedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *ReminderWorkItem) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: reminder is required", ErrValidation)
	}
	if strings.TrimSpace(r.OrgID) == "" {
		return fmt.Errorf("%w: org id is required", ErrValidation)
	}
	if !r.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, r.Channel)
	}
	if strings.TrimSpace(r.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrValidation)
	}

	hasTemplate := r.TemplateRef != nil && strings.TrimSpace(*r.TemplateRef) != ""
	hasBody := r.Body != nil && strings.TrimSpace(*r.Body) != ""
	if !hasTemplate && !hasBody {
		return fmt.Errorf("%w: template reference or inline body is required", ErrValidation)
	}
	if hasTemplate && hasBody {
		return fmt.Errorf("%w: template reference and inline body are mutually exclusive", ErrValidation)
	}

	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			return fmt.Errorf("%w: invalid timezone %q", ErrValidation, r.Timezone)
		}
	}

	return nil
}

// Location resolves the item's sending-window zone, falling back to UTC.
func (r *ReminderWorkItem) Location() *time.Location {
	if r == nil || r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
