package repository

import (
	"encoding/json"
	"time"

	"github.com/careloop/reminder-engine/internal/domain"
)

// ReminderModel is the persistence model for the reminders table.
type ReminderModel struct {
	ID             string            `gorm:"type:uuid;primaryKey"`
	OrgID          string            `gorm:"type:varchar(64);not null"`
	IdempotencyKey *string           `gorm:"type:varchar(255)"`
	Channel        domain.Channel    `gorm:"type:varchar(10);not null"`
	Address        string            `gorm:"type:varchar(255);not null"`
	TemplateRef    *string           `gorm:"type:varchar(100)"`
	Vars           []byte            `gorm:"type:jsonb"`
	Body           *string           `gorm:"type:text"`
	AppointmentID  *string           `gorm:"type:uuid"`
	PatientID      *string           `gorm:"type:uuid"`
	AppointmentAt  *time.Time        `gorm:"type:timestamptz"`
	Timezone       string            `gorm:"type:varchar(64);not null;default:'UTC'"`
	Status         domain.ItemStatus `gorm:"type:varchar(20);not null"`
	AttemptCount   int               `gorm:"not null;default:0"`
	MaxAttempts    int               `gorm:"not null;default:4"`
	LastError      *string           `gorm:"type:text"`
	NextRunAt      *time.Time        `gorm:"type:timestamptz"`
	ClaimedAt      *time.Time        `gorm:"type:timestamptz"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ReminderModel) TableName() string {
	return "reminders"
}

// DeliveryLogModel is the persistence model for the delivery_log table.
type DeliveryLogModel struct {
	ID                string           `gorm:"type:uuid;primaryKey"`
	WorkItemID        *string          `gorm:"type:uuid"`
	OrgID             string           `gorm:"type:varchar(64);not null"`
	AttemptNumber     int              `gorm:"not null;default:1"`
	Channel           domain.Channel   `gorm:"type:varchar(10);not null"`
	Destination       string           `gorm:"type:varchar(255);not null"`
	ProviderMessageID *string          `gorm:"type:varchar(255)"`
	Status            domain.LogStatus `gorm:"type:varchar(20);not null"`
	Meta              []byte           `gorm:"type:jsonb"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (DeliveryLogModel) TableName() string {
	return "delivery_log"
}

// TemplateModel is the persistence model for the templates table.
type TemplateModel struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	OrgID     string         `gorm:"type:varchar(64);not null"`
	Name      string         `gorm:"type:varchar(100);not null"`
	Channel   domain.Channel `gorm:"type:varchar(10);not null"`
	Version   int            `gorm:"not null;default:1"`
	Body      string         `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TemplateModel) TableName() string {
	return "templates"
}

func reminderModelFromDomain(r *domain.ReminderWorkItem) *ReminderModel {
	if r == nil {
		return nil
	}

	var vars []byte
	if len(r.Vars) > 0 {
		vars, _ = json.Marshal(r.Vars)
	}

	return &ReminderModel{
		ID:             r.ID,
		OrgID:          r.OrgID,
		IdempotencyKey: r.IdempotencyKey,
		Channel:        r.Channel,
		Address:        r.Address,
		TemplateRef:    r.TemplateRef,
		Vars:           vars,
		Body:           r.Body,
		AppointmentID:  r.AppointmentID,
		PatientID:      r.PatientID,
		AppointmentAt:  r.AppointmentAt,
		Timezone:       r.Timezone,
		Status:         r.Status,
		AttemptCount:   r.AttemptCount,
		MaxAttempts:    r.MaxAttempts,
		LastError:      r.LastError,
		NextRunAt:      r.NextRunAt,
		ClaimedAt:      r.ClaimedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func reminderModelToDomain(m *ReminderModel) *domain.ReminderWorkItem {
	if m == nil {
		return nil
	}

	var vars map[string]any
	if len(m.Vars) > 0 {
		_ = json.Unmarshal(m.Vars, &vars)
	}

	return &domain.ReminderWorkItem{
		ID:             m.ID,
		OrgID:          m.OrgID,
		IdempotencyKey: m.IdempotencyKey,
		Channel:        m.Channel,
		Address:        m.Address,
		TemplateRef:    m.TemplateRef,
		Vars:           vars,
		Body:           m.Body,
		AppointmentID:  m.AppointmentID,
		PatientID:      m.PatientID,
		AppointmentAt:  m.AppointmentAt,
		Timezone:       m.Timezone,
		Status:         m.Status,
		AttemptCount:   m.AttemptCount,
		MaxAttempts:    m.MaxAttempts,
		LastError:      m.LastError,
		NextRunAt:      m.NextRunAt,
		ClaimedAt:      m.ClaimedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func deliveryLogModelFromDomain(e *domain.DeliveryLogEntry) *DeliveryLogModel {
	if e == nil {
		return nil
	}

	var meta []byte
	if len(e.Meta) > 0 {
		meta, _ = json.Marshal(e.Meta)
	}

	return &DeliveryLogModel{
		ID:                e.ID,
		WorkItemID:        e.WorkItemID,
		OrgID:             e.OrgID,
		AttemptNumber:     e.AttemptNumber,
		Channel:           e.Channel,
		Destination:       e.Destination,
		ProviderMessageID: e.ProviderMessageID,
		Status:            e.Status,
		Meta:              meta,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func deliveryLogModelToDomain(m *DeliveryLogModel) *domain.DeliveryLogEntry {
	if m == nil {
		return nil
	}

	var meta map[string]any
	if len(m.Meta) > 0 {
		_ = json.Unmarshal(m.Meta, &meta)
	}

	return &domain.DeliveryLogEntry{
		ID:                m.ID,
		WorkItemID:        m.WorkItemID,
		OrgID:             m.OrgID,
		AttemptNumber:     m.AttemptNumber,
		Channel:           m.Channel,
		Destination:       m.Destination,
		ProviderMessageID: m.ProviderMessageID,
		Status:            m.Status,
		Meta:              meta,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func templateModelToDomain(m *TemplateModel) *domain.Template {
	if m == nil {
		return nil
	}

	return &domain.Template{
		ID:        m.ID,
		OrgID:     m.OrgID,
		Name:      m.Name,
		Channel:   m.Channel,
		Version:   m.Version,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
