package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/careloop/reminder-engine/internal/domain"
	"github.com/careloop/reminder-engine/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	orgHeader = "X-Org-ID"
)

type ReminderService interface {
	Enqueue(ctx context.Context, item *domain.ReminderWorkItem) (*domain.ReminderWorkItem, error)
	GetByID(ctx context.Context, orgID string, id string) (*domain.ReminderWorkItem, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.ReminderWorkItem, int64, error)
	Cancel(ctx context.Context, orgID string, id string) error
}

type ReminderHandler struct {
	service ReminderService
}

func NewReminderHandler(service ReminderService) (*ReminderHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("reminder service is required")
	}
	return &ReminderHandler{service: service}, nil
}

func RegisterReminderRoutes(router fiber.Router, service ReminderService) error {
	h, err := NewReminderHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/reminders", h.CreateReminder)
	v1.Get("/reminders", h.ListReminders)
	v1.Get("/reminders/:id", h.GetReminder)
	v1.Post("/reminders/:id/cancel", h.CancelReminder)

	return nil
}

type createReminderRequest struct {
	IdempotencyKey *string        `json:"idempotencyKey"`
	Channel        string         `json:"channel"`
	Address        string         `json:"address"`
	TemplateRef    *string        `json:"templateRef"`
	Vars           map[string]any `json:"vars"`
	Body           *string        `json:"body"`
	AppointmentID  *string        `json:"appointmentId"`
	PatientID      *string        `json:"patientId"`
	AppointmentAt  *time.Time     `json:"appointmentAt"`
	Timezone       string         `json:"timezone"`
	NextRunAt      *time.Time     `json:"nextRunAt"`
	MaxAttempts    *int           `json:"maxAttempts"`
}

type reminderResponse struct {
	ID             string         `json:"id"`
	OrgID          string         `json:"orgId"`
	IdempotencyKey *string        `json:"idempotencyKey,omitempty"`
	Channel        string         `json:"channel"`
	Address        string         `json:"address"`
	TemplateRef    *string        `json:"templateRef,omitempty"`
	Vars           map[string]any `json:"vars,omitempty"`
	Body           *string        `json:"body,omitempty"`
	AppointmentID  *string        `json:"appointmentId,omitempty"`
	PatientID      *string        `json:"patientId,omitempty"`
	AppointmentAt  *time.Time     `json:"appointmentAt,omitempty"`
	Timezone       string         `json:"timezone,omitempty"`
	Status         string         `json:"status"`
	AttemptCount   int            `json:"attemptCount"`
	MaxAttempts    int            `json:"maxAttempts"`
	LastError      *string        `json:"lastError,omitempty"`
	NextRunAt      *time.Time     `json:"nextRunAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt,omitempty"`
}

type listRemindersResponse struct {
	Data []reminderResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *ReminderHandler) CreateReminder(c *fiber.Ctx) error {
	orgID, err := requestOrgID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req createReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	item, err := requestToWorkItem(req, orgID)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Enqueue(c.Context(), &item)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toReminderResponse(created))
}

func (h *ReminderHandler) GetReminder(c *fiber.Ctx) error {
	orgID, err := requestOrgID(c)
	if err != nil {
		return toHTTPError(err)
	}

	id := strings.TrimSpace(c.Params("id"))
	item, err := h.service.GetByID(c.Context(), orgID, id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toReminderResponse(item))
}

func (h *ReminderHandler) CancelReminder(c *fiber.Ctx) error {
	orgID, err := requestOrgID(c)
	if err != nil {
		return toHTTPError(err)
	}

	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.Context(), orgID, id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"reminderId": id,
		"status":     domain.ItemStatusCanceled.String(),
	})
}

func (h *ReminderHandler) ListReminders(c *fiber.Ctx) error {
	orgID, err := requestOrgID(c)
	if err != nil {
		return toHTTPError(err)
	}

	params, err := parseListParams(c, orgID)
	if err != nil {
		return toHTTPError(err)
	}

	items, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listRemindersResponse{
		Data: toReminderResponses(items),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx, orgID string) (repository.ListParams, error) {
	params := repository.ListParams{
		OrgID:    orgID,
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseItemStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &channel
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestToWorkItem(req createReminderRequest, orgID string) (domain.ReminderWorkItem, error) {
	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return domain.ReminderWorkItem{}, err
	}

	item := domain.ReminderWorkItem{
		OrgID:          orgID,
		IdempotencyKey: req.IdempotencyKey,
		Channel:        channel,
		Address:        strings.TrimSpace(req.Address),
		TemplateRef:    req.TemplateRef,
		Vars:           req.Vars,
		Body:           req.Body,
		AppointmentID:  req.AppointmentID,
		PatientID:      req.PatientID,
		AppointmentAt:  req.AppointmentAt,
		Timezone:       strings.TrimSpace(req.Timezone),
		NextRunAt:      req.NextRunAt,
	}
	if req.MaxAttempts != nil {
		item.MaxAttempts = *req.MaxAttempts
	}

	return item, nil
}

func requestOrgID(c *fiber.Ctx) (string, error) {
	orgID := strings.TrimSpace(c.Get(orgHeader))
	if orgID == "" {
		return "", fmt.Errorf("%w: %s header is required", domain.ErrValidation, orgHeader)
	}
	return orgID, nil
}

func toReminderResponses(items []domain.ReminderWorkItem) []reminderResponse {
	responses := make([]reminderResponse, 0, len(items))
	for i := range items {
		responses = append(responses, toReminderResponse(&items[i]))
	}
	return responses
}

func toReminderResponse(item *domain.ReminderWorkItem) reminderResponse {
	if item == nil {
		return reminderResponse{}
	}

	return reminderResponse{
		ID:             item.ID,
		OrgID:          item.OrgID,
		IdempotencyKey: item.IdempotencyKey,
		Channel:        item.Channel.String(),
		Address:        item.Address,
		TemplateRef:    item.TemplateRef,
		Vars:           item.Vars,
		Body:           item.Body,
		AppointmentID:  item.AppointmentID,
		PatientID:      item.PatientID,
		AppointmentAt:  item.AppointmentAt,
		Timezone:       item.Timezone,
		Status:         item.Status.String(),
		AttemptCount:   item.AttemptCount,
		MaxAttempts:    item.MaxAttempts,
		LastError:      item.LastError,
		NextRunAt:      item.NextRunAt,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
