package handler

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/careloop/reminder-engine/internal/service"
)

type BatchRunService interface {
	RunBatch(ctx context.Context, orgID string, limit int) (*service.RunReport, error)
}

type RunHandler struct {
	runner       BatchRunService
	triggerToken string
	defaultLimit int
}

func NewRunHandler(runner BatchRunService, triggerToken string, defaultLimit int) (*RunHandler, error) {
	if runner == nil {
		return nil, fmt.Errorf("batch runner is required")
	}
	if strings.TrimSpace(triggerToken) == "" {
		return nil, fmt.Errorf("trigger token is required")
	}
	if defaultLimit <= 0 {
		return nil, fmt.Errorf("default batch limit must be positive")
	}
	return &RunHandler{runner: runner, triggerToken: triggerToken, defaultLimit: defaultLimit}, nil
}

// RegisterRunRoutes wires the scheduler-facing trigger endpoints. Both run a
// batch claim; /retry-run exists as a separate target for the cron entry that
// drains retries, so operators can disable one without the other.
func RegisterRunRoutes(router fiber.Router, runner BatchRunService, triggerToken string, defaultLimit int) error {
	h, err := NewRunHandler(runner, triggerToken, defaultLimit)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/run", h.TriggerRun)
	v1.Post("/retry-run", h.TriggerRun)

	return nil
}

type runRequest struct {
	OrgID string `json:"orgId"`
	Limit int    `json:"limit"`
}

func (h *RunHandler) TriggerRun(c *fiber.Ctx) error {
	if !h.authorized(c) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid trigger token")
	}

	var req runRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = h.defaultLimit
	}

	report, err := h.runner.RunBatch(c.Context(), strings.TrimSpace(req.OrgID), limit)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *RunHandler) authorized(c *fiber.Ctx) bool {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.triggerToken)) == 1
}
