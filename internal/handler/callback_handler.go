package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/careloop/reminder-engine/internal/adapter"
)

type CallbackService interface {
	HandleCallback(ctx context.Context, provider string, cb adapter.StatusCallback) error
}

type CallbackHandler struct {
	reconciler CallbackService
	logger     *zap.Logger
}

func NewCallbackHandler(reconciler CallbackService, logger *zap.Logger) (*CallbackHandler, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallbackHandler{reconciler: reconciler, logger: logger}, nil
}

func RegisterCallbackRoutes(router fiber.Router, reconciler CallbackService, logger *zap.Logger) error {
	h, err := NewCallbackHandler(reconciler, logger)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/callbacks/:provider", h.ReceiveCallback)

	return nil
}

// ReceiveCallback ingests a provider delivery-status callback. Providers
// retry aggressively on non-2xx, so every parseable-or-not payload is
// acknowledged; problems are logged and dropped.
func (h *CallbackHandler) ReceiveCallback(c *fiber.Ctx) error {
	provider := strings.TrimSpace(c.Params("provider"))

	var payload map[string]any
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		h.logger.Warn("unparseable callback payload dropped",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return c.SendStatus(fiber.StatusOK)
	}

	cb, err := adapter.NormalizeCallback(payload)
	if err != nil {
		h.logger.Warn("unusable callback payload dropped",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return c.SendStatus(fiber.StatusOK)
	}

	if err := h.reconciler.HandleCallback(c.Context(), provider, cb); err != nil {
		// Still acknowledge; the provider replaying won't fix a store error
		// faster than our own retries.
		h.logger.Error("callback reconciliation failed",
			zap.String("provider", provider),
			zap.String("providerMessageId", cb.ProviderMessageID),
			zap.Error(err),
		)
	}

	return c.SendStatus(fiber.StatusOK)
}
