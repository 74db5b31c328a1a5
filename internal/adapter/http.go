package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/careloop/reminder-engine/internal/domain"
)

// defaultSendTimeout bounds every provider call so one slow provider cannot
// stall a whole batch. A timeout is classified as transient.
const defaultSendTimeout = 10 * time.Second

type sendRequest struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
	Body    string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// HTTPAdapter dispatches one channel's reminders to an HTTP provider endpoint.
type HTTPAdapter struct {
	channel  domain.Channel
	client   *resty.Client
	endpoint string
}

func NewHTTPAdapter(channel domain.Channel, endpoint string) (*HTTPAdapter, error) {
	client := resty.New()
	client.SetTimeout(defaultSendTimeout)
	client.SetRetryCount(0)

	return NewHTTPAdapterWithClient(channel, endpoint, client)
}

func NewHTTPAdapterWithClient(channel domain.Channel, endpoint string, client *resty.Client) (*HTTPAdapter, error) {
	if !channel.IsValid() {
		return nil, fmt.Errorf("invalid channel %q", channel)
	}

	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("provider endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid provider endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPAdapter{
		channel:  channel,
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (a *HTTPAdapter) Channel() domain.Channel {
	if a == nil {
		return ""
	}
	return a.channel
}

func (a *HTTPAdapter) Send(ctx context.Context, destination string, renderedBody string) (*SendResult, error) {
	if a == nil || a.client == nil {
		return nil, fmt.Errorf("adapter is not initialized")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, &SendError{Message: "destination is required", Transient: false}
	}

	reqBody := sendRequest{
		To:      destination,
		Channel: strings.ToLower(a.channel.String()),
		Body:    renderedBody,
	}

	var parsed sendResponse
	response, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&parsed).
		Post(a.endpoint)
	if err != nil {
		return nil, &SendError{
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &SendError{
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &SendResult{
			ProviderMessageID: providerMessageID(parsed, response),
			ProviderStatus:    strings.TrimSpace(parsed.Status),
			StatusCode:        statusCode,
			Body:              responseBody,
		}, nil
	}

	return nil, &SendError{
		StatusCode: statusCode,
		Message:    sendErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func sendErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func providerMessageID(parsed sendResponse, response *resty.Response) string {
	if id := strings.TrimSpace(parsed.MessageID); id != "" {
		return id
	}
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
