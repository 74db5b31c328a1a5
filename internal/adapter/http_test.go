package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/careloop/reminder-engine/internal/domain"
)

func TestHTTPAdapterSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody sendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"messageId":"prov-msg-1","status":"accepted"}`))
	}))
	defer server.Close()

	a, err := NewHTTPAdapter(domain.ChannelSMS, server.URL)
	if err != nil {
		t.Fatalf("NewHTTPAdapter() error = %v", err)
	}

	result, err := a.Send(context.Background(), "+15551234567", "Su cita es manana")
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if result.ProviderMessageID != "prov-msg-1" {
		t.Fatalf("ProviderMessageID = %q, want prov-msg-1", result.ProviderMessageID)
	}
	if result.ProviderStatus != "accepted" {
		t.Fatalf("ProviderStatus = %q, want accepted", result.ProviderStatus)
	}
	if result.StatusCode != http.StatusAccepted {
		t.Fatalf("StatusCode = %d, want %d", result.StatusCode, http.StatusAccepted)
	}

	if gotBody.To != "+15551234567" {
		t.Fatalf("request.to = %q, want +15551234567", gotBody.To)
	}
	if gotBody.Channel != "sms" {
		t.Fatalf("request.channel = %q, want sms", gotBody.Channel)
	}
	if gotBody.Body != "Su cita es manana" {
		t.Fatalf("request.body = %q, want rendered body", gotBody.Body)
	}
}

func TestHTTPAdapterSendMessageIDFromHeader(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Message-ID", "hdr-msg-7")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	a, err := NewHTTPAdapter(domain.ChannelEmail, server.URL)
	if err != nil {
		t.Fatalf("NewHTTPAdapter() error = %v", err)
	}

	result, err := a.Send(context.Background(), "ana@example.com", "body")
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if result.ProviderMessageID != "hdr-msg-7" {
		t.Fatalf("ProviderMessageID = %q, want hdr-msg-7", result.ProviderMessageID)
	}
}

func TestHTTPAdapterSendStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "unprocessable destination is permanent", statusCode: http.StatusUnprocessableEntity, wantTransient: false},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("provider failed"))
			}))
			defer server.Close()

			a, err := NewHTTPAdapter(domain.ChannelChat, server.URL)
			if err != nil {
				t.Fatalf("NewHTTPAdapter() error = %v", err)
			}

			_, err = a.Send(context.Background(), "+15551234567", "hello")
			if err == nil {
				t.Fatal("expected error")
			}

			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var sendErr *SendError
			if !errors.As(err, &sendErr) {
				t.Fatalf("expected SendError, got %T", err)
			}
			if sendErr.StatusCode != tc.statusCode {
				t.Fatalf("SendError.StatusCode = %d, want %d", sendErr.StatusCode, tc.statusCode)
			}
		})
	}
}

func TestHTTPAdapterSendTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messageId":"late"}`))
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	a, err := NewHTTPAdapterWithClient(domain.ChannelSMS, server.URL, client)
	if err != nil {
		t.Fatalf("NewHTTPAdapterWithClient() error = %v", err)
	}

	_, err = a.Send(context.Background(), "+15551234567", "hello")
	if err == nil {
		t.Fatal("expected timeout error")
	}

	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	sms, err := NewHTTPAdapter(domain.ChannelSMS, "http://sms.local/send")
	if err != nil {
		t.Fatalf("NewHTTPAdapter() error = %v", err)
	}
	email, err := NewHTTPAdapter(domain.ChannelEmail, "http://email.local/send")
	if err != nil {
		t.Fatalf("NewHTTPAdapter() error = %v", err)
	}

	registry := NewRegistry(sms, email, nil)

	if got, ok := registry.For(domain.ChannelSMS); !ok || got != sms {
		t.Fatal("registry should resolve the sms adapter")
	}
	if _, ok := registry.For(domain.ChannelChat); ok {
		t.Fatal("registry should not resolve an unregistered channel")
	}
}
