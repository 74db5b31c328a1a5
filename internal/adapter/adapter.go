package adapter

import (
	"context"

	"github.com/careloop/reminder-engine/internal/domain"
)

// ChannelAdapter is the outbound delivery port for one channel. A Send makes
// exactly one provider call; retry policy lives with the caller, never here.
// Success means the provider accepted the message for asynchronous delivery,
// not that the recipient received it.
type ChannelAdapter interface {
	Channel() domain.Channel
	Send(ctx context.Context, address string, renderedBody string) (*SendResult, error)
}

// SendResult stores the synchronous provider acknowledgement.
type SendResult struct {
	ProviderMessageID string
	ProviderStatus    string
	StatusCode        int
	Body              string
}

// Registry resolves the adapter for a channel.
type Registry map[domain.Channel]ChannelAdapter

func NewRegistry(adapters ...ChannelAdapter) Registry {
	registry := make(Registry, len(adapters))
	for _, a := range adapters {
		if a == nil {
			continue
		}
		registry[a.Channel()] = a
	}
	return registry
}

func (r Registry) For(channel domain.Channel) (ChannelAdapter, bool) {
	a, ok := r[channel]
	return a, ok
}
