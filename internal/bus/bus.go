package bus

import (
	"context"
	"sync"
)

// MessageBus decouples channels from the gateway: channels push user input to
// Inbound, the gateway pushes deliveries to Outbound, and DispatchOutbound
// fans them out to subscribed channels.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string]func(OutboundMessage)
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound:     make(chan InboundMessage, bufSize),
		Outbound:    make(chan OutboundMessage, bufSize),
		subscribers: make(map[string]func(OutboundMessage)),
	}
}

// SubscribeOutbound registers a channel's delivery handler. A second
// subscription under the same name replaces the first.
func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = fn
}

// DispatchOutbound delivers outbound messages until ctx is cancelled. An
// empty Channel broadcasts to every subscriber.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.dispatch(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *MessageBus) dispatch(msg OutboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg.Channel != "" {
		if fn, ok := b.subscribers[msg.Channel]; ok {
			fn(msg)
		}
		return
	}
	for _, fn := range b.subscribers {
		fn(msg)
	}
}
