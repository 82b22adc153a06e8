// Package bus decouples webhook ingestion from message processing. The
// webhook server publishes normalized inbound messages and acknowledges
// the provider immediately; the router consumes them on its own schedule.
package bus

import "context"

// MessageKind classifies inbound payload content. Non-text kinds are
// acknowledged but dropped by the router.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindMedia MessageKind = "media"
	KindOther MessageKind = "other"
)

// InboundMessage is the provider-neutral shape of one received message.
type InboundMessage struct {
	Channel           string            `json:"channel"` // "twilio", "respondio", "telegram"
	ContactID         string            `json:"contact_id"`
	Phone             string            `json:"phone,omitempty"`
	Content           string            `json:"content"`
	Kind              MessageKind       `json:"kind"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a reply queued for delivery through a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	Address string `json:"address"`
	Content string `json:"content"`
}

// MessageRouter abstracts inbound/outbound routing between the webhook
// layer and the conversation engine.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	ConsumeOutbound(ctx context.Context) (OutboundMessage, bool)
}

// MessageBus is the in-process MessageRouter backed by buffered channels.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// New creates a MessageBus with the given buffer size per direction.
func New(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, buffer),
		outbound: make(chan OutboundMessage, buffer),
	}
}

// PublishInbound enqueues an inbound message. Blocks when the buffer is
// full; webhook handlers publish from their own goroutine so the HTTP
// acknowledgment is never held up.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until a message arrives or ctx is done. The bool
// is false on cancellation.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}
