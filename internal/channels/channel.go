// Package channels defines the outbound-delivery and inbound-listener
// boundaries for messaging providers, plus the manager that owns the
// configured set.
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// DeliveryResult reports the outcome of one outbound send.
type DeliveryResult struct {
	Delivered         bool   `json:"delivered"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Sender delivers messages through one provider.
type Sender interface {
	// Name is the channel identifier used in conversation bindings
	// ("twilio", "respondio", "telegram").
	Name() string

	// IsConfigured reports whether the provider credentials are present.
	IsConfigured() bool

	// Send delivers text to the provider-specific address. A failed
	// delivery returns a non-nil error AND a result carrying the provider
	// error string for the audit log.
	Send(ctx context.Context, address, text string) (DeliveryResult, error)
}

// Listener is implemented by channels that pull their own updates
// (long polling) instead of receiving webhooks.
type Listener interface {
	// Listen blocks until ctx is done, publishing inbound messages.
	Listen(ctx context.Context) error
}

// Manager holds the configured senders keyed by channel name.
type Manager struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

// NewManager builds a manager from the given senders, skipping any that
// are not configured.
func NewManager(senders ...Sender) *Manager {
	m := &Manager{senders: make(map[string]Sender)}
	for _, s := range senders {
		if s == nil {
			continue
		}
		if !s.IsConfigured() {
			slog.Warn("channel not configured, skipping", "channel", s.Name())
			continue
		}
		m.senders[s.Name()] = s
	}
	return m
}

// Sender returns the sender for a channel name.
func (m *Manager) Sender(name string) (Sender, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.senders[name]
	if !ok {
		return nil, fmt.Errorf("channel %q not configured", name)
	}
	return s, nil
}

// Names returns the configured channel names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.senders))
	for name := range m.senders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
