// Package respondio implements WhatsApp delivery and webhook parsing for
// the Respond.io platform.
package respondio

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mk-162/fixMate/internal/bus"
	"github.com/mk-162/fixMate/internal/channels"
)

const apiBase = "https://api.respond.io/v2"

// Config holds the Respond.io credentials. APIKey and WebhookSecret come
// from the environment only.
type Config struct {
	APIKey        string
	WorkspaceID   string
	WebhookSecret string
}

// Channel sends messages through the Respond.io REST API.
type Channel struct {
	cfg    Config
	client *http.Client
}

// New creates a Respond.io channel.
func New(cfg Config) *Channel {
	return &Channel{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Channel) Name() string { return "respondio" }

func (c *Channel) IsConfigured() bool {
	return c.cfg.APIKey != "" && c.cfg.WorkspaceID != ""
}

// Send delivers text to a Respond.io contact. The address is the
// Respond.io contact ID, not a phone number.
func (c *Channel) Send(ctx context.Context, address, text string) (channels.DeliveryResult, error) {
	if !c.IsConfigured() {
		return channels.DeliveryResult{Error: "respond.io not configured"}, fmt.Errorf("respond.io not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"type": "text",
			"text": text,
		},
	})
	if err != nil {
		return channels.DeliveryResult{Error: err.Error()}, fmt.Errorf("marshal respond.io message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/contact/%s/message", apiBase, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return channels.DeliveryResult{Error: err.Error()}, fmt.Errorf("build respond.io request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return channels.DeliveryResult{Error: err.Error()}, fmt.Errorf("respond.io send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		errText := fmt.Sprintf("respond.io returned HTTP %d: %s", resp.StatusCode, string(data))
		return channels.DeliveryResult{Error: errText}, fmt.Errorf("%s", errText)
	}

	var sent struct {
		MessageID json.Number `json:"messageId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return channels.DeliveryResult{Delivered: true}, nil
	}
	return channels.DeliveryResult{Delivered: true, ProviderMessageID: sent.MessageID.String()}, nil
}

// VerifySignature checks the X-Respond-Signature header: hex-encoded
// HMAC-SHA256 of the raw body. Skipped when no secret is configured.
func (c *Channel) VerifySignature(body []byte, signature string) bool {
	if c.cfg.WebhookSecret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// webhookPayload is the Respond.io event envelope.
type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Contact struct {
			ID    json.Number `json:"id"`
			Name  string      `json:"name"`
			Phone string      `json:"phone"`
		} `json:"contact"`
		Message struct {
			ID   json.Number `json:"id"`
			Type string      `json:"type"`
			Text string      `json:"text"`
		} `json:"message"`
	} `json:"data"`
}

// ParseInbound decodes a webhook body. The bool is false for events other
// than message:received, which are acknowledged but not processed.
func ParseInbound(body []byte) (bus.InboundMessage, bool, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return bus.InboundMessage{}, false, fmt.Errorf("decode respond.io payload: %w", err)
	}
	if payload.Event != "message:received" {
		return bus.InboundMessage{}, false, nil
	}

	kind := bus.KindText
	if payload.Data.Message.Type != "" && payload.Data.Message.Type != "text" {
		kind = bus.KindOther
	}

	return bus.InboundMessage{
		Channel:           "respondio",
		ContactID:         payload.Data.Contact.ID.String(),
		Phone:             payload.Data.Contact.Phone,
		Content:           payload.Data.Message.Text,
		Kind:              kind,
		ProviderMessageID: payload.Data.Message.ID.String(),
	}, true, nil
}
