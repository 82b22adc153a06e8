// Package twilio implements WhatsApp delivery and webhook parsing for the
// Twilio sandbox.
package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mk-162/fixMate/internal/bus"
	"github.com/mk-162/fixMate/internal/channels"
)

const apiBase = "https://api.twilio.com/2010-04-01"

// Config holds the Twilio credentials. AuthToken comes from the
// environment only, never from a config file.
type Config struct {
	AccountSID     string
	AuthToken      string
	WhatsAppNumber string // sender number in E.164 form, e.g. +14155238886
}

// Channel sends WhatsApp messages through the Twilio REST API.
type Channel struct {
	cfg    Config
	client *http.Client
}

// New creates a Twilio channel.
func New(cfg Config) *Channel {
	return &Channel{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Channel) Name() string { return "twilio" }

func (c *Channel) IsConfigured() bool {
	return c.cfg.AccountSID != "" && c.cfg.AuthToken != "" && c.cfg.WhatsAppNumber != ""
}

// Send delivers a WhatsApp message. Twilio requires the "whatsapp:"
// prefix on both numbers.
func (c *Channel) Send(ctx context.Context, address, text string) (channels.DeliveryResult, error) {
	if !c.IsConfigured() {
		return channels.DeliveryResult{Error: "twilio not configured"}, fmt.Errorf("twilio not configured")
	}

	form := url.Values{}
	form.Set("Body", text)
	form.Set("From", "whatsapp:"+c.cfg.WhatsAppNumber)
	form.Set("To", "whatsapp:"+address)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", apiBase, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return channels.DeliveryResult{Error: err.Error()}, fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return channels.DeliveryResult{Error: err.Error()}, fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		errText := fmt.Sprintf("twilio returned HTTP %d: %s", resp.StatusCode, string(data))
		return channels.DeliveryResult{Error: errText}, fmt.Errorf("%s", errText)
	}

	var created struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		// Delivered, just couldn't read the SID back.
		return channels.DeliveryResult{Delivered: true}, nil
	}
	return channels.DeliveryResult{Delivered: true, ProviderMessageID: created.SID}, nil
}

// ParsePhone strips Twilio's "whatsapp:" prefix from a sender address.
func ParsePhone(twilioFrom string) string {
	return strings.TrimPrefix(twilioFrom, "whatsapp:")
}

// ParseInbound maps a Twilio webhook form post to the normalized inbound
// shape. Twilio uses the phone number as the contact identity.
func ParseInbound(form url.Values) bus.InboundMessage {
	phone := ParsePhone(form.Get("From"))
	kind := bus.KindText
	if form.Get("NumMedia") != "" && form.Get("NumMedia") != "0" {
		kind = bus.KindMedia
	}
	return bus.InboundMessage{
		Channel:           "twilio",
		ContactID:         phone,
		Phone:             phone,
		Content:           form.Get("Body"),
		Kind:              kind,
		ProviderMessageID: form.Get("MessageSid"),
	}
}

// ValidateSignature checks the X-Twilio-Signature header: HMAC-SHA1 over
// the full URL plus the form parameters sorted by key, base64-encoded.
// With no auth token configured validation is skipped (dev mode).
func (c *Channel) ValidateSignature(fullURL string, form url.Values, signature string) bool {
	if c.cfg.AuthToken == "" {
		return true
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(c.cfg.AuthToken))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
