// Package config loads the fixmate configuration: a JSON5 file for
// structure, environment variables for every secret. Credentials never
// live in the file.
package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"

	"github.com/mk-162/fixMate/internal/telemetry"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig     `json:"server,omitempty"`
	Database  DatabaseConfig   `json:"database,omitempty"`
	Agent     AgentConfig      `json:"agent,omitempty"`
	Channels  ChannelsConfig   `json:"channels,omitempty"`
	FollowUp  FollowUpConfig   `json:"follow_up,omitempty"`
	Telemetry telemetry.Config `json:"telemetry,omitempty"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	Addr      string `json:"addr,omitempty"`       // listen address, default ":8080"
	PublicURL string `json:"public_url,omitempty"` // externally visible base URL for signature checks
	BusBuffer int    `json:"bus_buffer,omitempty"` // inbound queue depth, default 64
}

// DatabaseConfig selects the storage backend. Postgres is the managed
// mode; sqlite runs everything in a single file for standalone use.
// The Postgres DSN comes from FIXMATE_POSTGRES_DSN only.
type DatabaseConfig struct {
	Mode       string `json:"mode,omitempty"` // "postgres" (default) or "sqlite"
	SQLitePath string `json:"sqlite_path,omitempty"`

	DSN string `json:"-"`
}

// AgentConfig configures the hosted-model loop.
type AgentConfig struct {
	Model          string `json:"model,omitempty"`
	MaxRounds      int    `json:"max_rounds,omitempty"`
	RoundTimeoutMS int    `json:"round_timeout_ms,omitempty"` // 0 disables the per-round deadline

	APIKey string `json:"-"`
}

// ChannelsConfig holds the messaging provider settings. Tokens and
// secrets are env-only.
type ChannelsConfig struct {
	Twilio    TwilioConfig    `json:"twilio,omitempty"`
	RespondIO RespondIOConfig `json:"respondio,omitempty"`
	Telegram  TelegramConfig  `json:"telegram,omitempty"`
}

type TwilioConfig struct {
	AccountSID     string `json:"account_sid,omitempty"`
	WhatsAppNumber string `json:"whatsapp_number,omitempty"`

	AuthToken string `json:"-"`
}

type RespondIOConfig struct {
	WorkspaceID string `json:"workspace_id,omitempty"`

	APIKey        string `json:"-"`
	WebhookSecret string `json:"-"`
}

type TelegramConfig struct {
	Token string `json:"-"`
}

// FollowUpConfig configures the check-in sweeper.
type FollowUpConfig struct {
	Schedule string `json:"schedule,omitempty"` // cron expression, default every minute
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			BusBuffer: 64,
		},
		Database: DatabaseConfig{
			Mode:       "postgres",
			SQLitePath: "fixmate.db",
		},
		Agent: AgentConfig{
			Model:          "claude-sonnet-4-5-20250929",
			MaxRounds:      10,
			RoundTimeoutMS: 120000,
		},
		FollowUp: FollowUpConfig{
			Schedule: "* * * * *",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; defaults plus env are enough to run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env values take
// precedence over file values; secrets have no file equivalent at all.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("FIXMATE_POSTGRES_DSN", &c.Database.DSN)
	envStr("FIXMATE_ANTHROPIC_API_KEY", &c.Agent.APIKey)
	envStr("FIXMATE_TWILIO_ACCOUNT_SID", &c.Channels.Twilio.AccountSID)
	envStr("FIXMATE_TWILIO_AUTH_TOKEN", &c.Channels.Twilio.AuthToken)
	envStr("FIXMATE_TWILIO_WHATSAPP_NUMBER", &c.Channels.Twilio.WhatsAppNumber)
	envStr("FIXMATE_RESPONDIO_API_KEY", &c.Channels.RespondIO.APIKey)
	envStr("FIXMATE_RESPONDIO_WORKSPACE_ID", &c.Channels.RespondIO.WorkspaceID)
	envStr("FIXMATE_RESPONDIO_WEBHOOK_SECRET", &c.Channels.RespondIO.WebhookSecret)
	envStr("FIXMATE_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("FIXMATE_PUBLIC_URL", &c.Server.PublicURL)
}

// Validate checks the combination of settings needed to start serving.
func (c *Config) Validate() error {
	if c.Agent.APIKey == "" {
		return fmt.Errorf("FIXMATE_ANTHROPIC_API_KEY is required")
	}
	switch c.Database.Mode {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("FIXMATE_POSTGRES_DSN is required in postgres mode")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required in sqlite mode")
		}
	default:
		return fmt.Errorf("unknown database mode %q", c.Database.Mode)
	}
	return nil
}
