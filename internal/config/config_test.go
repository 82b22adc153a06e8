package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Database.Mode != "postgres" {
		t.Errorf("mode = %q, want postgres", cfg.Database.Mode)
	}
	if cfg.Agent.MaxRounds != 10 {
		t.Errorf("max rounds = %d, want 10", cfg.Agent.MaxRounds)
	}
	if cfg.FollowUp.Schedule != "* * * * *" {
		t.Errorf("schedule = %q", cfg.FollowUp.Schedule)
	}
}

func TestLoad_FileWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		// JSON5: comments and trailing commas are fine
		"server": {"addr": ":9000",},
		"database": {"mode": "sqlite", "sqlite_path": "/tmp/fm.db"},
		"agent": {"max_rounds": 6},
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Database.Mode != "sqlite" || cfg.Database.SQLitePath != "/tmp/fm.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Agent.MaxRounds != 6 {
		t.Errorf("max rounds = %d", cfg.Agent.MaxRounds)
	}
	// Untouched sections keep their defaults.
	if cfg.Agent.Model == "" {
		t.Error("model default lost")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FIXMATE_POSTGRES_DSN", "postgres://env/fixmate")
	t.Setenv("FIXMATE_ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("FIXMATE_TELEGRAM_TOKEN", "123:abc")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "postgres://env/fixmate" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Agent.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Agent.APIKey)
	}
	if cfg.Channels.Telegram.Token != "123:abc" {
		t.Errorf("telegram token = %q", cfg.Channels.Telegram.Token)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name: "postgres mode with key and dsn",
			mutate: func(c *Config) {
				c.Agent.APIKey = "sk"
				c.Database.DSN = "postgres://x"
			},
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Database.DSN = "postgres://x" },
			wantErr: true,
		},
		{
			name:    "postgres mode without dsn",
			mutate:  func(c *Config) { c.Agent.APIKey = "sk" },
			wantErr: true,
		},
		{
			name: "sqlite mode needs only a path",
			mutate: func(c *Config) {
				c.Agent.APIKey = "sk"
				c.Database.Mode = "sqlite"
			},
		},
		{
			name: "unknown mode",
			mutate: func(c *Config) {
				c.Agent.APIKey = "sk"
				c.Database.Mode = "cloud"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
