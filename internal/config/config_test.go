package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/minimarket/internal/oracle"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestDefaultMaxConfidenceMatchesGate(t *testing.T) {
	cfg := Defaults()
	if cfg.Program.MaxConfidence != 0.05 {
		t.Fatalf("default max_confidence = %v, want 0.05", cfg.Program.MaxConfidence)
	}
	if g := oracle.NewGate(cfg.Program.MaxConfidence); g.MaxConfidence != cfg.Program.MaxConfidence {
		t.Fatalf("gate bound = %v, want %v", g.MaxConfidence, cfg.Program.MaxConfidence)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "mysql" }, "unknown backend"},
		{"empty program name", func(c *Config) { c.Program.Name = " " }, "program: name"},
		{"mirror on memory", func(c *Config) { c.Mode = "mirror" }, "shared storage backend"},
		{"postgres without host", func(c *Config) {
			c.Storage.Backend = "postgres"
			c.Postgres.Host = ""
		}, "postgres: host"},
		{"postgres dsn skips host checks", func(c *Config) {
			c.Storage.Backend = "postgres"
			c.Postgres.Host = ""
			c.Postgres.DSN = "postgres://u@db/minimarket"
		}, ""},
		{"negative max confidence", func(c *Config) { c.Program.MaxConfidence = -0.1 }, "max_confidence"},
		{"zero max confidence is strict, not unset", func(c *Config) { c.Program.MaxConfidence = 0 }, ""},
		{"feed store without redis", func(c *Config) { c.Redis.FeedStore = true }, "feed_store requires"},
		{"archive without s3", func(c *Config) { c.Archive.Enabled = true }, "archive: requires s3"},
		{"archive with s3", func(c *Config) {
			c.Archive.Enabled = true
			c.S3.Enabled = true
		}, ""},
		{"half telegram", func(c *Config) { c.Notify.TelegramToken = "t" }, "set together"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nope"
	cfg.Log.Level = "nope"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if n := strings.Count(err.Error(), "\n  - "); n != 2 {
		t.Errorf("got %d problems, want 2: %v", n, err)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimarket.toml")
	body := `
mode = "node"

[program]
max_tx_lifetime = "90s"

[storage]
backend = "sqlite"

[sqlite]
path = "/var/lib/minimarket/state.db"

[server]
port = 9000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MINIMARKET_SERVER_PORT", "9100")
	t.Setenv("MINIMARKET_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("MINIMARKET_REDIS_ENABLED", "true")
	t.Setenv("MINIMARKET_PROGRAM_LOCK_WAIT", "not-a-duration")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "node" || cfg.Storage.Backend != "sqlite" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Program.MaxTxLifetime.Duration != 90*time.Second {
		t.Errorf("max_tx_lifetime = %v", cfg.Program.MaxTxLifetime.Duration)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("env override lost: port = %d", cfg.Server.Port)
	}
	if got := cfg.Server.CORSOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("cors origins = %v", got)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis should be enabled from env")
	}
	if cfg.Program.LockWait.Duration != 5*time.Second {
		t.Errorf("unparseable override should be ignored, got %v", cfg.Program.LockWait.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("postgres port = %d", cfg.Postgres.Port)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Program.Name != "minimarket" {
		t.Errorf("program name = %q", cfg.Program.Name)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("mode = "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "k"
	cfg.Wallet.PrivateKey = "0xabc"
	cfg.S3.SecretKey = ""

	r := cfg.Redacted()
	if r.Postgres.Password != redacted || r.Server.APIKey != redacted || r.Wallet.PrivateKey != redacted {
		t.Errorf("secrets not redacted: %+v", r)
	}
	if r.S3.SecretKey != "" {
		t.Errorf("empty secret should stay empty, got %q", r.S3.SecretKey)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Error("original was modified")
	}
	r.Server.CORSOrigins[0] = "changed"
	if cfg.Server.CORSOrigins[0] == "changed" {
		t.Error("redacted copy aliases the original slice")
	}
}
