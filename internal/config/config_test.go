package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
paths:
  root: /tmp/metis-test
fetch:
  user_agent: metis-agent
  timeout_seconds: 45
  strategy_timeout_seconds: 90
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
proxy:
  enabled: true
  endpoint: https://proxy.example.com
  api_key: proxykey
sync:
  concurrency: 6
  interval_minutes: 15
transform:
  provider: ollama
  model: qwen2.5
  base_url: http://localhost:11434
  translate: true
  summarize: true
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Fetch.UserAgent != "metis-agent" {
		t.Fatalf("expected fetch overrides to apply, got %+v", cfg.Fetch)
	}
	if cfg.Proxy.Endpoint != "https://proxy.example.com" || cfg.Proxy.APIKey != "proxykey" {
		t.Fatalf("expected proxy overrides to apply, got %+v", cfg.Proxy)
	}
	if cfg.Transform.Provider != "ollama" || !cfg.Transform.Translate {
		t.Fatalf("expected transform overrides to apply, got %+v", cfg.Transform)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected development logging disabled")
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if got := cfg.StrategyTimeout(); got != 90*time.Second {
		t.Fatalf("expected strategy timeout 90s, got %v", got)
	}
	if got := cfg.SyncInterval(); got != 15*time.Minute {
		t.Fatalf("expected sync interval 15m, got %v", got)
	}
}

func TestLoadDerivesPathsFromRoot(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.Vault != filepath.Join("data", "vault") {
		t.Fatalf("expected derived vault path, got %q", cfg.Paths.Vault)
	}
	if cfg.Paths.Media != filepath.Join("data", "vault", "media") {
		t.Fatalf("expected derived media path, got %q", cfg.Paths.Media)
	}
	if cfg.Paths.Index != filepath.Join("data", "index.db") {
		t.Fatalf("expected derived index path, got %q", cfg.Paths.Index)
	}
	if cfg.Paths.Inbox != filepath.Join("data", "inbox.md") {
		t.Fatalf("expected derived inbox path, got %q", cfg.Paths.Inbox)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Paths:  PathsConfig{Root: "data"},
		Sync:   SyncConfig{Concurrency: 3},
		Fetch:  FetchConfig{TimeoutSeconds: 15},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "missing root",
			cfg: func() Config {
				c := base
				c.Paths.Root = ""
				return c
			}(),
			want: "paths.root",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Sync.Concurrency = 0
				return c
			}(),
			want: "sync.concurrency",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Fetch.TimeoutSeconds = 0
				return c
			}(),
			want: "fetch.timeout_seconds",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
		},
		{
			name: "transform missing model",
			cfg: func() Config {
				c := base
				c.Transform.Translate = true
				return c
			}(),
			want: "transform.model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
