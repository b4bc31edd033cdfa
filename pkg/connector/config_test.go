// Copyright 2024-2026 Aiku AI

package connector

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	cases := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"dedup window", cfg.DedupWindow(), time.Minute},
		{"handled id window", cfg.HandledIDWindow(), 5 * time.Minute},
		{"deleted id window", cfg.DeletedIDWindow(), 15 * time.Minute},
		{"contact refresh", cfg.ContactRefreshInterval(), 10 * time.Minute},
		{"reconnect delay", cfg.ReconnectDelay(), 30 * time.Second},
		{"validation grace", cfg.ValidationGrace(), 2 * time.Second},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, tc.got, tc.want)
		}
	}
}

func TestConfigUnmarshal(t *testing.T) {
	t.Parallel()
	raw := `
api_url: https://skype.example.com
suppress_quotes: true
dedup_window: 120
accounts:
  - id: acct1
    username: alice@example.com
    password: hunter2
    token: legacy-token
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("post-process: %v", err)
	}

	if cfg.APIURL != "https://skype.example.com" {
		t.Errorf("api_url: got %q", cfg.APIURL)
	}
	if !cfg.SuppressQuotes {
		t.Error("suppress_quotes should be true")
	}
	if cfg.DedupWindow() != 2*time.Minute {
		t.Errorf("dedup window: got %s, want 2m", cfg.DedupWindow())
	}
	if len(cfg.Accounts) != 1 {
		t.Fatalf("accounts: got %d, want 1", len(cfg.Accounts))
	}
	acct := cfg.Accounts[0]
	if string(acct.Session) != "legacy-token" {
		t.Errorf("session: got %q, want migrated legacy token", acct.Session)
	}
	if acct.SchemaVersion != accountSchemaVersion {
		t.Errorf("schema version: got %d, want %d", acct.SchemaVersion, accountSchemaVersion)
	}
}

func TestConfigPostProcess_InvalidAccount(t *testing.T) {
	t.Parallel()
	cfg := Config{Accounts: []*AccountConfig{{Username: "no-id"}}}
	if err := cfg.PostProcess(); err == nil {
		t.Error("accounts without an id must be rejected")
	}
}

func TestExampleConfigParses(t *testing.T) {
	t.Parallel()
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExampleConfig), &cfg); err != nil {
		t.Fatalf("example config must parse: %v", err)
	}
}
