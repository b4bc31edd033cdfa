// Copyright 2024-2026 Aiku AI

package connector

import (
	_ "embed"
	"time"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the Skype connector configuration.
type Config struct {
	// APIURL and GatewayURL override the remote network endpoints. Empty
	// values use the client defaults.
	APIURL     string `yaml:"api_url"`
	GatewayURL string `yaml:"gateway_url"`

	// SuppressQuotes drops Skype quote blocks from relayed messages
	// instead of rendering them as blockquotes.
	SuppressQuotes bool `yaml:"suppress_quotes"`

	// All windows and intervals are in seconds; zero means default.
	DedupWindowSeconds     int `yaml:"dedup_window"`
	HandledIDWindowSeconds int `yaml:"handled_id_window"`
	DeletedIDWindowSeconds int `yaml:"deleted_id_window"`
	ContactRefreshSeconds  int `yaml:"contact_refresh_interval"`
	ReconnectDelaySeconds  int `yaml:"reconnect_delay"`
	ValidationGraceSeconds int `yaml:"connect_validation_grace"`

	// AdminAPIAddr is the listen address for the admin/metrics HTTP
	// server. Defaults to ":29321".
	AdminAPIAddr string `yaml:"admin_api_addr"`

	Accounts []*AccountConfig `yaml:"accounts"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess validates and migrates the loaded account records.
func (c *Config) PostProcess() error {
	for _, acct := range c.Accounts {
		if err := acct.upgrade(); err != nil {
			return err
		}
	}
	return nil
}

func secondsOr(value int, def time.Duration) time.Duration {
	if value <= 0 {
		return def
	}
	return time.Duration(value) * time.Second
}

// DedupWindow is how long a local send suppresses its own echo.
func (c *Config) DedupWindow() time.Duration {
	return secondsOr(c.DedupWindowSeconds, time.Minute)
}

// HandledIDWindow is how long processed remote event ids are remembered.
func (c *Config) HandledIDWindow() time.Duration {
	return secondsOr(c.HandledIDWindowSeconds, 5*time.Minute)
}

// DeletedIDWindow is how long deliberate deletions are remembered. Longer
// than the others so a slow edited-to-empty notification is still
// recognized.
func (c *Config) DeletedIDWindow() time.Duration {
	return secondsOr(c.DeletedIDWindowSeconds, 15*time.Minute)
}

// ContactRefreshInterval is the period of the background contact diff.
func (c *Config) ContactRefreshInterval() time.Duration {
	return secondsOr(c.ContactRefreshSeconds, 10*time.Minute)
}

// ReconnectDelay is the pause before the single reconnect attempt.
func (c *Config) ReconnectDelay() time.Duration {
	return secondsOr(c.ReconnectDelaySeconds, 30*time.Second)
}

// ValidationGrace is the post-connect window watched for early stream
// errors before a connection is considered healthy.
func (c *Config) ValidationGrace() time.Duration {
	return secondsOr(c.ValidationGraceSeconds, 2*time.Second)
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "api_url")
	helper.Copy(up.Str, "gateway_url")
	helper.Copy(up.Bool, "suppress_quotes")
	helper.Copy(up.Int, "dedup_window")
	helper.Copy(up.Int, "handled_id_window")
	helper.Copy(up.Int, "deleted_id_window")
	helper.Copy(up.Int, "contact_refresh_interval")
	helper.Copy(up.Int, "reconnect_delay")
	helper.Copy(up.Int, "connect_validation_grace")
	helper.Copy(up.Str, "admin_api_addr")
	helper.Copy(up.List, "accounts")
}

// GetConfig exposes the example config and upgrader.
func (sc *SkypeConnector) GetConfig() (example string, data any, upgrader up.Upgrader) {
	return ExampleConfig, &sc.cfg, up.SimpleUpgrader(upgradeConfig)
}
