// Package config loads runtime settings for the field client. Values are
// layered: defaults, then an optional JSON file, then command-line flags,
// with later sources taking precedence.
package config

import "time"

// Config holds runtime settings for the field client.
type Config struct {
	// DatabasePath is the local SQLite store location.
	DatabasePath string
	// ServerEndpointAddr is the base URL of the remote authority,
	// e.g. "http://127.0.0.1:8080".
	ServerEndpointAddr string
	// DeviceToken, when set, is sent as a bearer token on API calls.
	DeviceToken string
	// DeviceSecret protects captured credentials at rest.
	DeviceSecret string

	// OnlineCheckInterval is how often the client probes server reachability.
	OnlineCheckInterval time.Duration
	// OnlineCheckTimeout bounds a single reachability probe.
	OnlineCheckTimeout time.Duration
	// SubmitTimeout bounds one batch submit call.
	SubmitTimeout time.Duration
	// SettleDelay is the pause between a reconnect and the automatic sync.
	SettleDelay time.Duration
	// SyncItemDelay is the pause between requests within one sync pass.
	SyncItemDelay time.Duration
	// RetentionDays is how long synced requests are kept locally.
	RetentionDays int
}

// RetentionAge converts RetentionDays into a duration.
func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "field.db"
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DeviceSecret = "fieldsign-dev-secret"
	c.OnlineCheckInterval = 30 * time.Second
	c.OnlineCheckTimeout = 5 * time.Second
	c.SubmitTimeout = 30 * time.Second
	c.SettleDelay = 2 * time.Second
	c.SyncItemDelay = 500 * time.Millisecond
	c.RetentionDays = 30
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
