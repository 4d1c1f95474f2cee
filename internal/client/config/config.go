// Package config handles configuration for the client component, including
// defaults, JSON overlay, and command-line flags.
package config

// Config holds runtime settings for the CipherChat client.
//
// Fields:
//   - ServerURL: base URL of the backend HTTP API.
//   - FeedURL: websocket URL of the change feed.
//   - DatabaseDSN: path of the local sqlite database.
type Config struct {
	ServerURL   string
	FeedURL     string
	DatabaseDSN string
}

// LoadDefaults populates c with sensible development defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.FeedURL = "ws://127.0.0.1:8080/ws"
	c.DatabaseDSN = "cipherchat.db"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
