package config

import (
	"encoding/json"
	"os"

	"github.com/nkrylov/cipherchat/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling; parsed values
// are copied into the runtime Config.
type JsonConfig struct {
	ServerURL   string `json:"server_url"`
	FeedURL     string `json:"feed_url"`
	DatabaseDSN string `json:"database_dsn"`
}

// parseJson overlays cfg with values loaded from the JSON file named by the
// -c/-config flags. Missing flag means no JSON is loaded. Read or unmarshal
// errors panic; intended usage is defaults -> parseJson -> parseFlags.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.FeedURL != "" {
		cfg.FeedURL = jc.FeedURL
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
}
