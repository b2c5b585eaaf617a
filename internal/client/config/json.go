package config

import (
	"encoding/json"
	"os"

	"github.com/safetrack/fieldsign/internal/flagx"
	"github.com/safetrack/fieldsign/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "2s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	DatabasePath        string         `json:"database_path"`
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DeviceToken         string         `json:"device_token"`
	DeviceSecret        string         `json:"device_secret"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	OnlineCheckTimeout  timex.Duration `json:"online_check_timeout"`
	SubmitTimeout       timex.Duration `json:"submit_timeout"`
	SettleDelay         timex.Duration `json:"settle_delay"`
	SyncItemDelay       timex.Duration `json:"sync_item_delay"`
	RetentionDays       int            `json:"retention_days"`
}

// parseJson overlays Config with values loaded from a JSON file, resolved
// from the -c/-config flags. Zero values in the file leave the existing
// Config value untouched.
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

	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.DeviceToken != "" {
		cfg.DeviceToken = jc.DeviceToken
	}
	if jc.DeviceSecret != "" {
		cfg.DeviceSecret = jc.DeviceSecret
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.OnlineCheckTimeout.Duration > 0 {
		cfg.OnlineCheckTimeout = jc.OnlineCheckTimeout.Duration
	}
	if jc.SubmitTimeout.Duration > 0 {
		cfg.SubmitTimeout = jc.SubmitTimeout.Duration
	}
	if jc.SettleDelay.Duration > 0 {
		cfg.SettleDelay = jc.SettleDelay.Duration
	}
	if jc.SyncItemDelay.Duration > 0 {
		cfg.SyncItemDelay = jc.SyncItemDelay.Duration
	}
	if jc.RetentionDays > 0 {
		cfg.RetentionDays = jc.RetentionDays
	}
}
