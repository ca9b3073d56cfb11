package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Intake    IntakeConfig    `json:"intake"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Ops       OpsConfig       `json:"ops,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// TokenKeyring names an OS keyring entry holding the token, either
	// "key" (service "remindbot") or "service/key". Used when Token is empty.
	TokenKeyring string `json:"token_keyring,omitempty"`
	PollTimeout  string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Alerts  LoggingAlerts `json:"alerts"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlerts mirrors error lines into an ops chat.
type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/remindbot.db" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	DSN          string `json:"dsn,omitempty"` // postgres (do not log)
	BusyTimeout  string `json:"busy_timeout,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

type IntakeConfig struct {
	// Timezone is an IANA name; empty means the host zone.
	Timezone      string      `json:"timezone,omitempty"`
	UpdateTimeout string      `json:"update_timeout,omitempty"`
	BatchSize     int         `json:"batch_size,omitempty"`
	Texts         TextsConfig `json:"texts,omitempty"`
}

// TextsConfig overrides reply texts; empty fields keep the built-in text.
type TextsConfig struct {
	Greeting       string `json:"greeting,omitempty"`
	InvalidMessage string `json:"invalid_message,omitempty"`
	InvalidDate    string `json:"invalid_date,omitempty"`
	SaveFailed     string `json:"save_failed,omitempty"`
	Confirmation   string `json:"confirmation,omitempty"`
	Delivery       string `json:"delivery,omitempty"`
}

// DeliveryConfig controls the due-reminder sender. Enabled is a pointer so an
// omitted key defaults to true.
type DeliveryConfig struct {
	Enabled    *bool   `json:"enabled,omitempty"`
	Schedule   string  `json:"schedule,omitempty"`
	BatchSize  int     `json:"batch_size,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
}

func (d DeliveryConfig) IsEnabled() bool { return d.Enabled == nil || *d.Enabled }

// OpsConfig controls the health/pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type TelemetryConfig struct {
	Enabled        bool   `json:"enabled"`
	Endpoint       string `json:"endpoint,omitempty"`
	ServiceName    string `json:"service_name,omitempty"`
	Environment    string `json:"environment,omitempty"`
	ExportInterval string `json:"export_interval,omitempty"`
}
