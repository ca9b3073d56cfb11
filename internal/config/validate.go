package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault returns def for empty or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Location resolves intake.timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Intake.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("intake.timezone: %w", err)
	}
	return loc, nil
}

var knownLevels = map[string]bool{
	"": true, "trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate reports every problem found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)

	if !knownLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if !knownLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Alerts.MinLevel))] {
		add(fmt.Errorf("logging.alerts.min_level: unknown level %q", cfg.Logging.Alerts.MinLevel))
	}
	if cfg.Logging.Alerts.Enabled && cfg.Logging.Alerts.ChatID == 0 {
		add(errors.New("logging.alerts.chat_id is required when alerts are enabled"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "file":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.New("storage.path is required for sqlite"))
		}
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add(errors.New("storage.dsn is required for postgres"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if cfg.Storage.MaxOpenConns < 0 {
		add(errors.New("storage.max_open_conns must be >= 0"))
	}

	_, err := cfg.Location()
	add(err)
	dur("intake.update_timeout", cfg.Intake.UpdateTimeout)
	if cfg.Intake.BatchSize < 0 {
		add(errors.New("intake.batch_size must be >= 0"))
	}

	dur("delivery.timeout", cfg.Delivery.Timeout)
	if cfg.Delivery.BatchSize < 0 {
		add(errors.New("delivery.batch_size must be >= 0"))
	}
	if cfg.Delivery.RatePerSec < 0 {
		add(errors.New("delivery.rate_per_sec must be >= 0"))
	}

	dur("ops.read_timeout", cfg.Ops.ReadTimeout)
	dur("ops.write_timeout", cfg.Ops.WriteTimeout)
	dur("ops.idle_timeout", cfg.Ops.IdleTimeout)

	if cfg.Telemetry.Enabled && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		add(errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	dur("telemetry.export_interval", cfg.Telemetry.ExportInterval)

	return errors.Join(errs...)
}
