package app

import (
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/intake"
	"remindbot/internal/observability/ops"
	"remindbot/internal/storage"
	"remindbot/internal/telemetry"
	logx "remindbot/pkg/logx"
)

const defaultBatchSize = 32

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alerts: logx.AlertConfig{
			Enabled:    cfg.Logging.Alerts.Enabled,
			ChatID:     cfg.Logging.Alerts.ChatID,
			ThreadID:   cfg.Logging.Alerts.ThreadID,
			MinLevel:   cfg.Logging.Alerts.MinLevel,
			RatePerSec: cfg.Logging.Alerts.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config, loc *time.Location) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:       strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:         strings.TrimSpace(sc.Path),
		DSN:          strings.TrimSpace(sc.DSN),
		BusyTimeout:  busy,
		MaxOpenConns: sc.MaxOpenConns,
		Location:     loc,
	}, nil
}

func mapTexts(t config.TextsConfig) intake.Texts {
	return intake.Texts{
		Greeting:       t.Greeting,
		InvalidMessage: t.InvalidMessage,
		InvalidDate:    t.InvalidDate,
		SaveFailed:     t.SaveFailed,
		Confirmation:   t.Confirmation,
		Delivery:       t.Delivery,
	}.WithDefaults()
}

func mapIntake(cfg *config.Config, loc *time.Location) (intake.Config, int, error) {
	timeout, err := config.ParseDurationOrDefault("intake.update_timeout", cfg.Intake.UpdateTimeout, 5*time.Second)
	if err != nil {
		return intake.Config{}, 0, err
	}
	batch := cfg.Intake.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return intake.Config{
		Location:      loc,
		UpdateTimeout: timeout,
		Texts:         mapTexts(cfg.Intake.Texts),
	}, batch, nil
}

func mapDelivery(cfg *config.Config, loc *time.Location) (delivery.Config, error) {
	timeout, err := config.ParseDurationField("delivery.timeout", cfg.Delivery.Timeout)
	if err != nil {
		return delivery.Config{}, err
	}
	dc := delivery.Config{
		Enabled:    cfg.Delivery.IsEnabled(),
		Schedule:   cfg.Delivery.Schedule,
		BatchSize:  cfg.Delivery.BatchSize,
		RatePerSec: cfg.Delivery.RatePerSec,
		Timeout:    timeout,
		Location:   loc,
		Template:   mapTexts(cfg.Intake.Texts).Delivery,
	}
	return dc, delivery.Validate(dc)
}

func mapOps(cfg *config.Config) (ops.Config, error) {
	oc := cfg.Ops
	read, err := config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	// pprof profile can take 30s+; keep writes unbounded unless configured.
	write, err := config.ParseDurationField("ops.write_timeout", oc.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          oc.Addr,
		Token:         oc.Token,
		AllowInsecure: oc.AllowInsecure,
		Instrument:    cfg.Telemetry.Enabled,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapTelemetry(cfg *config.Config) (telemetry.Config, error) {
	interval, err := config.ParseDurationField("telemetry.export_interval", cfg.Telemetry.ExportInterval)
	if err != nil {
		return telemetry.Config{}, err
	}
	return telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		Environment:    cfg.Telemetry.Environment,
		ExportInterval: interval,
	}, nil
}

// validate is the hot-reload gate: structural checks plus everything the
// mappers reject.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	if _, err := mapStorage(cfg, loc); err != nil {
		return err
	}
	if _, _, err := mapIntake(cfg, loc); err != nil {
		return err
	}
	if _, err := mapDelivery(cfg, loc); err != nil {
		return err
	}
	if _, err := mapOps(cfg); err != nil {
		return err
	}
	_, err = mapTelemetry(cfg)
	return err
}
