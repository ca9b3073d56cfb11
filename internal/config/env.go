package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every override, e.g. REMINDBOT_TELEGRAM_TOKEN.
const EnvPrefix = "REMINDBOT"

// applyEnv overlays environment variables onto cfg. Only keys that are
// commonly injected by deployment tooling are honored.
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	str("telegram.token", &cfg.Telegram.Token)
	str("telegram.token_keyring", &cfg.Telegram.TokenKeyring)
	str("logging.level", &cfg.Logging.Level)
	str("storage.driver", &cfg.Storage.Driver)
	str("storage.path", &cfg.Storage.Path)
	str("storage.dsn", &cfg.Storage.DSN)
	str("intake.timezone", &cfg.Intake.Timezone)
	boolean("ops.enabled", &cfg.Ops.Enabled)
	str("ops.addr", &cfg.Ops.Addr)
	str("ops.token", &cfg.Ops.Token)
	boolean("telemetry.enabled", &cfg.Telemetry.Enabled)
	str("telemetry.endpoint", &cfg.Telemetry.Endpoint)
}
