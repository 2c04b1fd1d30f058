// Package config provides layered configuration management: built-in
// defaults, an optional YAML config file, then environment variables
// (FEDSERIES_ prefixed, plus the conventional credential variables
// FRED_API_KEY, HAVER_USERNAME and HAVER_PASSWORD).
package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/fedseries/fedseries/internal/errors"
)

// EnvPrefix is the prefix for application environment variables.
const EnvPrefix = "FEDSERIES"

// Load builds the configuration. configFile may be empty, in which case
// the conventional locations are searched and a missing file is fine.
func Load(configFile string) (*Config, error) {
	// A .env next to the binary is a convenience for credentials; a
	// missing one is not an error.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindCredentialEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(apperrors.KindConfiguration, err, "failed to read config file").
				WithContext(apperrors.CtxConfigKey, configFile)
		}
	} else {
		v.SetConfigName("fedseries")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fedseries")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, apperrors.Wrap(apperrors.KindConfiguration, err, "failed to read config file")
			}
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfiguration, err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindCredentialEnv wires the unprefixed credential variables that the
// provider documentation tells users to set.
func bindCredentialEnv(v *viper.Viper) {
	_ = v.BindEnv("fred.api_key", EnvPrefix+"_FRED_API_KEY", "FRED_API_KEY")
	_ = v.BindEnv("haver.username", EnvPrefix+"_HAVER_USERNAME", "HAVER_USERNAME")
	_ = v.BindEnv("haver.password", EnvPrefix+"_HAVER_PASSWORD", "HAVER_PASSWORD")
	_ = v.BindEnv("haver.database", EnvPrefix+"_HAVER_DATABASE", "HAVER_DATABASE")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source", "fred")
	v.SetDefault("workers", 4)

	v.SetDefault("fred.base_url", "https://api.stlouisfed.org/fred")
	v.SetDefault("fred.rate_limit", 120)
	v.SetDefault("fred.timeout", 30*time.Second)

	v.SetDefault("haver.base_url", "https://api.haveranalytics.com/v1")
	v.SetDefault("haver.database", "USECON")
	v.SetDefault("haver.rate_limit", 10)
	v.SetDefault("haver.timeout", 30*time.Second)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_base", time.Second)
	v.SetDefault("retry.backoff_max", 30*time.Second)
	v.SetDefault("retry.jitter_fraction", 0.1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.metrics_enabled", true)

	v.SetDefault("output.format", "table")
	v.SetDefault("output.missing", ".")
}
