package config

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/fedseries/fedseries/internal/errors"
	"github.com/fedseries/fedseries/internal/resilience"
)

// Config represents the complete application configuration. Values are
// layered: built-in defaults, an optional config file, then environment
// variables.
type Config struct {
	Source  string        `mapstructure:"source"`
	FRED    FREDConfig    `mapstructure:"fred"`
	Haver   HaverConfig   `mapstructure:"haver"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Output  OutputConfig  `mapstructure:"output"`
	Workers int           `mapstructure:"workers"`
}

// FREDConfig contains FRED API client configuration.
type FREDConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	// RateLimit is the admission budget in requests per minute.
	RateLimit int           `mapstructure:"rate_limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// HaverConfig contains Haver Analytics API client configuration.
type HaverConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	BaseURL  string `mapstructure:"base_url"`
	Database string `mapstructure:"database"`
	// RateLimit is the admission budget in requests per second.
	RateLimit int           `mapstructure:"rate_limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// RetryConfig contains the retry policy applied to every outbound request.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	JitterFraction float64       `mapstructure:"jitter_fraction"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level: debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format selects the encoder: console or json.
	Format string `mapstructure:"format"`
}

// ServerConfig contains HTTP server configuration for serve mode.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
}

// OutputConfig contains default rendering options.
type OutputConfig struct {
	Format  string `mapstructure:"format"`
	Missing string `mapstructure:"missing"`
}

// Validate checks bounds the loader cannot express through defaults.
// Credential presence is checked separately so read-only commands work
// without keys.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return apperrors.New(apperrors.KindConfiguration, "retry.max_attempts must be at least 1").
			WithContext(apperrors.CtxConfigKey, "retry.max_attempts")
	}
	if c.Retry.BackoffBase <= 0 {
		return apperrors.New(apperrors.KindConfiguration, "retry.backoff_base must be positive").
			WithContext(apperrors.CtxConfigKey, "retry.backoff_base")
	}
	if c.Retry.BackoffMax < c.Retry.BackoffBase {
		return apperrors.New(apperrors.KindConfiguration, "retry.backoff_max must be at least retry.backoff_base").
			WithContext(apperrors.CtxConfigKey, "retry.backoff_max")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		return apperrors.New(apperrors.KindConfiguration, "retry.jitter_fraction must be between 0 and 1").
			WithContext(apperrors.CtxConfigKey, "retry.jitter_fraction")
	}
	if c.FRED.RateLimit < 1 {
		return apperrors.New(apperrors.KindConfiguration, "fred.rate_limit must be at least 1").
			WithContext(apperrors.CtxConfigKey, "fred.rate_limit")
	}
	if c.Haver.RateLimit < 1 {
		return apperrors.New(apperrors.KindConfiguration, "haver.rate_limit must be at least 1").
			WithContext(apperrors.CtxConfigKey, "haver.rate_limit")
	}
	if c.Workers < 1 {
		return apperrors.New(apperrors.KindConfiguration, "workers must be at least 1").
			WithContext(apperrors.CtxConfigKey, "workers")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return apperrors.New(apperrors.KindConfiguration, "server.port must be a valid TCP port").
			WithContext(apperrors.CtxConfigKey, "server.port")
	}
	return nil
}

// RetryPolicy converts the retry section into an executor policy.
func (c *Config) RetryPolicy() resilience.Policy {
	policy := resilience.DefaultPolicy()
	policy.MaxAttempts = c.Retry.MaxAttempts
	policy.BackoffBase = c.Retry.BackoffBase
	policy.BackoffMax = c.Retry.BackoffMax
	policy.JitterFraction = c.Retry.JitterFraction
	return policy
}

// CheckCredentials verifies the credentials needed for the named source
// are present, returning a configuration error with setup instructions
// when they are not.
func (c *Config) CheckCredentials(sourceName string) error {
	switch strings.ToLower(strings.TrimSpace(sourceName)) {
	case "fred":
		if strings.TrimSpace(c.FRED.APIKey) == "" {
			return apperrors.New(apperrors.KindConfiguration, "FRED API key is not configured").
				WithContext(apperrors.CtxConfigKey, "fred.api_key").
				WithSuggestion(SetupInstructions("fred"))
		}
	case "haver":
		var missing []string
		if strings.TrimSpace(c.Haver.Username) == "" {
			missing = append(missing, "haver.username")
		}
		if c.Haver.Password == "" {
			missing = append(missing, "haver.password")
		}
		if len(missing) > 0 {
			return apperrors.Newf(apperrors.KindConfiguration, "Haver credentials are not configured: %s", strings.Join(missing, ", ")).
				WithContext(apperrors.CtxConfigKey, strings.Join(missing, ",")).
				WithSuggestion(SetupInstructions("haver"))
		}
	default:
		return apperrors.Newf(apperrors.KindConfiguration, "unknown data source %q", sourceName).
			WithContext(apperrors.CtxConfigKey, "source")
	}
	return nil
}

// SetupInstructions returns human-oriented steps for configuring the
// named source's credentials.
func SetupInstructions(sourceName string) string {
	switch strings.ToLower(strings.TrimSpace(sourceName)) {
	case "fred":
		return strings.Join([]string{
			"1. Request a free API key at https://fred.stlouisfed.org/docs/api/api_key.html",
			"2. export FRED_API_KEY=<your 32 character key>",
			"3. Or add it to a .env file next to the binary",
		}, "\n")
	case "haver":
		return strings.Join([]string{
			"1. Obtain credentials from your Haver Analytics subscription administrator",
			"2. export HAVER_USERNAME=<account> HAVER_PASSWORD=<password>",
			"3. Or add them to a .env file next to the binary",
		}, "\n")
	default:
		return fmt.Sprintf("unknown data source %q", sourceName)
	}
}
