package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/fedseries/fedseries/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "fred", cfg.Source)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, "https://api.stlouisfed.org/fred", cfg.FRED.BaseURL)
	require.Equal(t, 120, cfg.FRED.RateLimit)
	require.Equal(t, 30*time.Second, cfg.FRED.Timeout)
	require.Equal(t, "USECON", cfg.Haver.Database)
	require.Equal(t, 10, cfg.Haver.RateLimit)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, time.Second, cfg.Retry.BackoffBase)
	require.Equal(t, 30*time.Second, cfg.Retry.BackoffMax)
	require.Equal(t, 0.1, cfg.Retry.JitterFraction)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "console", cfg.Logging.Format)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Server.MetricsEnabled)
	require.Equal(t, "table", cfg.Output.Format)
	require.Equal(t, ".", cfg.Output.Missing)
}

func TestLoadCredentialEnv(t *testing.T) {
	t.Setenv("FRED_API_KEY", "abcdefghijklmnopqrstuvwxyz123456")
	t.Setenv("HAVER_USERNAME", "analyst")
	t.Setenv("HAVER_PASSWORD", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "abcdefghijklmnopqrstuvwxyz123456", cfg.FRED.APIKey)
	require.Equal(t, "analyst", cfg.Haver.Username)
	require.Equal(t, "secret", cfg.Haver.Password)
}

func TestLoadPrefixedEnvOverridesDefaults(t *testing.T) {
	t.Setenv("FEDSERIES_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("FEDSERIES_FRED_RATE_LIMIT", "60")
	t.Setenv("FEDSERIES_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Retry.MaxAttempts)
	require.Equal(t, 60, cfg.FRED.RateLimit)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadInvalidEnvValueFailsValidation(t *testing.T) {
	t.Setenv("FEDSERIES_RETRY_MAX_ATTEMPTS", "0")

	_, err := Load("")
	require.Error(t, err)
	require.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
	require.Contains(t, err.Error(), "retry.max_attempts")
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fedseries.yaml")
	content := `
source: haver
workers: 8
haver:
  database: EUDATA
retry:
  backoff_base: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "haver", cfg.Source)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, "EUDATA", cfg.Haver.Database)
	require.Equal(t, 500*time.Millisecond, cfg.Retry.BackoffBase)
	// Untouched sections keep their defaults.
	require.Equal(t, 120, cfg.FRED.RateLimit)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
}

func TestValidateBounds(t *testing.T) {
	base := func() *Config {
		return &Config{
			FRED:    FREDConfig{RateLimit: 120},
			Haver:   HaverConfig{RateLimit: 10},
			Retry:   RetryConfig{MaxAttempts: 3, BackoffBase: time.Second, BackoffMax: 30 * time.Second, JitterFraction: 0.1},
			Server:  ServerConfig{Port: 8080},
			Workers: 4,
		}
	}

	require.NoError(t, base().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"negative base", func(c *Config) { c.Retry.BackoffBase = -time.Second }, "retry.backoff_base"},
		{"max below base", func(c *Config) { c.Retry.BackoffMax = time.Millisecond }, "retry.backoff_max"},
		{"jitter above one", func(c *Config) { c.Retry.JitterFraction = 1.5 }, "retry.jitter_fraction"},
		{"zero fred rate", func(c *Config) { c.FRED.RateLimit = 0 }, "fred.rate_limit"},
		{"zero haver rate", func(c *Config) { c.Haver.RateLimit = 0 }, "haver.rate_limit"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))

			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			require.Equal(t, tc.key, appErr.Context[apperrors.CtxConfigKey])
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	cfg := &Config{Retry: RetryConfig{
		MaxAttempts:    5,
		BackoffBase:    2 * time.Second,
		BackoffMax:     20 * time.Second,
		JitterFraction: 0.25,
	}}

	policy := cfg.RetryPolicy()
	require.Equal(t, 5, policy.MaxAttempts)
	require.Equal(t, 2*time.Second, policy.BackoffBase)
	require.Equal(t, 20*time.Second, policy.BackoffMax)
	require.Equal(t, 0.25, policy.JitterFraction)
	// Kind selection is inherited from the default policy.
	require.NotEmpty(t, policy.RetryableKinds)
}

func TestCheckCredentials(t *testing.T) {
	cfg := &Config{}

	err := cfg.CheckCredentials("fred")
	require.Error(t, err)
	require.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Contains(t, appErr.Suggestion, "FRED_API_KEY")

	err = cfg.CheckCredentials("haver")
	require.Error(t, err)
	require.Contains(t, err.Error(), "haver.username")
	require.Contains(t, err.Error(), "haver.password")

	err = cfg.CheckCredentials("bloomberg")
	require.Error(t, err)
	require.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))

	cfg.FRED.APIKey = "abcdefghijklmnopqrstuvwxyz123456"
	require.NoError(t, cfg.CheckCredentials("fred"))

	cfg.Haver.Username = "analyst"
	cfg.Haver.Password = "secret"
	require.NoError(t, cfg.CheckCredentials("haver"))
}
