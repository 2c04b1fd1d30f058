// Package cmd implements the fedseries CLI.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fedseries/fedseries/internal/config"
	"github.com/fedseries/fedseries/internal/observability"
	"github.com/fedseries/fedseries/internal/server"
	"github.com/fedseries/fedseries/internal/source"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by the main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	server.SetVersionInfo(version, commit, buildDate)
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fedseries",
	Short: "Extract time series economic data from FRED and Haver Analytics",
	Long: `fedseries retrieves time series economic data from rate limited
APIs (FRED, Haver Analytics) with automatic rate admission and retries.

Use the subcommands to perform specific operations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches . and $HOME/.config/fedseries)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// loadConfig builds the layered configuration and a logger for one
// command run.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, observability.NewCLILogger("info"), err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(level, cfg.Logging.Format, "fedseries")
	return cfg, logger, nil
}

// sourceOptions translates config into source construction options.
func sourceOptions(cfg *config.Config, logger *zap.Logger) source.Options {
	policy := cfg.RetryPolicy()
	return source.Options{
		FRED: source.FREDOptions{
			APIKey:            cfg.FRED.APIKey,
			BaseURL:           cfg.FRED.BaseURL,
			Timeout:           cfg.FRED.Timeout,
			RequestsPerMinute: cfg.FRED.RateLimit,
			Workers:           cfg.Workers,
			Retry:             policy,
			Logger:            logger,
		},
		Haver: source.HaverOptions{
			Username:          cfg.Haver.Username,
			Password:          cfg.Haver.Password,
			BaseURL:           cfg.Haver.BaseURL,
			Database:          cfg.Haver.Database,
			Timeout:           cfg.Haver.Timeout,
			RequestsPerSecond: cfg.Haver.RateLimit,
			Workers:           cfg.Workers,
			Retry:             policy,
			Logger:            logger,
		},
	}
}

// openSource checks credentials, constructs the named source and
// verifies connectivity.
func openSource(ctx context.Context, cfg *config.Config, name string, logger *zap.Logger) (source.DataSource, error) {
	if name == "" {
		name = cfg.Source
	}
	if err := cfg.CheckCredentials(name); err != nil {
		return nil, err
	}
	ds, err := source.New(name, sourceOptions(cfg, logger))
	if err != nil {
		return nil, err
	}
	if err := ds.Connect(ctx); err != nil {
		_ = ds.Close()
		return nil, err
	}
	return ds, nil
}
