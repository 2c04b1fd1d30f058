package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fedseries/fedseries/internal/config"
	"github.com/fedseries/fedseries/internal/source"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Check and explain data source credentials",
}

var credentialsCheckCmd = &cobra.Command{
	Use:   "check [source]",
	Short: "Verify credentials are configured and accepted",
	Long: `Verify that credentials for a source are present and, with --connect,
that the remote API accepts them. Without an argument all sources are checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		names := source.Names()
		if len(args) == 1 {
			names = []string{args[0]}
		}

		connect, _ := cmd.Flags().GetBool("connect")
		var failed bool
		for _, name := range names {
			if err := cfg.CheckCredentials(name); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not configured\n", name)
				failed = failed || len(args) == 1
				continue
			}
			if !connect {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: configured\n", name)
				continue
			}
			ds, err := openSource(cmd.Context(), cfg, name, logger)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: rejected (%v)\n", name, err)
				failed = true
				continue
			}
			_ = ds.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
		}
		if failed {
			return fmt.Errorf("credential check failed")
		}
		return nil
	},
}

var credentialsSetupCmd = &cobra.Command{
	Use:   "setup <source>",
	Short: "Print credential setup instructions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), config.SetupInstructions(args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsCheckCmd)
	credentialsCmd.AddCommand(credentialsSetupCmd)
	credentialsCheckCmd.Flags().Bool("connect", false, "make a test request to verify the credentials are accepted")
}
