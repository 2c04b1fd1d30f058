package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fedseries/fedseries/internal/config"
	"github.com/fedseries/fedseries/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List data sources and credential status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Source", "Credentials", "Rate Limit", "Default"})

		for _, name := range source.Names() {
			credentials := "configured"
			if err := cfg.CheckCredentials(name); err != nil {
				credentials = "missing"
			}
			isDefault := ""
			if name == cfg.Source {
				isDefault = "yes"
			}
			tw.AppendRow(table.Row{name, credentials, rateLimitLabel(cfg, name), isDefault})
		}
		tw.Render()
		return nil
	},
}

func rateLimitLabel(cfg *config.Config, name string) string {
	switch name {
	case "fred":
		return fmt.Sprintf("%d/min", cfg.FRED.RateLimit)
	case "haver":
		return fmt.Sprintf("%d/sec", cfg.Haver.RateLimit)
	default:
		return ""
	}
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
