package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/fedseries/fedseries/internal/dataset"
	apperrors "github.com/fedseries/fedseries/internal/errors"
	"github.com/fedseries/fedseries/internal/output"
)

var metadataFlags struct {
	source    string
	variables []string
	format    string
}

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Retrieve series metadata",
	Long:  "Retrieve descriptive metadata (name, units, frequency, coverage) for one or more variables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		format, err := output.ParseFormat(metadataFlags.format)
		if err != nil {
			return apperrors.New(apperrors.KindValidation, err.Error()).
				WithContext(apperrors.CtxField, "format")
		}

		ds, err := openSource(cmd.Context(), cfg, metadataFlags.source, logger)
		if err != nil {
			return err
		}
		defer func() { _ = ds.Close() }()

		byCode, err := ds.Metadata(cmd.Context(), metadataFlags.variables)
		if err != nil {
			return err
		}

		metadata := make([]dataset.Metadata, 0, len(byCode))
		for _, m := range byCode {
			metadata = append(metadata, m)
		}
		sort.Slice(metadata, func(i, j int) bool { return metadata[i].Code < metadata[j].Code })

		return output.NewFormatter(format, output.Options{}).WriteMetadata(cmd.OutOrStdout(), metadata)
	},
}

func init() {
	rootCmd.AddCommand(metadataCmd)
	metadataCmd.Flags().StringVarP(&metadataFlags.source, "source", "s", "", "data source (fred or haver; default from config)")
	metadataCmd.Flags().StringSliceVar(&metadataFlags.variables, "variables", nil, "variable codes (comma separated)")
	metadataCmd.Flags().StringVarP(&metadataFlags.format, "format", "f", "table", "output format: table, csv, json")
	_ = metadataCmd.MarkFlagRequired("variables")
}
