package cmd

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/fedseries/fedseries/internal/errors"
	"github.com/fedseries/fedseries/internal/output"
	"github.com/fedseries/fedseries/internal/source"
)

var fetchFlags struct {
	source         string
	variables      []string
	start          string
	end            string
	frequency      string
	aggregation    string
	transformation string
	format         string
	outputPath     string
	long           bool
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Retrieve time series observations",
	Long: `Retrieve observations for one or more variables over a date range.

Examples:
  fedseries fetch --variables FEDFUNDS,DGS10 --start 2020-01-01 --end 2020-12-31
  fedseries fetch --source haver --variables GDP --start 2019-01-01 --end 2023-12-31 --format csv --output gdp.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		req, err := buildRequest(fetchFlags.variables, fetchFlags.start, fetchFlags.end)
		if err != nil {
			return err
		}
		req.Frequency = fetchFlags.frequency
		req.Aggregation = fetchFlags.aggregation
		req.Transformation = fetchFlags.transformation

		formatName := fetchFlags.format
		if formatName == "" {
			formatName = cfg.Output.Format
		}
		format, err := output.ParseFormat(formatName)
		if err != nil {
			return apperrors.New(apperrors.KindValidation, err.Error()).
				WithContext(apperrors.CtxField, "format")
		}

		ds, err := openSource(cmd.Context(), cfg, fetchFlags.source, logger)
		if err != nil {
			return err
		}
		defer func() { _ = ds.Close() }()

		table, err := ds.Fetch(cmd.Context(), req)
		if err != nil {
			return err
		}

		status := ds.RateStatus()
		logger.Debug("rate window after fetch",
			zap.Int("used", status.Used),
			zap.Int("remaining", status.Remaining),
		)

		out, closeOut, err := openOutput(fetchFlags.outputPath)
		if err != nil {
			return err
		}
		defer closeOut()

		opts := output.Options{Long: fetchFlags.long, Missing: cfg.Output.Missing}
		return output.NewFormatter(format, opts).WriteTable(out, table)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&fetchFlags.source, "source", "s", "", "data source (fred or haver; default from config)")
	fetchCmd.Flags().StringSliceVar(&fetchFlags.variables, "variables", nil, "variable codes to retrieve (comma separated)")
	fetchCmd.Flags().StringVar(&fetchFlags.start, "start", "", "start date (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&fetchFlags.end, "end", "", "end date (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&fetchFlags.frequency, "frequency", "", "observation frequency (source specific, e.g. m, q, a)")
	fetchCmd.Flags().StringVar(&fetchFlags.aggregation, "aggregation", "", "aggregation method for frequency conversion")
	fetchCmd.Flags().StringVar(&fetchFlags.transformation, "transformation", "", "value transformation (source specific)")
	fetchCmd.Flags().StringVarP(&fetchFlags.format, "format", "f", "", "output format: table, csv, json, excel")
	fetchCmd.Flags().StringVarP(&fetchFlags.outputPath, "output", "o", "", "write output to file instead of stdout")
	fetchCmd.Flags().BoolVar(&fetchFlags.long, "long", false, "emit one row per (date, variable, value)")
	_ = fetchCmd.MarkFlagRequired("variables")
	_ = fetchCmd.MarkFlagRequired("start")
	_ = fetchCmd.MarkFlagRequired("end")
}

// buildRequest validates the date flags into a source request.
func buildRequest(variables []string, start, end string) (source.Request, error) {
	startDate, err := parseDateFlag(start, "start")
	if err != nil {
		return source.Request{}, err
	}
	endDate, err := parseDateFlag(end, "end")
	if err != nil {
		return source.Request{}, err
	}
	return source.Request{Variables: variables, Start: startDate, End: endDate}, nil
}

func parseDateFlag(value, name string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, apperrors.Newf(apperrors.KindValidation, "invalid --%s date: %s", name, value).
			WithContext(apperrors.CtxField, name).
			WithContext(apperrors.CtxExpected, "YYYY-MM-DD")
	}
	return t, nil
}

// openOutput returns stdout or a created file plus a close function.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindConfiguration, err, "failed to create output file").
			WithContext(apperrors.CtxConfigKey, path)
	}
	return f, func() { _ = f.Close() }, nil
}
