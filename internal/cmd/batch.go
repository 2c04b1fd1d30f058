package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	apperrors "github.com/fedseries/fedseries/internal/errors"
	"github.com/fedseries/fedseries/internal/output"
	"github.com/fedseries/fedseries/internal/source"
)

// batchSpec is the shape of a batch request file.
type batchSpec struct {
	Source string     `yaml:"source"`
	Start  string     `yaml:"start"`
	End    string     `yaml:"end"`
	Jobs   []batchJob `yaml:"jobs"`
}

type batchJob struct {
	Name           string   `yaml:"name"`
	Variables      []string `yaml:"variables"`
	Start          string   `yaml:"start"`
	End            string   `yaml:"end"`
	Frequency      string   `yaml:"frequency"`
	Aggregation    string   `yaml:"aggregation"`
	Transformation string   `yaml:"transformation"`
	Format         string   `yaml:"format"`
	Output         string   `yaml:"output"`
	Long           bool     `yaml:"long"`
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run a batch of fetch jobs from a YAML file",
	Long: `Run multiple fetch jobs described in a YAML file. Jobs inherit the
file-level source and date range unless they override them. Jobs run
sequentially through the shared rate limiter; one failing job does not
stop the rest.

Example file:

  source: fred
  start: 2020-01-01
  end: 2023-12-31
  jobs:
    - name: rates
      variables: [FEDFUNDS, DGS10]
      format: csv
      output: rates.csv
    - name: activity
      variables: [UNRATE]
      output: unrate.csv
      format: csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		spec, err := loadBatchSpec(args[0])
		if err != nil {
			return err
		}

		ds, err := openSource(cmd.Context(), cfg, spec.Source, logger)
		if err != nil {
			return err
		}
		defer func() { _ = ds.Close() }()

		var failed []string
		for _, job := range spec.Jobs {
			if err := runBatchJob(cmd, ds, cfg.Output.Missing, spec, job); err != nil {
				logger.Error("batch job failed", zap.String("job", job.Name), zap.Error(err))
				failed = append(failed, job.Name)
				continue
			}
			logger.Info("batch job complete", zap.String("job", job.Name))
		}

		if len(failed) > 0 {
			return apperrors.Newf(apperrors.KindDataRetrieval, "%d of %d batch jobs failed", len(failed), len(spec.Jobs)).
				WithContext("jobs", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

func loadBatchSpec(path string) (*batchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfiguration, err, "failed to read batch file").
			WithContext(apperrors.CtxConfigKey, path)
	}
	spec := &batchSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, err, "invalid batch file").
			WithContext(apperrors.CtxConfigKey, path)
	}
	if len(spec.Jobs) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "batch file contains no jobs").
			WithContext(apperrors.CtxConfigKey, path)
	}
	return spec, nil
}

func runBatchJob(cmd *cobra.Command, ds source.DataSource, missing string, spec *batchSpec, job batchJob) error {
	start := job.Start
	if start == "" {
		start = spec.Start
	}
	end := job.End
	if end == "" {
		end = spec.End
	}

	req, err := buildRequest(job.Variables, start, end)
	if err != nil {
		return err
	}
	req.Frequency = job.Frequency
	req.Aggregation = job.Aggregation
	req.Transformation = job.Transformation

	format, err := output.ParseFormat(job.Format)
	if err != nil {
		return apperrors.New(apperrors.KindValidation, err.Error()).
			WithContext(apperrors.CtxField, "format")
	}

	ctx, cancel := jobContext(cmd)
	defer cancel()

	table, err := ds.Fetch(ctx, req)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(job.Output)
	if err != nil {
		return err
	}
	defer closeOut()

	opts := output.Options{Long: job.Long, Missing: missing}
	return output.NewFormatter(format, opts).WriteTable(out, table)
}

// jobContext bounds a single job so one hung request cannot stall the
// whole batch indefinitely.
func jobContext(cmd *cobra.Command) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 10*time.Minute)
}
