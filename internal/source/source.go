// Package source implements the remote data source clients. Every outbound
// HTTP call is admitted by a shared rate limiter and executed under the
// retry policy, so callers only ever see taxonomy errors.
package source

import (
	"context"
	"strings"
	"time"

	"github.com/fedseries/fedseries/internal/dataset"
	apperrors "github.com/fedseries/fedseries/internal/errors"
	"github.com/fedseries/fedseries/internal/resilience"
)

// Request describes one extraction: which variables, over which dates.
type Request struct {
	Variables []string
	Start     time.Time
	End       time.Time

	// Optional FRED observation parameters.
	Frequency      string
	Aggregation    string
	Transformation string
}

// DataSource is the interface all remote clients implement.
type DataSource interface {
	// Name identifies the source ("fred", "haver").
	Name() string

	// Connect verifies connectivity and credentials with a test request.
	Connect(ctx context.Context) error

	// Fetch retrieves and aligns the requested series.
	Fetch(ctx context.Context, req Request) (*dataset.Table, error)

	// Metadata retrieves descriptive metadata for the given variables.
	Metadata(ctx context.Context, variables []string) (map[string]dataset.Metadata, error)

	// RateStatus reports the current admission window usage.
	RateStatus() resilience.Status

	// Close releases idle connections. Safe to call more than once.
	Close() error
}

// Options carries the per-source construction parameters. The factory
// trusts these were validated by the config layer.
type Options struct {
	FRED  FREDOptions
	Haver HaverOptions
}

// New constructs the named data source.
func New(name string, opts Options) (DataSource, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fred":
		return NewFRED(opts.FRED)
	case "haver":
		return NewHaver(opts.Haver)
	default:
		return nil, apperrors.Newf(apperrors.KindConfiguration, "unknown data source %q", name).
			WithContext(apperrors.CtxConfigKey, "source").
			WithSuggestion("supported sources: " + strings.Join(Names(), ", "))
	}
}

// Names lists the supported data source names.
func Names() []string {
	return []string{"fred", "haver"}
}

// Observation date bounds accepted from callers.
var (
	minDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDate = time.Date(2100, 12, 31, 0, 0, 0, 0, time.UTC)
)

// NormalizeVariables trims, uppercases and de-duplicates variable codes.
// Invalid codes fail the whole request so a typo never silently drops a
// column from the output.
func NormalizeVariables(variables []string) ([]string, error) {
	if len(variables) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "at least one variable code is required").
			WithContext(apperrors.CtxField, "variables")
	}

	seen := make(map[string]struct{}, len(variables))
	normalized := make([]string, 0, len(variables))
	var invalid []string

	for _, raw := range variables {
		code := strings.ToUpper(strings.TrimSpace(raw))
		switch {
		case code == "":
			invalid = append(invalid, "(empty)")
		case len(code) > 50:
			invalid = append(invalid, raw+" (too long)")
		default:
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			normalized = append(normalized, code)
		}
	}

	if len(invalid) > 0 {
		return nil, apperrors.Newf(apperrors.KindValidation, "invalid variable codes: %s", strings.Join(invalid, ", ")).
			WithContext(apperrors.CtxField, "variables").
			WithContext(apperrors.CtxActual, invalid)
	}
	return normalized, nil
}

// ValidateDateRange checks that the requested range is ordered and within
// plausible bounds.
func ValidateDateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperrors.New(apperrors.KindValidation, "start and end dates are required").
			WithContext(apperrors.CtxField, "date_range")
	}
	if !start.Before(end) {
		return apperrors.New(apperrors.KindValidation, "start date must be before end date").
			WithContext(apperrors.CtxField, "date_range").
			WithContext(apperrors.CtxExpected, "start < end").
			WithContext(apperrors.CtxActual, start.Format("2006-01-02")+" .. "+end.Format("2006-01-02"))
	}
	if start.Before(minDate) || end.After(maxDate) {
		return apperrors.Newf(apperrors.KindValidation, "dates must fall between %s and %s",
			minDate.Format("2006-01-02"), maxDate.Format("2006-01-02")).
			WithContext(apperrors.CtxField, "date_range")
	}
	return nil
}
