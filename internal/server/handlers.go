package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fedseries/fedseries/internal/dataset"
	apperrors "github.com/fedseries/fedseries/internal/errors"
	"github.com/fedseries/fedseries/internal/output"
	"github.com/fedseries/fedseries/internal/source"
)

// Version info is injected from main at build time.
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

// SetVersionInfo sets the version information reported by /version.
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"sources": len(s.sources),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app": map[string]any{
			"name":       "fedseries",
			"version":    AppVersion,
			"git_commit": AppCommit,
			"build_date": AppBuildDate,
			"go_version": runtime.Version(),
		},
		"runtime": map[string]any{
			"platform":       runtime.GOOS + "/" + runtime.GOARCH,
			"num_cpu":        runtime.NumCPU(),
			"num_goroutines": runtime.NumGoroutine(),
		},
	})
}

type sourceStatus struct {
	Name        string  `json:"name"`
	MaxRequests int     `json:"max_requests"`
	WindowSecs  float64 `json:"window_seconds"`
	Used        int     `json:"used"`
	Remaining   int     `json:"remaining"`
	ResetSecs   float64 `json:"reset_in_seconds"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	statuses := make([]sourceStatus, 0, len(s.sources))
	for _, name := range source.Names() {
		ds, ok := s.sources[name]
		if !ok {
			continue
		}
		status := ds.RateStatus()
		statuses = append(statuses, sourceStatus{
			Name:        name,
			MaxRequests: status.MaxRequests,
			WindowSecs:  status.Window.Seconds(),
			Used:        status.Used,
			Remaining:   status.Remaining,
			ResetSecs:   status.ResetIn.Seconds(),
		})
		if s.metrics != nil {
			s.metrics.ObserveRateStatus(name, status)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": statuses})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	ds, err := s.lookupSource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := parseSeriesRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format, err := output.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, apperrors.New(apperrors.KindValidation, err.Error()).
			WithContext(apperrors.CtxField, "format"))
		return
	}

	table, err := ds.Fetch(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveRateStatus(ds.Name(), ds.RateStatus())
	}

	opts := output.Options{Long: queryBool(r, "long")}
	w.Header().Set("Content-Type", contentTypeFor(format))
	if format == output.FormatExcel {
		w.Header().Set("Content-Disposition", `attachment; filename="series.xlsx"`)
	}
	if err := output.NewFormatter(format, opts).WriteTable(w, table); err != nil {
		s.logger.Warn("failed to render response", zap.Error(err))
	}
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	ds, err := s.lookupSource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	variables := splitVariables(r.URL.Query().Get("variables"))
	format, err := output.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, apperrors.New(apperrors.KindValidation, err.Error()).
			WithContext(apperrors.CtxField, "format"))
		return
	}
	if format == output.FormatTable || format == output.FormatExcel {
		format = output.FormatJSON
	}

	byCode, err := ds.Metadata(r.Context(), variables)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	metadata := make([]dataset.Metadata, 0, len(byCode))
	for _, m := range byCode {
		metadata = append(metadata, m)
	}
	sort.Slice(metadata, func(i, j int) bool { return metadata[i].Code < metadata[j].Code })

	w.Header().Set("Content-Type", contentTypeFor(format))
	if err := output.NewFormatter(format, output.Options{}).WriteMetadata(w, metadata); err != nil {
		s.logger.Warn("failed to render response", zap.Error(err))
	}
}

func (s *Server) lookupSource(r *http.Request) (source.DataSource, error) {
	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("source")))
	if name == "" {
		if len(s.sources) == 1 {
			for _, ds := range s.sources {
				return ds, nil
			}
		}
		return nil, apperrors.New(apperrors.KindValidation, "source query parameter is required").
			WithContext(apperrors.CtxField, "source").
			WithSuggestion("supported sources: " + strings.Join(source.Names(), ", "))
	}
	ds, ok := s.sources[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindConfiguration, "data source %q is not configured", name).
			WithContext(apperrors.CtxConfigKey, "source")
	}
	return ds, nil
}

func parseSeriesRequest(r *http.Request) (source.Request, error) {
	q := r.URL.Query()

	variables := splitVariables(q.Get("variables"))
	if len(variables) == 0 {
		return source.Request{}, apperrors.New(apperrors.KindValidation, "variables query parameter is required").
			WithContext(apperrors.CtxField, "variables")
	}

	start, err := parseDateParam(q.Get("start"), "start")
	if err != nil {
		return source.Request{}, err
	}
	end, err := parseDateParam(q.Get("end"), "end")
	if err != nil {
		return source.Request{}, err
	}

	return source.Request{
		Variables:      variables,
		Start:          start,
		End:            end,
		Frequency:      q.Get("frequency"),
		Aggregation:    q.Get("aggregation"),
		Transformation: q.Get("transformation"),
	}, nil
}

func parseDateParam(value, field string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, apperrors.Newf(apperrors.KindValidation, "%s query parameter is required", field).
			WithContext(apperrors.CtxField, field)
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, apperrors.Newf(apperrors.KindValidation, "invalid %s date: %s", field, value).
			WithContext(apperrors.CtxField, field).
			WithContext(apperrors.CtxExpected, "YYYY-MM-DD")
	}
	return t, nil
}

func splitVariables(raw string) []string {
	parts := strings.Split(raw, ",")
	variables := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			variables = append(variables, trimmed)
		}
	}
	return variables
}

func queryBool(r *http.Request, name string) bool {
	value := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name)))
	return value == "true" || value == "1" || value == "yes"
}

func contentTypeFor(format output.Format) string {
	switch format {
	case output.FormatJSON:
		return "application/json"
	case output.FormatCSV:
		return "text/csv; charset=utf-8"
	case output.FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
