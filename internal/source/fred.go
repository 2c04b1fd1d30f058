package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fedseries/fedseries/internal/dataset"
	apperrors "github.com/fedseries/fedseries/internal/errors"
	"github.com/fedseries/fedseries/internal/resilience"
)

const (
	defaultFREDBaseURL = "https://api.stlouisfed.org/fred"
	fredName           = "fred"

	// FEDFUNDS has existed since 1954 and is safe to probe during Connect.
	fredTestSeries = "FEDFUNDS"
)

// FREDOptions configures a FRED client. Zero fields take the documented
// FRED defaults (120 requests/minute, 30s timeout).
type FREDOptions struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	Workers           int
	Retry             resilience.Policy
	Logger            *zap.Logger
	HTTPClient        *http.Client
	OnAttempt         func(operation string, rec resilience.AttemptRecord)
}

// FRED is the Federal Reserve Economic Data API client.
type FRED struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *resilience.Limiter
	exec    *resilience.Executor
	logger  *zap.Logger
	workers int
}

// NewFRED validates the API key and builds the client with its admission
// window and retry executor.
func NewFRED(opts FREDOptions) (*FRED, error) {
	key, err := validateFREDKey(opts.APIKey)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultFREDBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 120
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := opts.Retry
	if policy.MaxAttempts == 0 {
		policy = resilience.DefaultPolicy()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	limiter := resilience.NewLimiter(rpm, time.Minute)
	return &FRED{
		apiKey:  key,
		baseURL: baseURL,
		client:  client,
		limiter: limiter,
		exec: &resilience.Executor{
			Limiter:   limiter,
			Policy:    policy,
			Logger:    logger,
			OnAttempt: opts.OnAttempt,
		},
		logger:  logger,
		workers: workers,
	}, nil
}

// Name implements DataSource.
func (f *FRED) Name() string { return fredName }

// Connect probes the API with a known series to verify the key.
func (f *FRED) Connect(ctx context.Context) error {
	return f.exec.Execute(ctx, "fred.connect", func(ctx context.Context) error {
		params := url.Values{
			"series_id": {fredTestSeries},
			"limit":     {"1"},
		}
		var out fredSeriesResponse
		return f.getJSON(ctx, "/series", params, &out)
	})
}

// Fetch retrieves observations for every requested variable, fanning out
// across a bounded worker group. Variables that fail individually are
// reported but do not sink the ones that succeeded; the request fails only
// when nothing was retrieved.
func (f *FRED) Fetch(ctx context.Context, req Request) (*dataset.Table, error) {
	variables, err := NormalizeVariables(req.Variables)
	if err != nil {
		return nil, err
	}
	if err := ValidateDateRange(req.Start, req.End); err != nil {
		return nil, err
	}

	f.logger.Info("retrieving FRED data",
		zap.Int("variables", len(variables)),
		zap.String("start", req.Start.Format("2006-01-02")),
		zap.String("end", req.End.Format("2006-01-02")),
	)

	var (
		mu      sync.Mutex
		series  = make(map[string]dataset.Series, len(variables))
		failed  []string
		lastErr error
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.workers)
	for _, code := range variables {
		group.Go(func() error {
			s, err := f.fetchObservations(groupCtx, code, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.logger.Warn("failed to retrieve variable", zap.String("variable", code), zap.Error(err))
				failed = append(failed, code)
				lastErr = err
				return nil
			}
			series[code] = s
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if len(series) == 0 {
		out := apperrors.NewDataRetrieval("no data retrieved for any requested variables", variables, 0).
			WithContext("date_range", req.Start.Format("2006-01-02")+" .. "+req.End.Format("2006-01-02"))
		if cause, ok := apperrors.As(lastErr); ok {
			out.WithContext("last_error", cause.Message)
		}
		return nil, out
	}
	if len(failed) > 0 {
		f.logger.Warn("some variables were not retrieved", zap.Strings("variables", failed))
	}

	ordered := make([]dataset.Series, 0, len(series))
	for _, code := range variables {
		if s, ok := series[code]; ok {
			ordered = append(ordered, s)
		}
	}
	table := dataset.Align(ordered)
	f.logger.Info("FRED retrieval complete",
		zap.Int("rows", table.NumRows()),
		zap.Int("columns", table.NumColumns()),
	)
	return table, nil
}

// Metadata retrieves series metadata for each variable.
func (f *FRED) Metadata(ctx context.Context, variables []string) (map[string]dataset.Metadata, error) {
	normalized, err := NormalizeVariables(variables)
	if err != nil {
		return nil, err
	}

	out := make(map[string]dataset.Metadata, len(normalized))
	for _, code := range normalized {
		var resp fredSeriesResponse
		err := f.exec.Execute(ctx, "fred.series("+code+")", func(ctx context.Context) error {
			return f.getJSON(ctx, "/series", url.Values{"series_id": {code}}, &resp)
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Seriess) == 0 {
			return nil, apperrors.NewDataRetrieval("no metadata found for variable "+code, []string{code}, 0)
		}
		info := resp.Seriess[0]
		out[code] = dataset.Metadata{
			Code:        code,
			Name:        info.Title,
			Description: info.Notes,
			Units:       info.Units,
			Frequency:   info.Frequency,
			Source:      "FRED",
			StartDate:   info.ObservationStart,
			EndDate:     info.ObservationEnd,
		}
	}
	return out, nil
}

// RateStatus implements DataSource.
func (f *FRED) RateStatus() resilience.Status { return f.limiter.Status() }

// Close implements DataSource.
func (f *FRED) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

func (f *FRED) fetchObservations(ctx context.Context, code string, req Request) (dataset.Series, error) {
	params := url.Values{
		"series_id":         {code},
		"observation_start": {req.Start.Format("2006-01-02")},
		"observation_end":   {req.End.Format("2006-01-02")},
		"sort_order":        {"asc"},
	}
	if req.Frequency != "" {
		params.Set("frequency", req.Frequency)
	}
	if req.Aggregation != "" {
		params.Set("aggregation_method", req.Aggregation)
	}
	if req.Transformation != "" {
		params.Set("units", req.Transformation)
	}

	return resilience.ExecuteValue(ctx, f.exec, "fred.observations("+code+")",
		func(ctx context.Context) (dataset.Series, error) {
			var resp fredObservationsResponse
			if err := f.getJSON(ctx, "/series/observations", params, &resp); err != nil {
				return dataset.Series{}, err
			}
			return f.parseObservations(code, resp), nil
		})
}

func (f *FRED) parseObservations(code string, resp fredObservationsResponse) dataset.Series {
	series := dataset.Series{Code: code}
	for _, obs := range resp.Observations {
		// FRED encodes missing values as ".".
		if obs.Value == "." {
			continue
		}
		date, err := time.Parse("2006-01-02", obs.Date)
		if err != nil {
			f.logger.Debug("skipping observation with invalid date",
				zap.String("variable", code), zap.String("date", obs.Date))
			continue
		}
		value, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			f.logger.Debug("skipping observation with invalid value",
				zap.String("variable", code), zap.String("value", obs.Value))
			continue
		}
		series.Observations = append(series.Observations, dataset.Observation{Date: date, Value: value})
	}
	return series
}

// getJSON performs one FRED API call and decodes the response, mapping
// every failure onto the taxonomy.
func (f *FRED) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	query.Set("api_key", f.apiKey)
	query.Set("file_type", "json")

	endpoint := f.baseURL + path
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, err, "invalid FRED request")
	}
	request.Header.Set("User-Agent", "fedseries/1.0")
	request.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(request)
	if err != nil {
		return classifyTransport(fredName, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		// FRED reports bad keys as 400 with an explanatory message.
		var apiErr fredErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if strings.Contains(strings.ToLower(apiErr.ErrorMessage), "api_key") {
			return apperrors.NewAuthentication("invalid FRED API key: "+apiErr.ErrorMessage, "FRED", keyHint(f.apiKey)).
				WithContext(apperrors.CtxEndpoint, endpoint).
				WithContext(apperrors.CtxStatusCode, resp.StatusCode).
				WithSuggestion("check FRED_API_KEY; request a key at https://fred.stlouisfed.org/docs/api/api_key.html")
		}
		message := apiErr.ErrorMessage
		if message == "" {
			message = "FRED rejected the request"
		}
		return apperrors.NewDataRetrieval(message, nil, resp.StatusCode).
			WithContext(apperrors.CtxEndpoint, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(fredName, endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.KindDataRetrieval, err, "invalid FRED response format").
			WithContext(apperrors.CtxEndpoint, endpoint)
	}
	return nil
}

func validateFREDKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", apperrors.New(apperrors.KindValidation, "FRED API key must be a non-empty string").
			WithContext(apperrors.CtxField, "api_key").
			WithSuggestion("set FRED_API_KEY; request a key at https://fred.stlouisfed.org/docs/api/api_key.html")
	}
	stripped := strings.ReplaceAll(key, "-", "")
	if len(key) != 32 || !isAlphanumeric(stripped) {
		return "", apperrors.New(apperrors.KindValidation, "FRED API key must be a 32 character alphanumeric string").
			WithContext(apperrors.CtxField, "api_key").
			WithContext(apperrors.CtxExpected, "32 character alphanumeric").
			WithContext(apperrors.CtxActual, fmt.Sprintf("length %d", len(key)))
	}
	return key, nil
}

func isAlphanumeric(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

// keyHint exposes just enough of the key to identify it in logs.
func keyHint(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

type fredObservationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

type fredSeriesResponse struct {
	Seriess []fredSeriesInfo `json:"seriess"`
}

type fredSeriesInfo struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Notes            string `json:"notes"`
	Units            string `json:"units"`
	Frequency        string `json:"frequency"`
	ObservationStart string `json:"observation_start"`
	ObservationEnd   string `json:"observation_end"`
}

type fredErrorResponse struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}
