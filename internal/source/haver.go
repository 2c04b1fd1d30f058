package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
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
	defaultHaverBaseURL  = "https://api.haveranalytics.com/v1"
	defaultHaverDatabase = "USECON"
	haverName            = "haver"
)

// HaverOptions configures a Haver Analytics client. The Haver API is far
// stricter than FRED about request rates, so the default window is 10
// requests per second.
type HaverOptions struct {
	Username          string
	Password          string
	BaseURL           string
	Database          string
	Timeout           time.Duration
	RequestsPerSecond int
	Workers           int
	Retry             resilience.Policy
	Logger            *zap.Logger
	HTTPClient        *http.Client
	OnAttempt         func(operation string, rec resilience.AttemptRecord)
}

// Haver is the Haver Analytics API client.
type Haver struct {
	username string
	password string
	baseURL  string
	database string
	client   *http.Client
	limiter  *resilience.Limiter
	exec     *resilience.Executor
	logger   *zap.Logger
	workers  int
}

// NewHaver validates the credentials and builds the client.
func NewHaver(opts HaverOptions) (*Haver, error) {
	username := strings.TrimSpace(opts.Username)
	if username == "" {
		return nil, apperrors.New(apperrors.KindValidation, "Haver username must be a non-empty string").
			WithContext(apperrors.CtxField, "username").
			WithSuggestion("set HAVER_USERNAME with your Haver Analytics account name")
	}
	if opts.Password == "" {
		return nil, apperrors.New(apperrors.KindValidation, "Haver password must be a non-empty string").
			WithContext(apperrors.CtxField, "password").
			WithSuggestion("set HAVER_PASSWORD with your Haver Analytics password")
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultHaverBaseURL
	}
	database := strings.ToUpper(strings.TrimSpace(opts.Database))
	if database == "" {
		database = defaultHaverDatabase
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
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

	limiter := resilience.NewLimiter(rps, time.Second)
	return &Haver{
		username: username,
		password: opts.Password,
		baseURL:  baseURL,
		database: database,
		client:   client,
		limiter:  limiter,
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
func (h *Haver) Name() string { return haverName }

// Connect lists the account's databases to verify the credentials.
func (h *Haver) Connect(ctx context.Context) error {
	return h.exec.Execute(ctx, "haver.connect", func(ctx context.Context) error {
		var out haverDatabasesResponse
		if err := h.getJSON(ctx, "/databases", nil, &out); err != nil {
			return err
		}
		h.logger.Debug("connected to Haver", zap.Int("databases", len(out.Databases)))
		return nil
	})
}

// Fetch retrieves observations for every requested series from the
// configured database. Partial failures are tolerated; the request fails
// only when no series could be retrieved.
func (h *Haver) Fetch(ctx context.Context, req Request) (*dataset.Table, error) {
	variables, err := NormalizeVariables(req.Variables)
	if err != nil {
		return nil, err
	}
	if err := ValidateDateRange(req.Start, req.End); err != nil {
		return nil, err
	}

	h.logger.Info("retrieving Haver data",
		zap.String("database", h.database),
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
	group.SetLimit(h.workers)
	for _, code := range variables {
		group.Go(func() error {
			s, err := h.fetchSeries(groupCtx, code, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				h.logger.Warn("failed to retrieve variable", zap.String("variable", code), zap.Error(err))
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
			WithContext("database", h.database)
		if cause, ok := apperrors.As(lastErr); ok {
			out.WithContext("last_error", cause.Message)
		}
		return nil, out
	}
	if len(failed) > 0 {
		h.logger.Warn("some variables were not retrieved", zap.Strings("variables", failed))
	}

	ordered := make([]dataset.Series, 0, len(series))
	for _, code := range variables {
		if s, ok := series[code]; ok {
			ordered = append(ordered, s)
		}
	}
	table := dataset.Align(ordered)
	h.logger.Info("Haver retrieval complete",
		zap.Int("rows", table.NumRows()),
		zap.Int("columns", table.NumColumns()),
	)
	return table, nil
}

// Metadata retrieves series descriptions from the configured database.
func (h *Haver) Metadata(ctx context.Context, variables []string) (map[string]dataset.Metadata, error) {
	normalized, err := NormalizeVariables(variables)
	if err != nil {
		return nil, err
	}

	out := make(map[string]dataset.Metadata, len(normalized))
	for _, code := range normalized {
		var resp haverSeriesInfo
		err := h.exec.Execute(ctx, "haver.info("+code+")", func(ctx context.Context) error {
			return h.getJSON(ctx, "/info/"+h.database+"/"+code, nil, &resp)
		})
		if err != nil {
			return nil, err
		}
		out[code] = dataset.Metadata{
			Code:        code,
			Name:        resp.Description,
			Description: resp.Description,
			Units:       resp.Units,
			Frequency:   resp.Frequency,
			Source:      "Haver Analytics (" + h.database + ")",
			StartDate:   resp.StartDate,
			EndDate:     resp.EndDate,
		}
	}
	return out, nil
}

// RateStatus implements DataSource.
func (h *Haver) RateStatus() resilience.Status { return h.limiter.Status() }

// Close implements DataSource.
func (h *Haver) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

func (h *Haver) fetchSeries(ctx context.Context, code string, req Request) (dataset.Series, error) {
	params := url.Values{
		"start_date": {req.Start.Format("2006-01-02")},
		"end_date":   {req.End.Format("2006-01-02")},
		"format":     {"json"},
	}
	if req.Frequency != "" {
		params.Set("frequency", req.Frequency)
	}

	return resilience.ExecuteValue(ctx, h.exec, "haver.data("+code+")",
		func(ctx context.Context) (dataset.Series, error) {
			var resp haverDataResponse
			if err := h.getJSON(ctx, "/data/"+h.database+"/"+code, params, &resp); err != nil {
				return dataset.Series{}, err
			}
			return h.parseData(code, resp), nil
		})
}

func (h *Haver) parseData(code string, resp haverDataResponse) dataset.Series {
	series := dataset.Series{Code: code}
	for _, point := range resp.Data {
		// Daily series carry "date", lower frequencies carry "period".
		raw := point.Date
		if raw == "" {
			raw = point.Period
		}
		date, ok := parseHaverDate(raw)
		if !ok {
			h.logger.Debug("skipping observation with invalid date",
				zap.String("variable", code), zap.String("date", raw))
			continue
		}
		if point.Value == nil {
			continue
		}
		series.Observations = append(series.Observations, dataset.Observation{Date: date, Value: *point.Value})
	}
	return series
}

// parseHaverDate accepts the date shapes Haver emits across frequencies:
// daily (2024-01-15), monthly (2024-01), and annual (2024).
func parseHaverDate(raw string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// getJSON performs one authenticated Haver API call, mapping every failure
// onto the taxonomy.
func (h *Haver) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := h.baseURL + path
	target := endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, err, "invalid Haver request")
	}
	request.SetBasicAuth(h.username, h.password)
	request.Header.Set("User-Agent", "fedseries/1.0")
	request.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(request)
	if err != nil {
		return classifyTransport(haverName, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperrors.NewAuthentication("Haver rejected the credentials", "Haver", h.username+":***").
			WithContext(apperrors.CtxEndpoint, endpoint).
			WithContext(apperrors.CtxStatusCode, resp.StatusCode).
			WithSuggestion("check HAVER_USERNAME and HAVER_PASSWORD, and that the subscription covers " + h.database)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(haverName, endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.KindDataRetrieval, err, "invalid Haver response format").
			WithContext(apperrors.CtxEndpoint, endpoint)
	}
	return nil
}

type haverDatabasesResponse struct {
	Databases []string `json:"databases"`
}

type haverDataResponse struct {
	Data []struct {
		Date   string   `json:"date"`
		Period string   `json:"period"`
		Value  *float64 `json:"value"`
	} `json:"data"`
}

type haverSeriesInfo struct {
	Description string `json:"description"`
	Units       string `json:"units"`
	Frequency   string `json:"frequency"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}
