package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/fedseries/fedseries/internal/errors"
	"github.com/fedseries/fedseries/internal/resilience"
)

const testFREDKey = "abcdefghijklmnopqrstuvwxyz123456"

func fastRetry() resilience.Policy {
	p := resilience.DefaultPolicy()
	p.BackoffBase = time.Millisecond
	p.BackoffMax = 5 * time.Millisecond
	return p
}

func newTestFRED(t *testing.T, baseURL string) *FRED {
	t.Helper()
	f, err := NewFRED(FREDOptions{
		APIKey:            testFREDKey,
		BaseURL:           baseURL,
		RequestsPerMinute: 1000,
		Workers:           1,
		Retry:             fastRetry(),
	})
	require.NoError(t, err)
	return f
}

func TestNewFREDKeyValidation(t *testing.T) {
	_, err := NewFRED(FREDOptions{APIKey: ""})
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = NewFRED(FREDOptions{APIKey: "too-short"})
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = NewFRED(FREDOptions{APIKey: "!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!"})
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	// Hyphens are ignored when checking the alphanumeric rule.
	f, err := NewFRED(FREDOptions{APIKey: "abcdefgh-jklmnopqrstuvwxyz123456"})
	require.NoError(t, err)
	require.Equal(t, "fred", f.Name())
}

func TestFREDFetchParsesObservations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/series/observations", r.URL.Path)
		require.Equal(t, testFREDKey, r.URL.Query().Get("api_key"))
		require.Equal(t, "json", r.URL.Query().Get("file_type"))
		require.Equal(t, "GDP", r.URL.Query().Get("series_id"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"observations": []map[string]string{
				{"date": "2020-01-01", "value": "21538.032"},
				{"date": "2020-04-01", "value": "."},
				{"date": "2020-07-01", "value": "21684.551"},
			},
		})
	}))
	defer srv.Close()

	f := newTestFRED(t, srv.URL)
	table, err := f.Fetch(context.Background(), Request{
		Variables: []string{"GDP"},
		Start:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// The "." observation is a missing value and is skipped.
	require.Equal(t, 2, table.NumRows())
	value, ok := table.Value("GDP", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	require.Equal(t, 21538.032, value)
}

func TestFREDFetchPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("series_id") == "NOPE" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"observations": []map[string]string{
				{"date": "2021-01-01", "value": "0.09"},
			},
		})
	}))
	defer srv.Close()

	f := newTestFRED(t, srv.URL)
	table, err := f.Fetch(context.Background(), Request{
		Variables: []string{"FEDFUNDS", "NOPE"},
		Start:     time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
	})

	// One variable failed but the other succeeded, so the fetch succeeds
	// with the surviving column.
	require.NoError(t, err)
	require.Equal(t, []string{"FEDFUNDS"}, table.Columns())
}

func TestFREDFetchAllVariablesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFRED(t, srv.URL)
	_, err := f.Fetch(context.Background(), Request{
		Variables: []string{"NOPE1", "NOPE2"},
		Start:     time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.True(t, apperrors.IsKind(err, apperrors.KindDataRetrieval))
}

func TestFREDRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"observations": []map[string]string{
				{"date": "2022-01-03", "value": "1.63"},
			},
		})
	}))
	defer srv.Close()

	f := newTestFRED(t, srv.URL)
	table, err := f.Fetch(context.Background(), Request{
		Variables: []string{"DGS10"},
		Start:     time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Equal(t, 1, table.NumRows())
}

func TestFREDConnectRejectsBadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code":    400,
			"error_message": "Bad Request. The value for variable api_key is not a 32 character alpha-numeric lower-case string.",
		})
	}))
	defer srv.Close()

	f := newTestFRED(t, srv.URL)
	err := f.Connect(context.Background())
	require.True(t, apperrors.IsKind(err, apperrors.KindAuthentication))

	typed, ok := apperrors.As(err)
	require.True(t, ok)
	require.Contains(t, typed.Suggestion, "FRED_API_KEY")
}

func TestFREDRateLimitResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f, err := NewFRED(FREDOptions{
		APIKey:            testFREDKey,
		BaseURL:           srv.URL,
		RequestsPerMinute: 1000,
		Retry: resilience.Policy{
			MaxAttempts:    1,
			BackoffBase:    time.Millisecond,
			BackoffMax:     time.Millisecond,
			RetryableKinds: map[apperrors.Kind]bool{},
		},
	})
	require.NoError(t, err)

	connectErr := f.Connect(context.Background())
	require.True(t, apperrors.IsKind(connectErr, apperrors.KindRateLimit))

	typed, ok := apperrors.As(connectErr)
	require.True(t, ok)
	wait, ok := typed.RetryAfter()
	require.True(t, ok)
	require.Equal(t, time.Second, wait)
}

func TestFREDMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/series", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"seriess": []map[string]any{{
				"id":                "FEDFUNDS",
				"title":             "Federal Funds Effective Rate",
				"units":             "Percent",
				"frequency":         "Monthly",
				"observation_start": "1954-07-01",
				"observation_end":   "2026-07-01",
			}},
		})
	}))
	defer srv.Close()

	f := newTestFRED(t, srv.URL)
	metadata, err := f.Metadata(context.Background(), []string{"fedfunds"})
	require.NoError(t, err)

	m, ok := metadata["FEDFUNDS"]
	require.True(t, ok)
	require.Equal(t, "Federal Funds Effective Rate", m.Name)
	require.Equal(t, "Percent", m.Units)
	require.Equal(t, "FRED", m.Source)
	require.Equal(t, "1954-07-01", m.StartDate)
}

func TestFREDRateStatus(t *testing.T) {
	f := newTestFRED(t, "http://example.invalid")
	status := f.RateStatus()
	require.Equal(t, 1000, status.MaxRequests)
	require.Equal(t, time.Minute, status.Window)
	require.Zero(t, status.Used)
}
