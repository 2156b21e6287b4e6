package vendorhttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(model.VendorSolarEdge, server.Client(), server.URL+"/api", NewLimiter(model.VendorSolarEdge, 0, 300), opts...)
	require.NoError(t, err)
	return client
}

func TestGetJSON_SendsAuthQueryAndDecodes(t *testing.T) {
	var gotPath, gotKey, gotSize string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("api_key")
		gotSize = r.URL.Query().Get("size")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"roof","id":42}`))
	}), WithQuery("api_key", "secret"))

	var out struct {
		Name string `json:"name"`
		ID   ID     `json:"id"`
	}
	err := client.GetJSON(context.Background(), "test", "/sites/list", url.Values{"size": {"100"}}, &out)

	require.NoError(t, err)
	assert.Equal(t, "/api/sites/list", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "100", gotSize)
	assert.Equal(t, "roof", out.Name)
	assert.Equal(t, ID("42"), out.ID)
	assert.Equal(t, 1, client.Usage().Count)
}

func TestGetJSON_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: driven.ErrAuth},
		{name: "forbidden", status: http.StatusForbidden, want: driven.ErrAuth},
		{name: "too many requests", status: http.StatusTooManyRequests, want: driven.ErrRateLimited},
		{name: "not found", status: http.StatusNotFound, want: driven.ErrNotSupported},
		{name: "bad request", status: http.StatusBadRequest, want: driven.ErrValidation},
		{name: "server error", status: http.StatusBadGateway, want: driven.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			var out map[string]any
			err := client.GetJSON(context.Background(), "test", "/x", nil, &out)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGetJSON_RateLimitCarriesRetryAfter(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	var out map[string]any
	err := client.GetJSON(context.Background(), "list sites", "/x", nil, &out)

	require.ErrorIs(t, err, driven.ErrRateLimited)
	assert.Equal(t, 60*time.Second, driven.RetryAfterOf(err))
}

func TestGetJSON_MalformedBodyIsValidationError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"broken":`))
	}))

	var out map[string]any
	err := client.GetJSON(context.Background(), "test", "/x", nil, &out)

	assert.ErrorIs(t, err, driven.ErrValidation)
}

func TestGetJSON_NetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := New(model.VendorEnphase, server.Client(), server.URL, nil)
	require.NoError(t, err)

	var out map[string]any
	err = client.GetJSON(context.Background(), "test", "/x", nil, &out)

	assert.ErrorIs(t, err, driven.ErrTransient)
}

func TestGetJSON_NetworkFailureOmitsCredentials(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := New(model.VendorSolarEdge, server.Client(), server.URL, nil, WithQuery("api_key", "SUPERSECRETKEY123456"))
	require.NoError(t, err)

	var out map[string]any
	err = client.GetJSON(context.Background(), "list sites", "/sites/list", url.Values{"size": {"100"}}, &out)

	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrTransient)
	assert.NotContains(t, err.Error(), "SUPERSECRETKEY123456")
	assert.NotContains(t, err.Error(), "api_key")
	assert.Contains(t, err.Error(), "/sites/list")
}

func TestRedactURL_PassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, redactURL(plain))

	wrapped := redactURL(&url.Error{Op: "Get", URL: "https://user:pw@api.example.com/systems?key=abc", Err: context.DeadlineExceeded})
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.NotContains(t, wrapped.Error(), "key=abc")
	assert.NotContains(t, wrapped.Error(), "pw")
}

func TestRecords_SkipsMalformedElements(t *testing.T) {
	var page struct {
		Items Records[struct {
			ID        ID      `json:"id"`
			PeakPower float64 `json:"peakPower"`
		}] `json:"items"`
	}

	err := json.Unmarshal([]byte(`{"items":[{"id":1,"peakPower":7500},{"id":2,"peakPower":"n/a"},{"id":3}]}`), &page)

	require.NoError(t, err)
	require.Len(t, page.Items.Items, 2)
	assert.Equal(t, ID("1"), page.Items.Items[0].ID)
	assert.Equal(t, 7500.0, page.Items.Items[0].PeakPower)
	assert.Equal(t, ID("3"), page.Items.Items[1].ID)
	assert.Equal(t, 1, page.Items.Skipped)
	assert.Equal(t, 3, page.Items.Len())
}

func TestRecords_NullAndNonArray(t *testing.T) {
	var r Records[int]
	require.NoError(t, json.Unmarshal([]byte(`null`), &r))
	assert.Empty(t, r.Items)
	assert.Zero(t, r.Len())

	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &r))
}

func TestGetJSON_CanceledContext(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out map[string]any
	err := client.GetJSON(ctx, "test", "/x", nil, &out)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 120*time.Second, ParseRetryAfter("120", now))
	assert.Equal(t, 90*time.Second, ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("-5", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
	assert.Zero(t, ParseRetryAfter(now.Add(-time.Hour).Format(http.TimeFormat), now))
}

func TestLimiter_SpacesRequests(t *testing.T) {
	limiter := NewLimiter(model.VendorGenerac, 50*time.Millisecond, 0)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		require.NoError(t, limiter.Wait(ctx))
	}

	// Burst of one: the second and third requests each wait one interval.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 3, limiter.Usage().Count)
}

func TestLimiter_WaitHonoursCancellation(t *testing.T) {
	limiter := NewLimiter(model.VendorGenerac, time.Hour, 0)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, limiter.Wait(ctx))
}

func TestLimiter_DailyCounterRollsOver(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	limiter := NewLimiter(model.VendorSolarEdge, 0, 2)
	limiter.now = func() time.Time { return now }

	for range 3 {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	usage := limiter.Usage()
	assert.Equal(t, 3, usage.Count)
	assert.True(t, usage.Exceeded())
	assert.Equal(t, "2026-03-01", usage.Day)

	now = now.Add(2 * time.Minute)
	usage = limiter.Usage()
	assert.Equal(t, 0, usage.Count)
	assert.Equal(t, "2026-03-02", usage.Day)
}

func TestID_UnmarshalVariants(t *testing.T) {
	var got struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"abc","b":12345678901,"c":null}`), &got))

	assert.Equal(t, ID("abc"), got.A)
	assert.Equal(t, ID("12345678901"), got.B)
	assert.Equal(t, ID(""), got.C)
}

func TestParseTime(t *testing.T) {
	got := ParseTime("2026-03-01 10:00:00", nil)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), *got)

	got = ParseTime("2026-03-01T10:00:00Z", nil)
	require.NotNil(t, got)

	got = ParseTime("1767225600", nil)
	require.NotNil(t, got)
	assert.Equal(t, int64(1767225600), got.Unix())

	assert.Nil(t, ParseTime("", nil))
	assert.Nil(t, ParseTime("yesterday", nil))
	assert.Nil(t, EpochTime(0))
}
