package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/checkpoint"
	"github.com/showwatch/showwatch/internal/show"
)

type fakeState struct{ state *checkpoint.CrawlState }

func (f fakeState) Load(context.Context) *checkpoint.CrawlState { return f.state }

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{}, fakeState{}, zap.NewNop())
	rec := doRequest(t, srv, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGetCrawlStateReturnsSnapshot(t *testing.T) {
	t.Parallel()

	state := &checkpoint.CrawlState{
		LastUpdated:      time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		AllDatesToScrape: []string{"2025-06-01", "2025-06-02", "2025-06-03"},
		ProcessedDates:   []string{"2025-06-01"},
		PendingJobs: []show.Job{
			{URL: "https://venue.example/programm/2025-06-02", Day: "2025-06-02"},
		},
		RequestCount: 7,
	}
	srv := NewServer(Config{}, fakeState{state: state}, zap.NewNop())

	rec := doRequest(t, srv, http.MethodGet, "/v1/crawl/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		TotalDates   int      `json:"total_dates"`
		Processed    int      `json:"processed"`
		PendingDates []string `json:"pending_dates"`
		RequestCount int      `json:"request_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.TotalDates)
	require.Equal(t, 1, body.Processed)
	require.Equal(t, []string{"2025-06-02", "2025-06-03"}, body.PendingDates)
	require.Equal(t, 7, body.RequestCount)
}

func TestGetCrawlStateWithoutActiveCrawl(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{}, fakeState{}, zap.NewNop())
	rec := doRequest(t, srv, http.MethodGet, "/v1/crawl/state")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{}, fakeState{}, zap.NewNop())
	rec := doRequest(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
