package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmintel/internal/config"
	"pmintel/internal/history"
	"pmintel/internal/market"
	"pmintel/internal/metrics"
	"pmintel/internal/news"
	"pmintel/internal/refresh"
	"pmintel/internal/strategy"
)

type fakeSource struct {
	snap     *refresh.Snapshot
	triggers atomic.Int32
}

func (f *fakeSource) Latest() *refresh.Snapshot { return f.snap }

func (f *fakeSource) Trigger() { f.triggers.Add(1) }

type fakeHistory struct {
	report *history.Report
	err    error
}

func (f fakeHistory) Generate(context.Context) (*history.Report, error) {
	return f.report, f.err
}

func ptr(v float64) *float64 { return &v }

func testSnapshot() *refresh.Snapshot {
	at := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	buy := strategy.Scored{
		Record:    market.Record{ID: "static-2", Name: "Bitcoin above 100k", Reference: 0.33, URL: "https://example.com/btc", Source: "static"},
		Estimated: ptr(0.55),
		Gap:       ptr(0.22),
		Signal:    strategy.Buy,
		Strategy:  "news_biased",
	}
	return &refresh.Snapshot{
		ID:          uuid.New(),
		Strategy:    "news_biased",
		Source:      "static",
		StartedAt:   at,
		CompletedAt: at,
		Markets: []strategy.Scored{
			{Record: market.Record{ID: "static-1", Name: "US Election 2024", Reference: 0.52}, Estimated: ptr(0.55), Gap: ptr(0.03), Signal: strategy.Hold},
			buy,
		},
		News: []news.Item{
			{Title: "Election commission sets date", Published: at.Add(-time.Hour), Link: "https://example.com/a"},
		},
		Alerts:   []strategy.Scored{buy},
		Warnings: []string{},
	}
}

func newTestServer(src SnapshotSource, hist HistorySource) *Server {
	return New(config.ServerConfig{Addr: ":0"}, src, hist, metrics.New())
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAPI_NotReady(t *testing.T) {
	s := newTestServer(&fakeSource{}, nil)

	for _, path := range []string{"/api/snapshot", "/api/markets", "/api/alerts", "/api/news"} {
		rec := do(t, s, http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, http.StatusServiceUnavailable, decode(t, rec).Code, path)
	}

	rec := do(t, s, http.MethodGet, "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Waiting for the first refresh")

	rec = do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "warming_up")
}

func TestAPI_Snapshot(t *testing.T) {
	snap := testSnapshot()
	s := newTestServer(&fakeSource{snap: snap}, nil)

	rec := do(t, s, http.MethodGet, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Code int              `json:"code"`
		Data refresh.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, snap.ID, body.Data.ID)
	assert.Len(t, body.Data.Markets, 2)
	assert.Len(t, body.Data.Alerts, 1)
}

func TestAPI_Markets(t *testing.T) {
	s := newTestServer(&fakeSource{snap: testSnapshot()}, nil)

	rec := do(t, s, http.MethodGet, "/api/markets")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.EqualValues(t, 2, resp.Meta["total"])

	rec = do(t, s, http.MethodGet, "/api/markets?signal=buy")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode(t, rec)
	assert.EqualValues(t, 1, resp.Meta["total"])
	assert.Contains(t, rec.Body.String(), "Bitcoin above 100k")
	assert.NotContains(t, rec.Body.String(), "US Election 2024")

	rec = do(t, s, http.MethodGet, "/api/markets?signal=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_AlertsAndNews(t *testing.T) {
	s := newTestServer(&fakeSource{snap: testSnapshot()}, nil)

	rec := do(t, s, http.MethodGet, "/api/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec).Meta["total"])

	rec = do(t, s, http.MethodGet, "/api/news")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Election commission sets date")
}

func TestAPI_EmptyListsAreArrays(t *testing.T) {
	snap := testSnapshot()
	snap.Alerts = []strategy.Scored{}
	s := newTestServer(&fakeSource{snap: snap}, nil)

	rec := do(t, s, http.MethodGet, "/api/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestAPI_Refresh(t *testing.T) {
	src := &fakeSource{}
	s := newTestServer(src, nil)

	rec := do(t, s, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int32(1), src.triggers.Load())

	rec = do(t, s, http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, int32(1), src.triggers.Load())
}

func TestAPI_History(t *testing.T) {
	src := &fakeSource{snap: testSnapshot()}

	rec := do(t, newTestServer(src, nil), http.MethodGet, "/api/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	hist := fakeHistory{report: &history.Report{Refreshes: 4}}
	rec = do(t, newTestServer(src, hist), http.MethodGet, "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"refreshes":4`)

	rec = do(t, newTestServer(src, fakeHistory{err: errors.New("db closed")}), http.MethodGet, "/api/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIndex(t *testing.T) {
	s := newTestServer(&fakeSource{snap: testSnapshot()}, nil)

	rec := do(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "Prediction Market Intelligence Dashboard")
	assert.Contains(t, body, "Market Opportunities")
	assert.Contains(t, body, "Bitcoin above 100k → BUY | Market: 0.33 | Estimated: 0.55 | Gap: 0.22")
	assert.Contains(t, body, "Election commission sets date")
	assert.Contains(t, body, "Election commission sets date (2024-06-10 11:00)")
	assert.Less(t, strings.Index(body, "Alerts"), strings.Index(body, "Latest News Signals"))
}

func TestIndex_ChangeColumn(t *testing.T) {
	snap := testSnapshot()
	snap.Strategy = "change_threshold"
	snap.Markets = []strategy.Scored{{
		Record: market.Record{ID: "bitcoin", Name: "Bitcoin", Reference: 64000.5, Change24h: ptr(-2.5)},
		Signal: strategy.Sell,
	}}
	s := newTestServer(&fakeSource{snap: snap}, nil)

	rec := do(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<th>24h %</th>")
	assert.Contains(t, body, "<td>-2.50</td>")
}

func TestIndex_NoAlerts(t *testing.T) {
	snap := testSnapshot()
	snap.Alerts = []strategy.Scored{}
	s := newTestServer(&fakeSource{snap: snap}, nil)

	rec := do(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No strong opportunities right now.")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeSource{}, nil)

	rec := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pmintel_")
}
