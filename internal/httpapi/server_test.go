package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketvet/marketvet/internal/accuracy"
	"github.com/marketvet/marketvet/internal/health"
	"github.com/marketvet/marketvet/internal/metrics"
	"github.com/marketvet/marketvet/internal/pipeline"
)

type fakeAnalyzer struct {
	rec *pipeline.Recommendation
	err error
}

func (f fakeAnalyzer) Run(context.Context, pipeline.Request) (*pipeline.Recommendation, error) {
	return f.rec, f.err
}

type nopStore struct{}

func (nopStore) Load() ([]accuracy.Record, []accuracy.Outcome, error) { return nil, nil, nil }
func (nopStore) Save([]accuracy.Record, []accuracy.Outcome) error     { return nil }

func newTestServer(t *testing.T, analyzer Analyzer) (*Server, *accuracy.Tracker, *health.Monitor) {
	t.Helper()
	tracker, err := accuracy.NewTracker(accuracy.Config{}, nopStore{}, nil)
	require.NoError(t, err)
	monitor := health.NewMonitor(health.Config{})
	return NewServer(Config{Listen: ":0"}, analyzer, tracker, monitor, metrics.NewCollector()), tracker, monitor
}

func TestAnalyzeEndpoint(t *testing.T) {
	rec := &pipeline.Recommendation{RunID: "r1", Symbol: "BTC-USD", Action: pipeline.ActionLong, Confidence: 80}
	srv, _, _ := newTestServer(t, fakeAnalyzer{rec: rec})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze",
		strings.NewReader(`{"symbol":"BTC-USD","equity":10000}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got pipeline.Recommendation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, pipeline.ActionLong, got.Action)
}

func TestAnalyzeRequiresSymbol(t *testing.T) {
	srv, _, _ := newTestServer(t, fakeAnalyzer{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(`{"equity":1}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutcomeEndpointRecordsAndRejects(t *testing.T) {
	srv, tracker, _ := newTestServer(t, fakeAnalyzer{})

	body := `{"symbol":"BTC-USD","predicted_action":"LONG","actual_action":"LONG","success":true,"pnl_pct":1.2,"indicators_used":{"rsi":"BUY"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/outcomes", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, tracker.Stats().OutcomeCount)

	// A non-directional prediction cannot be scored.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/outcomes",
		strings.NewReader(`{"symbol":"BTC-USD","predicted_action":"HOLD","success":true}`))
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccuracyEndpoint(t *testing.T) {
	srv, tracker, _ := newTestServer(t, fakeAnalyzer{})
	require.NoError(t, tracker.RecordOutcome(accuracy.Outcome{
		Timestamp:       time.Now(),
		Symbol:          "BTC-USD",
		PredictedAction: "LONG",
		Success:         true,
		IndicatorsUsed:  map[string]string{"rsi": "LONG"},
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accuracy", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var sum accuracy.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.OutcomeCount)
	assert.Equal(t, 1.0, sum.RecentHitRate)
}

func TestHealthEndpointReflectsSystemStatus(t *testing.T) {
	srv, _, monitor := newTestServer(t, fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Drive the aggregator to FAILED and expect 503.
	for i := 0; i < 10; i++ {
		monitor.Record("aggregator", i >= 6, time.Millisecond)
	}
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var rep health.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "FAILED", rep.Status)
	assert.NotEmpty(t, rep.FallbackMap)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, fakeAnalyzer{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
