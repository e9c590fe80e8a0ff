package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/cso-impact-service/internal/adapter/http"
	"github.com/couchcryptid/cso-impact-service/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockFleet struct {
	points    []domain.SamplePoint
	gotSince  time.Time
	nodes     []domain.ImpactedNode
	segments  []domain.Polyline
	rows      []domain.DischargeRow
	gotRecent bool
	err       error
}

func (m *mockFleet) TimeSeries(since time.Time, _ *slog.Logger) []domain.SamplePoint {
	m.gotSince = since
	return m.points
}

func (m *mockFleet) ImpactedNodes(includeRecent bool, _ *slog.Logger) ([]domain.ImpactedNode, error) {
	m.gotRecent = includeRecent
	return m.nodes, m.err
}

func (m *mockFleet) ChannelGeometry(includeRecent bool, _ *slog.Logger) ([]domain.Polyline, error) {
	m.gotRecent = includeRecent
	return m.segments, m.err
}

func (m *mockFleet) DischargeLog(_ *slog.Logger) ([]domain.DischargeRow, error) {
	return m.rows, m.err
}

func newTestServer(readyErr error, fleet *mockFleet) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, fleet, 168*time.Hour, slog.Default())
}

func get(t *testing.T, srv *httpadapter.Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockFleet{}), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockFleet{}), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(fmt.Errorf("not ready yet"), &mockFleet{}), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockFleet{}), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestTimeSeriesEndpoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fleet := &mockFleet{points: []domain.SamplePoint{
		{Time: at, Online: 10, Discharging: 2, RecentlyDischarging: 3},
	}}
	srv := newTestServer(nil, fleet)

	rec := get(t, srv, "/v1/timeseries?since=2026-03-01T00:00:00Z")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), fleet.gotSince)

	var body struct {
		Points []domain.SamplePoint `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Points, 1)
	assert.Equal(t, 10, body.Points[0].Online)
}

func TestTimeSeriesDefaultWindow(t *testing.T) {
	fleet := &mockFleet{}
	srv := newTestServer(nil, fleet)

	rec := get(t, srv, "/v1/timeseries")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.WithinDuration(t, time.Now().Add(-168*time.Hour), fleet.gotSince, time.Minute)
}

func TestTimeSeriesBadSince(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockFleet{}), "/v1/timeseries?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImpactEndpoint(t *testing.T) {
	fleet := &mockFleet{nodes: []domain.ImpactedNode{
		{Node: 7, X: 100, Y: 200, UpstreamSources: 1, SourcesPerKm2: 0.25, Monitors: []string{"Sludge Lane"}},
	}}
	srv := newTestServer(nil, fleet)

	rec := get(t, srv, "/v1/impact?recent=true")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fleet.gotRecent)

	var body struct {
		Nodes []domain.ImpactedNode `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Nodes, 1)
	assert.Equal(t, 7, body.Nodes[0].Node)
}

func TestImpactEndpointEmpty(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockFleet{}), "/v1/impact")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"nodes":[]`)
}

func TestChannelsEndpointGeoJSON(t *testing.T) {
	fleet := &mockFleet{segments: []domain.Polyline{
		{{X: 1, Y: 2}, {X: 3, Y: 4}},
	}}
	srv := newTestServer(nil, fleet)

	rec := get(t, srv, "/v1/channels")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, fleet.gotRecent)

	var body struct {
		Type        string         `json:"type"`
		Coordinates [][][2]float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "MultiLineString", body.Type)
	require.Len(t, body.Coordinates, 1)
	assert.Equal(t, [2]float64{1, 2}, body.Coordinates[0][0])
}

func TestDischargesEndpoint(t *testing.T) {
	fleet := &mockFleet{rows: []domain.DischargeRow{
		{MonitorID: "TH-001", MonitorName: "Sludge Lane", Ongoing: true},
	}}
	srv := newTestServer(nil, fleet)

	rec := get(t, srv, "/v1/discharges")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"TH-001"`)
}

func TestDomainStateErrorMapsTo503(t *testing.T) {
	fleet := &mockFleet{err: fmt.Errorf("histories not loaded: %w", domain.ErrInvalidState)}
	srv := newTestServer(nil, fleet)

	rec := get(t, srv, "/v1/discharges")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDomainErrorMapsTo500(t *testing.T) {
	fleet := &mockFleet{err: fmt.Errorf("raster corrupt")}
	srv := newTestServer(nil, fleet)

	rec := get(t, srv, "/v1/impact")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
