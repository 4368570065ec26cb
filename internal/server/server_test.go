package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"landreg/internal/config"
	"landreg/internal/model"
	"landreg/internal/pipeline"
	"landreg/internal/registry"
	"landreg/internal/store"
)

type stubRegistry struct{}

func (stubRegistry) Lookup(_ context.Context, postcode, door string) ([]model.LookupResult, error) {
	switch door {
	case "10":
		return []model.LookupResult{
			{PAON: "10", Street: "HIGH STREET", Postcode: "SW1A 1AA", Amount: "450000", Date: "2023-05-12"},
			{PAON: "10", Street: "HIGH STREET", Postcode: "SW1A 1AA", Amount: "300000", Date: "2016-01-04"},
		}, nil
	case "500":
		return nil, &registry.LookupError{Postcode: postcode, DoorNumber: door, StatusCode: 500, Err: context.DeadlineExceeded}
	}
	return []model.LookupResult{}, nil
}

func newTestServer(t *testing.T) (*Server, *config.AppConfig) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Matcher.InputPath = filepath.Join(dir, "input.xlsx")
	cfg.Matcher.OutputPath = filepath.Join(dir, "output.xlsx")
	cfg.Merger.SourcePath = cfg.Matcher.OutputPath
	cfg.Merger.TargetPath = filepath.Join(dir, "master.xlsx")

	st, err := store.New(filepath.Join(dir, "landreg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	coord := pipeline.NewCoordinator(cfg, st, zerolog.Nop(),
		pipeline.WithRegistry(stubRegistry{}),
		pipeline.WithSleep(func(time.Duration) {}),
	)
	return NewServer(coord, st, zerolog.Nop(), false), cfg
}

func writeInput(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{
		{"property_id", "door_number", "postcode"},
		{"P1", "10", "SW1A 1AA"},
		{"P2", "11", "SW1A 1AA"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		row := r
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGetStatus(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["running"])
	assert.Nil(t, body["lastRun"])
}

func TestLookup(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, http.MethodGet, "/api/lookup?postcode=sw1a1aa&door=10")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "SW1A 1AA", body["postcode"])
	assert.Equal(t, "10, HIGH STREET, SW1A 1AA", body["address"])
	assert.Len(t, body["results"], 2)
	latest := body["latest"].(map[string]interface{})
	assert.Equal(t, "2023-05-12", latest["date"])
}

func TestLookupValidationAndUpstreamFailure(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/lookup?postcode=SW1A1AA").Code)
	assert.Equal(t, http.StatusBadGateway, do(s, http.MethodGet, "/api/lookup?postcode=SW1A1AA&door=500").Code)

	w := do(s, http.MethodGet, "/api/lookup?postcode=SW1A1AA&door=99")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Empty(t, body["results"])
	assert.Nil(t, body["latest"])
}

func TestMatchMergeAndRuns(t *testing.T) {
	s, cfg := newTestServer(t)
	writeInput(t, cfg.Matcher.InputPath)

	w := do(s, http.MethodPost, "/api/match")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	match := decode(t, w)
	assert.EqualValues(t, 2, match["total"])
	assert.EqualValues(t, 1, match["matched"])
	runID := match["runId"].(string)

	w = do(s, http.MethodPost, "/api/merge")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	merge := decode(t, w)
	assert.EqualValues(t, 1, merge["inserted"])
	assert.Equal(t, true, merge["written"])

	w = do(s, http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, "merge", items[0].(map[string]interface{})["kind"])

	w = do(s, http.MethodGet, "/api/runs/"+runID)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	assert.Len(t, detail["matches"], 2)

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/runs/nope").Code)
}

func TestMatchStream(t *testing.T) {
	s, cfg := newTestServer(t)
	writeInput(t, cfg.Matcher.InputPath)

	w := do(s, http.MethodPost, "/api/match?stream=true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, `"type":"start"`)
	assert.Contains(t, body, `"type":"row"`)
	assert.Contains(t, body, `"type":"done"`)
	assert.Equal(t, 4, strings.Count(body, "data: "))
}

func TestMergeWithoutSource(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, http.MethodPost, "/api/merge")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunsAreSerialised(t *testing.T) {
	s, _ := newTestServer(t)

	s.running.Lock()
	defer s.running.Unlock()

	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/api/match").Code)
	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/api/merge").Code)

	body := decode(t, do(s, http.MethodGet, "/api/status"))
	assert.Equal(t, true, body["running"])
}

func startServe(t *testing.T, s *Server) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	return "http://" + ln.Addr().String(), cancel, done
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	base, cancel, done := startServe(t, s)
	defer cancel()

	resp, err := http.Get(base + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_, err = http.Get(base + "/api/status")
	assert.Error(t, err)
}

func TestServeWaitsForRunInFlight(t *testing.T) {
	s, _ := newTestServer(t)
	_, cancel, done := startServe(t, s)
	defer cancel()

	s.running.Lock()
	cancel()

	select {
	case <-done:
		t.Fatal("Serve returned while a run was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	s.running.Unlock()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the run finished")
	}
}
