package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/quake-notifier/internal/adapter/httpadapter"
	"github.com/couchcryptid/quake-notifier/internal/dispatch"
	"github.com/couchcryptid/quake-notifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockRunner struct {
	report dispatch.CycleReport
	err    error
	calls  int
}

func (m *mockRunner) RunCycle(_ context.Context) (dispatch.CycleReport, error) {
	m.calls++
	return m.report, m.err
}

func newTestServer(readyErr error, runner *mockRunner) *httpadapter.Server {
	if runner == nil {
		runner = &mockRunner{}
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, runner, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503BeforeFirstCycle(t *testing.T) {
	srv := newTestServer(fmt.Errorf("no dispatch cycle has completed yet"), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no dispatch cycle has completed yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestDispatchReturnsReport(t *testing.T) {
	fetchedAt := time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)
	runner := &mockRunner{report: dispatch.CycleReport{
		StartedAt:         fetchedAt,
		Outcome:           dispatch.OutcomeCompleted,
		Watermark:         fetchedAt,
		WatermarkAdvanced: true,
		FetchedAt:         fetchedAt,
		FetchedEvents:     3,
		NewEvents:         []domain.Earthquake{{ID: "nc1"}, {ID: "nc2"}},
		Users: []dispatch.UserResult{
			{UserID: "u1", Outcome: dispatch.OutcomeDelivered, Matched: 2, Delivered: 3, BundleID: "b1"},
			{UserID: "u2", Outcome: dispatch.OutcomeCredentialMissing, Matched: 1, Err: domain.ErrCredentialMissing},
		},
	}}
	srv := newTestServer(nil, runner)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/dispatch", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, runner.calls)

	var body httpadapter.ReportView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "completed", body.Outcome)
	assert.Equal(t, []string{"nc1", "nc2"}, body.NewEvents)
	assert.Equal(t, 3, body.CardsDelivered)
	assert.True(t, body.WatermarkAdvanced)
	require.NotNil(t, body.FetchedAt)
	assert.True(t, fetchedAt.Equal(*body.FetchedAt))
	require.Len(t, body.Users, 2)
	assert.Equal(t, "b1", body.Users[0].BundleID)
	assert.Equal(t, "credential_missing", body.Users[1].Outcome)
	assert.Contains(t, body.Users[1].Error, "credential missing")
}

func TestDispatchReturns409WhenInFlight(t *testing.T) {
	srv := newTestServer(nil, &mockRunner{err: dispatch.ErrCycleInProgress})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/dispatch", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDispatchReturns500OnUnexpectedError(t *testing.T) {
	srv := newTestServer(nil, &mockRunner{err: errors.New("boom")})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/dispatch", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDispatchRejectsGet(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dispatch", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewReportView_FetchFailed(t *testing.T) {
	v := httpadapter.NewReportView(dispatch.CycleReport{
		Outcome: dispatch.OutcomeFetchFailed,
		Err:     domain.ErrFeedUnavailable,
	})

	assert.Equal(t, "fetch_failed", v.Outcome)
	assert.NotEmpty(t, v.Error)
	assert.Nil(t, v.FetchedAt)
	assert.Empty(t, v.NewEvents)
	assert.NotNil(t, v.Users)
}
