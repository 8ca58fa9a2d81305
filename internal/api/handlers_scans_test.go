package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jedp/fptv/internal/db"
	"github.com/jedp/fptv/internal/testutil"
)

func TestTriggerScan(t *testing.T) {
	e := newTestEnv(t)
	e.fake.AddMux("mux-pre", 57000000)
	e.fake.AddService("svc-1", "KTST-HD", "mux-pre")

	w := e.do(t, "POST", "/api/scans", map[string]bool{"dry_run": true})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		RunID  string `json:"run_id"`
		DryRun bool   `json:"dry_run"`
	}
	decodeJSON(t, w, &resp)
	require.NotEmpty(t, resp.RunID)
	assert.True(t, resp.DryRun)

	e.runner.Stop()

	run, err := e.repo.GetScanRun(resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, db.RunStatusCompleted, run.Status)
	assert.True(t, run.DryRun)
}

func TestTriggerScanConflict(t *testing.T) {
	e := newTestEnv(t)
	e.fake.Gate = make(chan struct{})

	w := e.do(t, "POST", "/api/scans", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var first struct {
		RunID string `json:"run_id"`
	}
	decodeJSON(t, w, &first)

	// The first run is still held at the backend, so a second trigger
	// conflicts and reports the active run.
	w = e.do(t, "POST", "/api/scans", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	var conflict struct {
		RunID string `json:"run_id"`
	}
	decodeJSON(t, w, &conflict)
	assert.Equal(t, first.RunID, conflict.RunID)

	close(e.fake.Gate)
	e.runner.Stop()

	w = e.do(t, "POST", "/api/scans", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestCancelScanWithoutActiveRun(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/api/scans/cancel", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	var resp struct {
		Error string `json:"error"`
	}
	decodeJSON(t, w, &resp)
	assert.Equal(t, "No scan run is active", resp.Error)
}

func TestGetScanStatusIdle(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "GET", "/api/scans/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Running bool `json:"running"`
	}
	decodeJSON(t, w, &status)
	assert.False(t, status.Running)
}

func TestListScanRuns(t *testing.T) {
	e := newTestEnv(t)
	base := time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		testutil.InsertScanRun(t, e.repo, runID(i), db.RunStatusCompleted, base.Add(time.Duration(i)*time.Hour))
	}

	w := e.do(t, "GET", "/api/scans?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Runs       []db.ScanRun       `json:"runs"`
		Pagination PaginationResponse `json:"pagination"`
	}
	decodeJSON(t, w, &resp)
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, 3, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.TotalPages)
	// Newest first.
	assert.Equal(t, runID(2), resp.Runs[0].ID)

	w = e.do(t, "GET", "/api/scans?limit=2&page=2", nil)
	decodeJSON(t, w, &resp)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, runID(0), resp.Runs[0].ID)
}

func runID(i int) string {
	return string(rune('a'+i)) + "0000000-0000-0000-0000-000000000000"
}

func TestGetScanRun(t *testing.T) {
	e := newTestEnv(t)
	testutil.InsertScanRun(t, e.repo, runID(0), db.RunStatusFailed, time.Now().Add(-time.Hour))

	w := e.do(t, "GET", "/api/scans/"+runID(0), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Run    db.ScanRun     `json:"run"`
		Phases []db.ScanPhase `json:"phases"`
	}
	decodeJSON(t, w, &resp)
	assert.Equal(t, runID(0), resp.Run.ID)
	assert.Equal(t, db.RunStatusFailed, resp.Run.Status)

	w = e.do(t, "GET", "/api/scans/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetScanRunEvents(t *testing.T) {
	e := newTestEnv(t)
	e.fake.AddMux("mux-pre", 57000000)
	e.fake.AddService("svc-1", "KTST-HD", "mux-pre")

	w := e.do(t, "POST", "/api/scans", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var started struct {
		RunID string `json:"run_id"`
	}
	decodeJSON(t, w, &started)
	e.runner.Stop()

	w = e.do(t, "GET", "/api/scans/"+started.RunID+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Events []struct {
			EventType string `json:"event_type"`
		} `json:"events"`
	}
	decodeJSON(t, w, &resp)
	require.NotEmpty(t, resp.Events)

	types := make(map[string]bool)
	for _, ev := range resp.Events {
		types[ev.EventType] = true
	}
	assert.True(t, types["ScanStarted"], "missing ScanStarted in %v", types)
	assert.True(t, types["ScanCompleted"], "missing ScanCompleted in %v", types)
}
