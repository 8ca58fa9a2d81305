package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jedp/fptv/internal/auth"
	"github.com/jedp/fptv/internal/clock"
	"github.com/jedp/fptv/internal/config"
	"github.com/jedp/fptv/internal/crypto"
	"github.com/jedp/fptv/internal/db"
	"github.com/jedp/fptv/internal/eventbus"
	"github.com/jedp/fptv/internal/metrics"
	"github.com/jedp/fptv/internal/notifier"
	"github.com/jedp/fptv/internal/services"
	"github.com/jedp/fptv/internal/testutil"
)

const (
	testAPIKey   = "fptv-test-key-0123456789abcdef"
	testPassword = "correct-horse-battery"
)

type testEnv struct {
	srv    *RESTServer
	repo   *db.Repository
	fake   *testutil.FakeTVH
	runner *services.Runner
}

// newTestEnv builds a full server over a fresh database with auth
// already configured. Handlers run against an in-memory backend.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := newUnauthedEnv(t)
	e.seedAuth(t)
	return e
}

// newUnauthedEnv is newTestEnv without the auth rows, for the
// setup-flow tests.
func newUnauthedEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.NewTestConfig()
	cfg.RFStart = 2
	cfg.RFEnd = 3
	config.SetForTesting(cfg)

	repo := testutil.NewTestRepo(t)
	eb := eventbus.NewEventBus(repo.DB)
	t.Cleanup(eb.Shutdown)

	fake := testutil.NewFakeTVH()
	runner := services.NewRunner(repo, eb, fake, clock.NewMockClock(time.Unix(1700000000, 0)))
	t.Cleanup(runner.Stop)
	scheduler := services.NewSchedulerService(repo.DB, runner)
	t.Cleanup(scheduler.Stop)

	srv := NewRESTServer(ServerDeps{
		DB:         repo.DB,
		EventBus:   eb,
		Runner:     runner,
		Scheduler:  scheduler,
		Notifier:   notifier.NewNotifier(repo.DB, eb),
		Metrics:    metrics.NewMetricsService(eb),
		Health:     services.NewHealthMonitorService(fake),
		TVH:        fake,
		Playlister: fake,
	})

	return &testEnv{srv: srv, repo: repo, fake: fake, runner: runner}
}

func (e *testEnv) seedAuth(t *testing.T) {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	key, err := crypto.Encrypt(testAPIKey)
	require.NoError(t, err)
	_, err = e.repo.DB.Exec(
		"INSERT INTO settings (key, value) VALUES ('password_hash', ?), ('api_key', ?)",
		hash, key)
	require.NoError(t, err)
}

// do performs an authenticated request against the test server.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, marshalBody(t, body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	e.srv.router.ServeHTTP(w, req)
	return w
}

// doAnon performs a request without credentials.
func (e *testEnv) doAnon(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, marshalBody(t, body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.router.ServeHTTP(w, req)
	return w
}

func marshalBody(t *testing.T, body interface{}) io.Reader {
	t.Helper()
	if body == nil {
		return nil
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out),
		"response body: %s", w.Body.String())
}
