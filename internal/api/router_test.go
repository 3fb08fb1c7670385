package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/api/handlers"
	"github.com/balaji-balu/offsetup/internal/journal"
	"github.com/balaji-balu/offsetup/internal/metrics"
	"github.com/balaji-balu/offsetup/internal/report"
)

const manifestBody = `
name: web
dependencies:
  platforms:
    ubuntu:
      versions: [">16.04"]
      pre_install: ["apt-get update"]
      apt: [redis-server]
  applications:
    db:
      pkg: postgres
      users: [{name: app, password: hunter2}]
exposes:
  ports:
    tcp: [80]
`

func setup(t *testing.T) (*gin.Engine, *journal.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	h := &handlers.Handlers{Runs: store, Dir: t.TempDir()}
	return NewRouter(h, metrics.New().Handler(), zap.NewNop()), store
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHealthzAndMetrics(t *testing.T) {
	r, _ := setup(t)
	assert.Equal(t, http.StatusOK, do(r, "GET", "/healthz", "").Code)

	rec := do(r, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRuns(t *testing.T) {
	r, store := setup(t)
	assert.Equal(t, http.StatusNotFound, do(r, "GET", "/runs/latest", "").Code)

	require.NoError(t, store.Save(&report.Report{RunID: "r1", Manifest: "web", Status: report.StatusSuccess, StartedAt: time.Now()}))

	rec := do(r, "GET", "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs []struct {
			RunID string `json:"run_id"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "r1", list.Runs[0].RunID)

	rec = do(r, "GET", "/runs/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, report.StatusSuccess, got.Status)

	assert.Equal(t, http.StatusNotFound, do(r, "GET", "/runs/nope", "").Code)
}

func TestPlan(t *testing.T) {
	r, _ := setup(t)
	rec := do(r, "POST", "/plan?os=Ubuntu&version=18.04&arch=amd64", manifestBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		Platform string `json:"platform"`
		Steps    []struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ubuntu", got.Platform)
	var ids []string
	for _, s := range got.Steps {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"pre_install/0", "pkg/apt/redis-server", "app/db/install", "app/db/user/app", "port/tcp/80"}, ids)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestPlanErrors(t *testing.T) {
	r, _ := setup(t)

	rec := do(r, "POST", "/plan?os=windows&version=10000", manifestBody)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "UnsupportedPlatformError")

	rec = do(r, "POST", "/plan?os=ubuntu&version=18.04", "name: [")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "ManifestValidationError")

	rec = do(r, "POST", "/plan", manifestBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
