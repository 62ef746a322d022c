package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/switchd/internal/adapter"
	"github.com/fyrsmithlabs/switchd/internal/cache"
	"github.com/fyrsmithlabs/switchd/internal/config"
	"github.com/fyrsmithlabs/switchd/internal/conversation"
	"github.com/fyrsmithlabs/switchd/internal/coordinator"
	"github.com/fyrsmithlabs/switchd/internal/registry"
	"github.com/fyrsmithlabs/switchd/internal/vectorstore"
)

type testServer struct {
	srv *Server
	reg *registry.Registry
}

// newTestServer wires a full daemon stack over a temp data directory.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	dataDir := t.TempDir()

	reg, err := registry.New(dataDir)
	require.NoError(t, err)

	adapterCache, err := cache.New(cache.Config[*adapter.Adapter]{
		Name: "adapter", MaxEntries: 8, MaxBytes: 1 << 20,
		Factory: adapter.NewLoader(reg.AdaptersBase(), "base", nil, logger),
	}, logger)
	require.NoError(t, err)

	storeCache, err := cache.New(cache.Config[*vectorstore.Store]{
		Name: "vectorstore", MaxEntries: 4, MaxBytes: 1 << 30,
		Factory: vectorstore.NewOpener(reg.VectorStoreBase(), false, logger),
	}, logger)
	require.NoError(t, err)

	ctxStore := conversation.NewStore(reg.ContextsBase(), logger)
	contextCache, err := cache.New(cache.Config[*conversation.Context]{
		Name: "context", MaxEntries: 8, MaxBytes: 1 << 20,
		Factory: ctxStore,
	}, logger)
	require.NoError(t, err)

	coord, err := coordinator.New(coordinator.Caches{
		Adapters:     adapterCache,
		VectorStores: storeCache,
		Contexts:     contextCache,
	}, ctxStore, logger)
	require.NoError(t, err)
	t.Cleanup(coord.Close)

	srv := New(config.ServerConfig{Port: 0}, coord, reg, logger)
	return &testServer{srv: srv, reg: reg}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ts.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(t *testing.T, name string) *registry.Project {
	t.Helper()
	rec := ts.do(http.MethodPost, "/v1/projects", `{"name":"`+name+`","workspace_path":"/src/`+name+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var p registry.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return &p
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "switchd", resp.Service)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterProject(t *testing.T) {
	ts := newTestServer(t)

	p := ts.register(t, "my-service")
	assert.Equal(t, "my-service", p.Name)
	assert.NotEmpty(t, p.ID)
}

func TestRegisterProject_InvalidName(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/projects", `{"name":"bad name","workspace_path":"/src"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProjects(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alpha")
	ts.register(t, "beta")

	rec := ts.do(http.MethodGet, "/v1/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var projects []registry.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
	assert.Len(t, projects, 2)
}

func TestActivate_ByNameAndByID(t *testing.T) {
	ts := newTestServer(t)
	p := ts.register(t, "my-service")

	rec := ts.do(http.MethodPost, "/v1/projects/my-service/activate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result coordinator.ActivationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, p.ID, result.Active)
	assert.False(t, result.Degraded)
	// No trained adapter on disk yet.
	assert.True(t, result.AdapterFallback)

	rec = ts.do(http.MethodPost, "/v1/projects/"+p.ID+"/activate", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActivate_UnknownProject(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/projects/nope/activate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivate_DegradedReturns503(t *testing.T) {
	ts := newTestServer(t)
	p := ts.register(t, "broken")

	// A corrupt saved context makes the context load fail.
	ctxDir := ts.reg.ContextsBase()
	require.NoError(t, os.MkdirAll(ctxDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(ctxDir, p.ID+".json"), []byte("{corrupt"), 0600))

	rec := ts.do(http.MethodPost, "/v1/projects/broken/activate", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())

	var result coordinator.ActivationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Degraded)
	assert.Equal(t, "context", string(result.FailedKind))
	assert.Empty(t, result.Active)
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	p := ts.register(t, "my-service")

	rec := ts.do(http.MethodPost, "/v1/projects/my-service/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status coordinator.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, p.ID, status.Active)
	assert.Equal(t, coordinator.StateIdle, status.State)
}

func TestInvalidate(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "my-service")

	rec := ts.do(http.MethodPost, "/v1/projects/my-service/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/projects/my-service/invalidate?kind=adapter", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/projects/my-service/invalidate", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/projects/my-service/invalidate?kind=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteProject(t *testing.T) {
	ts := newTestServer(t)
	p := ts.register(t, "my-service")

	rec := ts.do(http.MethodPost, "/v1/projects/my-service/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodDelete, "/v1/projects/"+p.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/projects/my-service/activate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMemoryPressure(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alpha")
	ts.register(t, "beta")

	rec := ts.do(http.MethodPost, "/v1/projects/alpha/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodPost, "/v1/projects/beta/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/memory-pressure", `{"severity":"low"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PressureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Evicted)

	rec = ts.do(http.MethodPost, "/v1/memory-pressure", `{"severity":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
