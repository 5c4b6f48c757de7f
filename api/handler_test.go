package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkogAI/agentpool/config"
	"github.com/SkogAI/agentpool/health"
	"github.com/SkogAI/agentpool/journal"
	"github.com/SkogAI/agentpool/manager"
	"github.com/SkogAI/agentpool/pool"
)

func setupTestRESTHandler(t *testing.T) (*RESTHandler, *manager.Manager, *journal.Journal) {
	jnl, err := journal.Open(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)

	mgr := manager.New(pool.NewMockConnectionFactory(false, 0), nil)
	require.NoError(t, mgr.AddTarget(config.TargetConfig{
		Name:       "primary",
		ConnString: "postgres://agent@localhost/primary",
		Pool: config.PoolSettings{
			MinSize:     1,
			MaxSize:     4,
			AbsoluteMax: 8,
		},
		Scaling: config.ScalingSettings{Disabled: true},
	}))

	t.Cleanup(func() {
		mgr.Close()
		jnl.Close()
	})

	return NewRESTHandler(mgr, jnl), mgr, jnl
}

func testRouter(h *RESTHandler) chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestRESTHandler_ListPools(t *testing.T) {
	handler, _, _ := setupTestRESTHandler(t)
	router := testRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/pools", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp PoolListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "primary", resp.Pools[0].Name)
	assert.Equal(t, 4, resp.Pools[0].Snapshot.MaxSize)
}

func TestRESTHandler_GetPool(t *testing.T) {
	handler, _, _ := setupTestRESTHandler(t)
	router := testRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/pools/primary", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var snap pool.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "primary", snap.Target)
}

func TestRESTHandler_GetPoolNotFound(t *testing.T) {
	handler, _, _ := setupTestRESTHandler(t)
	router := testRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/pools/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "unknown target")
}

func TestRESTHandler_GetPoolHealthNoSample(t *testing.T) {
	handler, _, _ := setupTestRESTHandler(t)
	router := testRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/pools/primary/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRESTHandler_ResizePool(t *testing.T) {
	handler, mgr, _ := setupTestRESTHandler(t)
	router := testRouter(handler)

	body, _ := json.Marshal(ResizeRequest{MinSize: 2, MaxSize: 6})
	req := httptest.NewRequest(http.MethodPost, "/api/pools/primary/resize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ResizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.MinSize)
	assert.Equal(t, 6, resp.MaxSize)

	snap, err := mgr.Snapshot("primary")
	require.NoError(t, err)
	assert.Equal(t, 6, snap.MaxSize)
}

func TestRESTHandler_ResizePoolInvalidBounds(t *testing.T) {
	handler, _, _ := setupTestRESTHandler(t)
	router := testRouter(handler)

	body, _ := json.Marshal(ResizeRequest{MinSize: 5, MaxSize: 2})
	req := httptest.NewRequest(http.MethodPost, "/api/pools/primary/resize", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRESTHandler_ResizePoolBadBody(t *testing.T) {
	handler, _, _ := setupTestRESTHandler(t)
	router := testRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/pools/primary/resize", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRESTHandler_DrainPool(t *testing.T) {
	handler, mgr, _ := setupTestRESTHandler(t)
	router := testRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/pools/primary/drain", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mgr.Targets())

	// second drain finds nothing
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pools/primary/drain", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRESTHandler_RecentAlerts(t *testing.T) {
	handler, _, jnl := setupTestRESTHandler(t)
	router := testRouter(handler)

	require.NoError(t, jnl.Append(health.Event{
		Kind:      "health",
		Level:     health.LevelWarning,
		Target:    "primary",
		Message:   "utilization above warning threshold",
		Timestamp: time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/recent?limit=10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp AlertsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "primary", resp.Alerts[0].Target)
}

func TestRESTHandler_RecentAlertsJournalDisabled(t *testing.T) {
	mgr := manager.New(pool.NewMockConnectionFactory(false, 0), nil)
	t.Cleanup(func() { mgr.Close() })
	handler := NewRESTHandler(mgr, nil)
	router := testRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/recent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
