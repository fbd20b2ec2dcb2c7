package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/modelmart/internal/analytics"
	"github.com/nulzo/modelmart/internal/catalog"
	"github.com/nulzo/modelmart/internal/chain"
	"github.com/nulzo/modelmart/internal/config"
	"github.com/nulzo/modelmart/internal/registry"
	"github.com/nulzo/modelmart/internal/store/cache"
	"github.com/nulzo/modelmart/internal/store/memory"
	"github.com/nulzo/modelmart/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "0", Env: "test", CORSOrigins: []string{"*"}},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	return newTestServerWithCache(t, cfg, cache.NewMemoryCache())
}

func newTestServerWithCache(t *testing.T, cfg *config.Config, c cache.CacheService) *Server {
	t.Helper()
	logger := zap.NewNop()

	cat, err := catalog.Default()
	require.NoError(t, err)
	dir, err := chain.NewDirectory(chain.Defaults)
	require.NoError(t, err)

	repo := memory.NewRepository()
	ingestor := analytics.NewIngestor(logger, repo, analytics.DefaultIngestorOptions())

	srv, err := New(cfg, logger, Dependencies{
		Catalog:  cat,
		Chains:   dir,
		Registry: registry.NewService(logger, repo, dir, ingestor, c, registry.Options{}),
		Stats:    analytics.NewService(logger, repo, cat, c, time.Millisecond),
	})
	require.NoError(t, err)
	return srv
}

func do(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const exampleBody = `{"modelId":"model-1","userId":"0xabc","chain":"Ethereum","price":"2.5"}`

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestListModels_StableOrder(t *testing.T) {
	srv := newTestServer(t, testConfig())

	first := decode[[]api.Model](t, do(srv, http.MethodGet, "/api/v1/models", "", nil))
	second := decode[[]api.Model](t, do(srv, http.MethodGet, "/api/v1/models", "", nil))

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"1", "2", "3"}, []string{first[0].ID, first[1].ID, first[2].ID})
}

func TestGetModel(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(srv, http.MethodGet, "/api/v1/models/2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "QuantumViz Elite", decode[api.Model](t, w).Name)
}

func TestGetModel_NotFound(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(srv, http.MethodGet, "/api/v1/models/does-not-exist", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "Model not found", body["error"])
	assert.Equal(t, "Not Found", body["title"])
	assert.EqualValues(t, http.StatusNotFound, body["status"])
}

func TestListChains(t *testing.T) {
	srv := newTestServer(t, testConfig())

	chains := decode[[]api.Chain](t, do(srv, http.MethodGet, "/api/v1/chains", "", nil))
	require.Len(t, chains, len(chain.Defaults))
	assert.Equal(t, "Ethereum", chains[0].Name)
}

func TestCreateThenListByOwner(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(srv, http.MethodPost, "/api/v1/deployments", exampleBody, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[api.Deployment](t, w)
	assert.Equal(t, "1", created.ID)
	assert.Equal(t, "model-1", created.ModelID)
	assert.Equal(t, "Ethereum", created.Chain)
	assert.Len(t, created.TransactionHash, 66)
	assert.Equal(t, "https://etherscan.io/tx/"+created.TransactionHash, created.ExplorerURL)

	list := decode[[]api.Deployment](t, do(srv, http.MethodGet, "/api/v1/deployments?userId=0xabc", "", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "model-1", list[0].ModelID)
	assert.Equal(t, "2.5", list[0].Price)
}

func TestListDeployments_UnknownOwnerIsEmptyArray(t *testing.T) {
	srv := newTestServer(t, testConfig())
	do(srv, http.MethodPost, "/api/v1/deployments", exampleBody, nil)

	w := do(srv, http.MethodGet, "/api/v1/deployments?userId=0xnobody", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestListDeployments_NoFilterReturnsAll(t *testing.T) {
	srv := newTestServer(t, testConfig())
	do(srv, http.MethodPost, "/api/v1/deployments", exampleBody, nil)
	do(srv, http.MethodPost, "/api/v1/deployments", `{"modelId":"2","userId":"0xdef","chain":"sol"}`, nil)

	list := decode[[]api.Deployment](t, do(srv, http.MethodGet, "/api/v1/deployments", "", nil))
	require.Len(t, list, 2)
	assert.Equal(t, "Solana", list[1].Chain)
}

func TestGetDeployment(t *testing.T) {
	srv := newTestServer(t, testConfig())
	do(srv, http.MethodPost, "/api/v1/deployments", exampleBody, nil)

	w := do(srv, http.MethodGet, "/api/v1/deployments/1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xabc", decode[api.Deployment](t, w).UserID)

	for _, id := range []string{"2", "abc", "-1"} {
		w = do(srv, http.MethodGet, "/api/v1/deployments/"+id, "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, id)
		assert.Equal(t, "Deployment not found", decode[map[string]any](t, w)["error"])
	}
}

func TestCreateDeployment_ValidationErrors(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := do(srv, http.MethodPost, "/api/v1/deployments", `{"chain":"Dogechain","price":"abc"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "/problems/validation", body["type"])
	fields, ok := body["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "modelId")
	assert.Contains(t, fields, "userId")
	assert.Contains(t, fields, "chain")
	assert.Contains(t, fields, "price")

	w = do(srv, http.MethodPost, "/api/v1/deployments", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	list := decode[[]api.Deployment](t, do(srv, http.MethodGet, "/api/v1/deployments", "", nil))
	assert.Empty(t, list)
}

func TestCreateDeployment_IdempotencyKey(t *testing.T) {
	srv := newTestServer(t, testConfig())
	headers := map[string]string{"Idempotency-Key": "order-42"}

	first := do(srv, http.MethodPost, "/api/v1/deployments", exampleBody, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := do(srv, http.MethodPost, "/api/v1/deployments", exampleBody, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))

	a := decode[api.Deployment](t, first)
	b := decode[api.Deployment](t, second)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.TransactionHash, b.TransactionHash)

	list := decode[[]api.Deployment](t, do(srv, http.MethodGet, "/api/v1/deployments?userId=0xabc", "", nil))
	assert.Len(t, list, 1)

	conflict := do(srv, http.MethodPost, "/api/v1/deployments",
		`{"modelId":"model-2","userId":"0xabc","chain":"Ethereum","price":"2.5"}`, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, conflict.Code)
}

func TestCreateDeployment_IdempotencyKeyInProgress(t *testing.T) {
	c := cache.NewMemoryCache()
	srv := newTestServerWithCache(t, testConfig(), c)

	// a peer instance claimed the key and is still creating its deployment
	ok, err := c.SetNX(context.Background(), "idempotency:deployments:order-7",
		map[string]any{"fingerprint": `["model-1","0xabc","Ethereum","2500000"]`}, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	w := do(srv, http.MethodPost, "/api/v1/deployments", exampleBody, map[string]string{"Idempotency-Key": "order-7"})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "/problems/idempotency-in-progress", decode[map[string]any](t, w)["type"])

	assert.JSONEq(t, "[]", do(srv, http.MethodGet, "/api/v1/deployments", "", nil).Body.String())
}

func TestStats(t *testing.T) {
	srv := newTestServer(t, testConfig())
	do(srv, http.MethodPost, "/api/v1/deployments", exampleBody, nil)

	w := do(srv, http.MethodGet, "/api/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	overview := decode[api.StatsOverview](t, w)
	assert.Equal(t, 3, overview.TotalModels)
	assert.Equal(t, 1, overview.TotalDeployments)
	assert.Equal(t, "2.5", overview.Volume24h)
	assert.Equal(t, 1, overview.ByChain["Ethereum"])

	w = do(srv, http.MethodGet, "/api/v1/stats/daily?days=3", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, bad := range []string{"abc", "0", "1000"} {
		w = do(srv, http.MethodGet, "/api/v1/stats/daily?days="+bad, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}
	srv := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/api/v1/models", "", nil).Code)

	w := do(srv, http.MethodGet, "/api/v1/models", "", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "Too Many Requests", decode[map[string]any](t, w)["title"])

	// health sits outside the limited group
	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/health", "", nil).Code)
}
