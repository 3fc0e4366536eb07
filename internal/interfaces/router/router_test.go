package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"greencredits-ledger/internal/config"
	"greencredits-ledger/internal/ledger"
	"greencredits-ledger/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                 "test",
		LedgerBackend:       config.BackendMemory,
		SubmitMaxRetries:    2,
		FrontendURLEndsWith: ".example.com",
		HealthAdminKey:      "admin",
	}
}

func newTestApp(t *testing.T) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	deps := &Deps{Rdb: rdb, Ledger: ledger.NewMemory(), Registry: metrics.NewRegistry()}
	return CreateApp(testConfig(), deps), mr
}

func call(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestRoutes_CertificateFlow(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := call(t, app, http.MethodPost, "/api/v1/certificates", `{"id":"C-1","amount":"4","owner":"alice","registry":"Verra"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))

	resp, _ = call(t, app, http.MethodPost, "/api/v1/ledger/submit", `{"function":"UpdateAuthStatus","args":["C-1","authenticated"]}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = call(t, app, http.MethodPost, "/api/v1/certificates/C-1/listing", `{"pricePerCredit":"1.25"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, raw := call(t, app, http.MethodGet, "/api/v1/certificates/listings", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listings struct {
		Data []struct {
			ID          string `json:"id"`
			Marketplace struct {
				TotalValue string `json:"totalValue"`
			} `json:"marketplace"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &listings))
	require.Len(t, listings.Data, 1)
	assert.Equal(t, "C-1", listings.Data[0].ID)
	assert.Equal(t, "5", listings.Data[0].Marketplace.TotalValue)

	resp, _ = call(t, app, http.MethodDelete, "/api/v1/certificates/C-1/listing", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, raw = call(t, app, http.MethodPost, "/api/v1/ledger/evaluate", `{"function":"GetCertificatesByRegistry","args":["Verra"]}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"C-1"`)
}

func TestRoutes_MetricsExposeTransactions(t *testing.T) {
	app, _ := newTestApp(t)

	call(t, app, http.MethodPost, "/api/v1/certificates", `{"id":"C-1","amount":"1","owner":"alice"}`)
	call(t, app, http.MethodPost, "/api/v1/certificates", `{"id":"C-1","amount":"1","owner":"alice"}`)
	call(t, app, http.MethodGet, "/api/v1/certificates/C-1", "")

	resp, raw := call(t, app, http.MethodGet, "/metrics", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := string(raw)
	assert.Contains(t, body, `ledger_transactions_total{function="CreateCertificate",outcome="committed"} 1`)
	assert.Contains(t, body, `ledger_transactions_total{function="CreateCertificate",outcome="rejected"} 1`)
	assert.Contains(t, body, `ledger_transactions_total{function="GetCertificateById",outcome="evaluated"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestRoutes_HealthCountsRequests(t *testing.T) {
	app, mr := newTestApp(t)

	call(t, app, http.MethodGet, "/api/v1/certificates", "")
	call(t, app, http.MethodGet, "/api/v1/certificates/missing", "")

	resp, raw := call(t, app, http.MethodGet, "/health/json", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "ok", out["status"])

	total, err := mr.Get("health:global:req_total")
	require.NoError(t, err)
	assert.Equal(t, "2", total)
}

func TestRoutes_CORS(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/certificates/C-1/listing", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/certificates", nil)
	req.Header.Set("Origin", "https://evil.test")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestHandler_ServesHTTP(t *testing.T) {
	app, _ := newTestApp(t)
	srv := httptest.NewServer(Handler(app))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/ledger/functions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOpenDeps_Backends(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		deps, err := OpenDeps(ctx, testConfig())
		require.NoError(t, err)
		defer deps.Close()
		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.Rdb)
		assert.NoError(t, deps.Ledger.Ping(ctx))
	})

	t.Run("sql", func(t *testing.T) {
		cfg := testConfig()
		cfg.LedgerBackend = config.BackendSQL
		cfg.DatabaseURL = "sqlite::memory:"
		deps, err := OpenDeps(ctx, cfg)
		require.NoError(t, err)
		defer deps.Close()
		require.NotNil(t, deps.DB)
		assert.True(t, deps.DB.Migrator().HasTable("ledger_world_state"))
	})

	t.Run("redis", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()
		cfg := testConfig()
		cfg.LedgerBackend = config.BackendRedis
		cfg.RedisURL = "redis://" + mr.Addr()
		cfg.LedgerRedisPrefix = "certs"
		deps, err := OpenDeps(ctx, cfg)
		require.NoError(t, err)
		defer deps.Close()

		app := CreateApp(cfg, deps)
		resp, _ := call(t, app, http.MethodPost, "/api/v1/certificates", `{"id":"R-1","amount":"2","owner":"carol"}`)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.True(t, mr.Exists("{certs}:data:R-1"))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := testConfig()
		cfg.LedgerBackend = config.BackendRedis
		cfg.RedisURL = "redis://127.0.0.1:1"
		_, err := OpenDeps(ctx, cfg)
		assert.Error(t, err)
	})
}
