package certificates

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"greencredits-ledger/internal/application/certificates"
	"greencredits-ledger/internal/application/gateway"
	"greencredits-ledger/internal/application/ingest"
	"greencredits-ledger/internal/ledger"
	"greencredits-ledger/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	gw := &gateway.Service{Certificates: &certificates.Service{Ledger: ledger.NewMemory()}, MaxRetries: 1}
	h := &Handlers{Gateway: gw, Ingest: &ingest.Service{Gateway: gw}}

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	g := app.Group("/api/v1/certificates")
	g.Post("/", h.Create)
	g.Get("/", h.List)
	g.Post("/ingest", h.IngestAuthentication)
	g.Get("/listings", h.Listings)
	g.Get("/:id", h.Get)
	g.Get("/:id/exists", h.Exists)
	g.Patch("/:id/auth-status", h.UpdateAuthStatus)
	g.Post("/:id/retire", h.Retire)
	g.Post("/:id/listing", h.ListOnMarketplace)
	g.Delete("/:id/listing", h.Unlist)
	g.Get("/:id/history", h.History)
	g.Get("/:id/history/verify", h.VerifyHistory)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func errorOf(out map[string]interface{}) map[string]interface{} {
	return out["error"].(map[string]interface{})
}

const createBody = `{
	"id": "VCS-1", "projectID": "P-1", "projectName": "Mangroves", "vintage": "2021",
	"amount": "10", "issuanceDate": "2022-01-15", "registry": "Verra", "category": "Blue Carbon",
	"issuedTo": "Acme", "owner": "alice", "fileHash": "abc123"
}`

func TestCreate(t *testing.T) {
	app := newApp(t)

	status, out := do(t, app, http.MethodPost, "/api/v1/certificates", createBody)
	require.Equal(t, fiber.StatusCreated, status)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "VCS-1", data["id"])
	assert.Equal(t, "10", data["amount"])
	assert.Equal(t, "pending", data["authStatus"])
	assert.Equal(t, "active", data["lifecycleStatus"])
	assert.Equal(t, "carbonCredit", data["docType"])

	status, out = do(t, app, http.MethodPost, "/api/v1/certificates", createBody)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "ALREADY_EXISTS", errorOf(out)["kind"])
}

func TestCreate_Validation(t *testing.T) {
	app := newApp(t)

	status, out := do(t, app, http.MethodPost, "/api/v1/certificates", `{"id":"X","amount":"ten"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	e := errorOf(out)
	assert.Equal(t, "INVALID_ARGUMENT", e["kind"])
	details := e["details"].(map[string]interface{})
	assert.Contains(t, details, "amount")
	assert.Contains(t, details, "owner")

	status, _ = do(t, app, http.MethodPost, "/api/v1/certificates", `{"id":"X","unknown":1}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, out = do(t, app, http.MethodPost, "/api/v1/certificates", `{"id":"a\u001fb","amount":"1","owner":"alice"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, errorOf(out)["details"], "id")
}

func TestLifecycleOverHTTP(t *testing.T) {
	app := newApp(t)
	status, _ := do(t, app, http.MethodPost, "/api/v1/certificates", createBody)
	require.Equal(t, fiber.StatusCreated, status)

	status, out := do(t, app, http.MethodPost, "/api/v1/certificates/VCS-1/listing", `{"pricePerCredit":"2.5"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "FAILED_PRECONDITION", errorOf(out)["kind"])

	status, out = do(t, app, http.MethodPatch, "/api/v1/certificates/VCS-1/auth-status", `{"authStatus":"authenticated"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "authenticated", out["data"].(map[string]interface{})["authStatus"])

	status, out = do(t, app, http.MethodPost, "/api/v1/certificates/VCS-1/listing", `{"pricePerCredit":"2.5","description":"Blue carbon"}`)
	require.Equal(t, fiber.StatusOK, status)
	market := out["data"].(map[string]interface{})["marketplace"].(map[string]interface{})
	assert.Equal(t, "2.5", market["pricePerCredit"])
	assert.Equal(t, "25", market["totalValue"])
	assert.Equal(t, "Blue carbon", market["description"])

	status, out = do(t, app, http.MethodGet, "/api/v1/certificates/listings", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, out["metadata"].(map[string]interface{})["count"])

	status, out = do(t, app, http.MethodDelete, "/api/v1/certificates/VCS-1/listing", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.NotContains(t, out["data"], "marketplace")

	status, out = do(t, app, http.MethodDelete, "/api/v1/certificates/VCS-1/listing", "")
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _ = do(t, app, http.MethodPost, "/api/v1/certificates/VCS-1/retire", "")
	require.Equal(t, fiber.StatusOK, status)
	status, out = do(t, app, http.MethodPost, "/api/v1/certificates/VCS-1/retire", "")
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "FAILED_PRECONDITION", errorOf(out)["kind"])

	status, out = do(t, app, http.MethodGet, "/api/v1/certificates/VCS-1/history", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 5, out["metadata"].(map[string]interface{})["count"])

	status, out = do(t, app, http.MethodGet, "/api/v1/certificates/VCS-1/history/verify", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["data"].(map[string]interface{})["intact"])
}

func TestGetAndExists(t *testing.T) {
	app := newApp(t)

	status, out := do(t, app, http.MethodGet, "/api/v1/certificates/VCS-1", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorOf(out)["kind"])

	status, out = do(t, app, http.MethodGet, "/api/v1/certificates/VCS-1/exists", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, out["data"].(map[string]interface{})["exists"])

	do(t, app, http.MethodPost, "/api/v1/certificates", createBody)

	status, out = do(t, app, http.MethodGet, "/api/v1/certificates/VCS-1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alice", out["data"].(map[string]interface{})["owner"])

	_, out = do(t, app, http.MethodGet, "/api/v1/certificates/VCS-1/exists", "")
	assert.Equal(t, true, out["data"].(map[string]interface{})["exists"])
}

func TestList_Filters(t *testing.T) {
	app := newApp(t)
	do(t, app, http.MethodPost, "/api/v1/certificates", createBody)
	do(t, app, http.MethodPost, "/api/v1/certificates",
		`{"id":"VCS-2","amount":"3","owner":"bob","registry":"Gold Standard","vintage":"2020"}`)

	_, out := do(t, app, http.MethodGet, "/api/v1/certificates", "")
	assert.EqualValues(t, 2, out["metadata"].(map[string]interface{})["count"])

	_, out = do(t, app, http.MethodGet, "/api/v1/certificates?owner=bob", "")
	data := out["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "VCS-2", data[0].(map[string]interface{})["id"])

	_, out = do(t, app, http.MethodGet, "/api/v1/certificates?vintage=2021", "")
	assert.Len(t, out["data"], 1)

	_, out = do(t, app, http.MethodGet, "/api/v1/certificates?fileHash=abc123", "")
	assert.Len(t, out["data"], 1)

	status, out := do(t, app, http.MethodGet, "/api/v1/certificates?authStatus=bogus", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", errorOf(out)["kind"])

	status, _ = do(t, app, http.MethodGet, "/api/v1/certificates?owner=bob&vintage=2020", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestUpdateAuthStatus_Validation(t *testing.T) {
	app := newApp(t)
	do(t, app, http.MethodPost, "/api/v1/certificates", createBody)

	status, out := do(t, app, http.MethodPatch, "/api/v1/certificates/VCS-1/auth-status", `{"authStatus":"approved"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, errorOf(out)["details"], "authStatus")

	status, _ = do(t, app, http.MethodPatch, "/api/v1/certificates/NOPE/auth-status", `{"authStatus":"authenticated"}`)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestIngestAuthentication(t *testing.T) {
	app := newApp(t)
	body := `{
		"owner": "alice",
		"fileHash": "9f86d081",
		"result": {
			"status": "authenticated",
			"meta": {"score": 88},
			"extracted_data": {"serial_number": "GS-9", "vintage": 2019, "amount": 42},
			"carbonmark_details": {"id": "cm-1", "name": "Gold Standard"}
		}
	}`

	status, out := do(t, app, http.MethodPost, "/api/v1/certificates/ingest", body)
	require.Equal(t, fiber.StatusCreated, status)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, true, data["created"])
	cert := data["certificate"].(map[string]interface{})
	assert.Equal(t, "GS-9", cert["id"])
	assert.Equal(t, "authenticated", cert["authStatus"])
	assert.Equal(t, "Gold Standard", cert["registry"])

	status, out = do(t, app, http.MethodPost, "/api/v1/certificates/ingest", body)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, out["data"].(map[string]interface{})["created"])

	status, _ = do(t, app, http.MethodPost, "/api/v1/certificates/ingest", `not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
