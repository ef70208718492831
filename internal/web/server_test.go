package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/PageImport/internal/config"
	"github.com/JonMunkholm/PageImport/internal/core"
	"github.com/JonMunkholm/PageImport/internal/pages"
	_ "github.com/JonMunkholm/PageImport/internal/pages/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{
			Delimiter:       ",",
			Quote:           `"`,
			DuplicatePolicy: "skip",
			MaxFileSize:     1 << 20,
			MaxConcurrent:   2,
			MaxWaitTime:     time.Second,
			Timeout:         10 * time.Second,
			ResultTTL:       time.Minute,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *pages.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := pages.NewMemoryStore()
	require.NoError(t, pages.SeedReferenceParents(ctx, store, "basic-page"))
	_, err := pages.EnsurePath(ctx, store, "/products", "basic-page")
	require.NoError(t, err)

	svc := core.NewService(store, nil, core.NewServiceConfig(cfg.Import))
	srv, err := NewServer(svc, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = svc.WaitForImports(context.Background())
	})
	return srv, store
}

func uploadRequest(t *testing.T, path, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", "data.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// =============================================================================
// Basic routes
// =============================================================================

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestTemplates(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/templates", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []core.TemplateInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	var names []string
	for _, tpl := range list {
		names = append(names, tpl.Name)
	}
	assert.Contains(t, names, "product")

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/templates/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RUN002", decodeError(t, rec).Code)
}

// =============================================================================
// Import flow
// =============================================================================

func TestImportFlow(t *testing.T) {
	srv, store := newTestServer(t, testConfig())
	csv := "title,price,category\nWidget,9.99,Tools\nGadget,abc,Tools\n"

	rec := serve(srv, uploadRequest(t, "/api/import/product", csv, map[string]string{
		"parent":     "/products",
		"autoCreate": "true",
	}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	runID := started["runId"]
	require.NotEmpty(t, runID)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/import/"+runID+"/result?wait=true", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result core.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "VAL001", result.Outcomes[1].Code)

	catsID, err := pages.ResolvePath(context.Background(), store, "/categories")
	require.NoError(t, err)
	assert.Len(t, store.Children(catsID), 1, "the category was created once")

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/import/"+runID+"/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: progress")
	assert.Contains(t, rec.Body.String(), "event: complete")
	assert.Contains(t, rec.Body.String(), `"phase":"complete"`)
}

func TestImportWithMapping(t *testing.T) {
	srv, store := newTestServer(t, testConfig())
	csv := "Name;Cost\nLamp;12\n"

	rec := serve(srv, uploadRequest(t, "/api/import/product", csv, map[string]string{
		"parent":    "/products",
		"delimiter": ";",
		"mapping":   `{"0":"title","1":"price"}`,
	}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/import/"+started["runId"]+"/result?wait=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	parentID, err := pages.ResolvePath(context.Background(), store, "/products")
	require.NoError(t, err)
	lamp, err := store.FindByName(context.Background(), parentID, "lamp")
	require.NoError(t, err)
	assert.Equal(t, "12", lamp.Get("price"))
}

func TestImportRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		name    string
		path    string
		content string
		fields  map[string]string
		status  int
		code    string
	}{
		{"bad policy", "/api/import/product", "title\nA\n", map[string]string{"policy": "merge"}, http.StatusBadRequest, "HTTP400"},
		{"bad mapping", "/api/import/product", "title\nA\n", map[string]string{"mapping": `{"x":"title"}`}, http.StatusBadRequest, "HTTP400"},
		{"negative rows", "/api/import/product", "title\nA\n", map[string]string{"maxRows": "-1"}, http.StatusBadRequest, "HTTP400"},
		{"quote equals delimiter", "/api/import/product", "title\nA\n", map[string]string{"quote": ","}, http.StatusBadRequest, "RUN001"},
		{"unknown template", "/api/import/nope", "title\nA\n", nil, http.StatusNotFound, "RUN002"},
		{"binary file", "/api/import/product", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01", nil, http.StatusUnsupportedMediaType, "FILE006"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(srv, uploadRequest(t, tt.path, tt.content, tt.fields))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestImportTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 64
	srv, _ := newTestServer(t, cfg)

	rec := serve(srv, uploadRequest(t, "/api/import/product", "title\n"+strings.Repeat("x", 200)+"\n", nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE005", decodeError(t, rec).Code)
}

func TestPreviewEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := serve(srv, uploadRequest(t, "/api/preview/product", "title,Cost,sku\nLamp,12,L-1\n", map[string]string{
		"parent": "/products",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp core.PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Columns, 3)
	assert.Equal(t, "title", resp.Columns[0].Field)
	assert.Equal(t, "sku", resp.Columns[2].Field)
	require.Len(t, resp.Samples, 1)
	assert.Equal(t, "lamp", resp.Samples[0].Name)
}

func TestUnknownRun(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/import/missing/result", nil),
		httptest.NewRequest(http.MethodGet, "/api/import/missing/progress", nil),
		httptest.NewRequest(http.MethodPost, "/api/import/missing/cancel", nil),
	} {
		rec := serve(srv, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, req.URL.Path)
		assert.Equal(t, "RUN005", decodeError(t, rec).Code)
	}
}

// =============================================================================
// Access control
// =============================================================================

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}
	srv, _ := newTestServer(t, cfg)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/templates", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/templates", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, serve(srv, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/templates", nil)
	req.Header.Set("Authorization", "Bearer k2")
	assert.Equal(t, http.StatusOK, serve(srv, req).Code)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "probes stay open")
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimit = 2
	cfg.Security.RateLimitPeriod = time.Minute
	srv, _ := newTestServer(t, cfg)

	get := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/templates", nil)
		req.RemoteAddr = addr
		return serve(srv, req)
	}

	assert.Equal(t, http.StatusOK, get("1.2.3.4:1000").Code)
	rec := get("1.2.3.4:1001")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = get("1.2.3.4:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "HTTP429", decodeError(t, rec).Code)

	assert.Equal(t, http.StatusOK, get("5.6.7.8:1000").Code, "limits are per client")

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "probes are not limited")
}

func TestRateLimitDisabled(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	for i := 0; i < 5; i++ {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/templates", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}
