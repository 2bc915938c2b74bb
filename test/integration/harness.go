// Package integration provides a reusable test harness for end-to-end
// testing of the editor service. It starts a full HTTP server over a real
// catalog directory with either an in-memory or a Redis session store.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/swarm-handbook/editor/internal/catalog"
	"github.com/swarm-handbook/editor/internal/config"
	"github.com/swarm-handbook/editor/internal/dashboard"
	"github.com/swarm-handbook/editor/internal/observability"
	"github.com/swarm-handbook/editor/internal/schema"
	"github.com/swarm-handbook/editor/internal/session"
	"github.com/swarm-handbook/editor/internal/transport"
	"github.com/swarm-handbook/editor/model"
)

// TestHarness encapsulates a fully wired editor instance.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	// Internal components exposed for advanced test scenarios.
	Catalog     *catalog.Catalog
	CatalogDir  string
	Schema      *schema.Schema
	Store       session.Store
	Sessions    *session.Manager
	Metrics     *observability.Metrics
	Registry    *prometheus.Registry
	Watcher     *catalog.Watcher
	RedisServer *miniredis.Miniredis

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	catalogDir     string
	copyCatalog    bool
	schemaPath     string
	hotReload      bool
	redis          *miniredis.Miniredis
	useRedis       bool
	handlerTimeout time.Duration
	maxUpload      int64
}

// WithCatalogCopy serves a private copy of the fixture catalog, so the test
// may add or change product files.
func WithCatalogCopy() HarnessOption {
	return func(c *harnessConfig) {
		c.copyCatalog = true
	}
}

// WithHotReload watches the catalog directory and reloads it on change.
// It implies WithCatalogCopy.
func WithHotReload() HarnessOption {
	return func(c *harnessConfig) {
		c.copyCatalog = true
		c.hotReload = true
	}
}

// WithoutSchema disables schema hints.
func WithoutSchema() HarnessOption {
	return func(c *harnessConfig) {
		c.schemaPath = ""
	}
}

// WithRedis keeps sessions in a Redis store backed by mr. Passing nil
// starts a fresh miniredis server.
func WithRedis(mr *miniredis.Miniredis) HarnessOption {
	return func(c *harnessConfig) {
		c.useRedis = true
		c.redis = mr
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithMaxUpload bounds upload bodies.
func WithMaxUpload(n int64) HarnessOption {
	return func(c *harnessConfig) {
		c.maxUpload = n
	}
}

// NewTestHarness creates and starts a full editor test instance. The server
// is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		catalogDir:     filepath.Join(repoRoot(), "internal", "catalog", "testdata", "products"),
		schemaPath:     filepath.Join(repoRoot(), "schema", "product.schema.json"),
		handlerTimeout: 10 * time.Second,
		maxUpload:      1 << 20,
	}
	for _, opt := range opts {
		opt(hc)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	h := &TestHarness{t: t}

	// Step 1: Prepare the catalog directory.
	h.CatalogDir = hc.catalogDir
	if hc.copyCatalog {
		h.CatalogDir = copyCatalog(t, hc.catalogDir)
	}

	// Step 2: Build config.
	h.cfg = config.Defaults()
	h.cfg.Catalog.Directory = h.CatalogDir
	h.cfg.Catalog.HotReload = hc.hotReload
	h.cfg.Schema.Path = hc.schemaPath
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.MaxUploadBytes = hc.maxUpload
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}

	// Step 3: Metrics on a private registry.
	h.Registry = prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(h.Registry)

	// Step 4: Load the catalog and start the watcher.
	h.Catalog = &catalog.Catalog{}
	loader := catalog.NewLoader(logger)
	reload := func() error {
		loaded, skipped, err := catalog.Reload(loader, h.CatalogDir, h.Catalog)
		if err != nil {
			h.Metrics.RecordCatalogLoad(observability.LoadResultError, 0, skipped)
			return err
		}
		h.Metrics.RecordCatalogLoad(observability.LoadResultOK, loaded, skipped)
		return nil
	}
	if err := reload(); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if hc.hotReload {
		w, err := catalog.NewWatcher(h.CatalogDir, reload, logger)
		if err != nil {
			t.Fatalf("catalog watcher: %v", err)
		}
		w.Debounce = 20 * time.Millisecond
		if err := w.Start(); err != nil {
			t.Fatalf("start catalog watcher: %v", err)
		}
		h.Watcher = w
		t.Cleanup(w.Stop)
	}

	// Step 5: Load the schema.
	if hc.schemaPath != "" {
		s, err := schema.Load(hc.schemaPath)
		if err != nil {
			t.Fatalf("load schema: %v", err)
		}
		h.Schema = s
	}

	// Step 6: Build the session store.
	if hc.useRedis {
		if hc.redis == nil {
			hc.redis = miniredis.RunT(t)
		}
		h.RedisServer = hc.redis
		client := redis.NewClient(&redis.Options{Addr: hc.redis.Addr()})
		t.Cleanup(func() { client.Close() })
		h.Store = session.NewRedisStore(client)
	} else {
		h.Store = session.NewMemoryStore()
	}

	// Step 7: Build the session manager.
	dashOpts := dashboard.Options{
		Catalog:          h.Catalog,
		Enumerations:     h.cfg.Enums(),
		DefaultProductID: h.cfg.Catalog.DefaultProductID,
		Metrics:          h.Metrics,
		Logger:           logger,
	}
	if h.Schema != nil {
		dashOpts.Schema = h.Schema
	}
	h.Sessions = session.NewManager(h.Store, dashOpts, h.cfg.Sessions.TTL)

	// Step 8: Build router with full middleware chain.
	readiness := observability.ReadinessChecks{
		CatalogLoaded: h.Catalog.Loaded,
		SessionStore:  h.Store,
	}
	if h.Schema != nil {
		readiness.SchemaLoaded = func() bool { return len(h.Schema.Raw()) > 0 }
	}
	router := transport.NewRouter(transport.Dependencies{
		Config:         h.cfg,
		Catalog:        h.Catalog,
		Schema:         h.Schema,
		Sessions:       h.Sessions,
		Metrics:        h.Metrics,
		Logger:         logger,
		HealthHandler:  observability.HandleHealth(),
		ReadyHandler:   observability.HandleReady(readiness),
		MetricsHandler: observability.Handler(h.Registry),
	})

	// Step 9: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// --- HTTP client helpers ---

// GET performs a GET request.
func (h *TestHarness) GET(path string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, "", nil)
}

// GETWithHeaders performs a GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, "", headers)
}

// POST performs a POST request with a JSON body. A nil body sends none.
func (h *TestHarness) POST(path string, body any) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, jsonBody(h.t, body), "application/json", nil)
}

// PUT performs a PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPut, path, jsonBody(h.t, body), "application/json", nil)
}

// DELETE performs a DELETE request.
func (h *TestHarness) DELETE(path string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodDelete, path, nil, "", nil)
}

// Upload posts raw document bytes to a session's upload endpoint.
func (h *TestHarness) Upload(sessionID string, doc []byte) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, "/ui/sessions/"+sessionID+"/upload", bytes.NewReader(doc), "application/json", nil)
}

func jsonBody(t *testing.T, body any) io.Reader {
	t.Helper()
	if body == nil {
		return nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	return bytes.NewReader(data)
}

func (h *TestHarness) doRequest(method, path string, body io.Reader, contentType string, headers map[string]string) *http.Response {
	h.t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, body)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Session helpers ---

// SessionState mirrors the session endpoints' response body.
type SessionState struct {
	SessionID     string               `json:"session_id"`
	Product       model.Product        `json:"product"`
	Widgets       map[string]any       `json:"widgets"`
	View          model.View           `json:"view"`
	Location      string               `json:"location"`
	Notifications []model.Notification `json:"notifications"`
	Loaded        *bool                `json:"loaded"`
}

// CreateSession opens a session with the given deep link query ("" for the
// default product) and returns its state.
func (h *TestHarness) CreateSession(t *testing.T, query string) SessionState {
	t.Helper()
	path := "/ui/sessions"
	if query != "" {
		path += "?" + query
	}
	var state SessionState
	h.AssertJSON(t, h.POST(path, nil), http.StatusCreated, &state)
	if state.SessionID == "" {
		t.Fatal("created session has no id")
	}
	return state
}

// Session fetches the current state of a session.
func (h *TestHarness) Session(t *testing.T, id string) SessionState {
	t.Helper()
	var state SessionState
	h.AssertJSON(t, h.GET("/ui/sessions/"+id), http.StatusOK, &state)
	return state
}

// --- Fixtures ---

// repoRoot returns the absolute path to the module root.
func repoRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..")
}

// testdataDir returns the absolute path to this package's testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// copyCatalog copies the product files of src into a temporary directory.
func copyCatalog(t *testing.T, src string) string {
	t.Helper()
	dst := t.TempDir()
	entries, err := os.ReadDir(src)
	if err != nil {
		t.Fatalf("read catalog fixtures: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", e.Name(), err)
		}
	}
	return dst
}

// ReadFixture returns the contents of a file in testdata.
func ReadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(testdataDir(), name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

// ProductFixture returns a complete product document with the given id and
// spacecraft.
func ProductFixture(id string, spacecraft ...string) map[string]any {
	if spacecraft == nil {
		spacecraft = []string{}
	}
	return map[string]any{
		"product_id":            id,
		"definition":            fmt.Sprintf("Fixture product %s", id),
		"description":           "<p>Fixture</p>",
		"details":               "",
		"related_resources":     "",
		"changelog":             "",
		"applicable_spacecraft": spacecraft,
		"applicable_missions":   []string{},
		"thematic_areas":        []string{"Magnetic field"},
		"link_files_http":       "",
		"link_files_ftp":        "",
		"link_vires_gui":        "",
		"link_notebook":         "",
		"link_hapi":             "",
		"variables_table":       "variable,units\nB_NEC,nT\n",
	}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
