package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/swarm-handbook/editor/internal/catalog"
	"github.com/swarm-handbook/editor/internal/export"
	"github.com/swarm-handbook/editor/model"
)

// --- Test helpers ---

func doRequest(t *testing.T, r chi.Router, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSON(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(t, r, method, path, strings.NewReader(body), "application/json")
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) sessionState {
	t.Helper()
	var s sessionState
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("decode state: %v (body %q)", err, w.Body.String())
	}
	return s
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorEnvelope {
	t.Helper()
	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v (body %q)", err, w.Body.String())
	}
	return resp.Error
}

// newSession creates a session with the given query and returns its state.
func newSession(t *testing.T, r chi.Router, query string) sessionState {
	t.Helper()
	path := "/ui/sessions"
	if query != "" {
		path += "?" + query
	}
	w := doRequest(t, r, "POST", path, nil, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body %s", w.Code, w.Body.String())
	}
	return decodeState(t, w)
}

func productJSON(t *testing.T, p *model.Product) string {
	t.Helper()
	doc, err := export.ToJSON(p)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	return string(doc)
}

// --- Catalog handler tests ---

func TestListCatalog(t *testing.T) {
	r := NewRouter(testDeps(t))

	w := doRequest(t, r, "GET", "/ui/catalog", nil, "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body catalogListResponse
	json.NewDecoder(w.Body).Decode(&body)
	want := []string{"SW_EFIx_LP_1B", "SW_MAGx_LR_1B"}
	if strings.Join(body.ProductIDs, ",") != strings.Join(want, ",") {
		t.Errorf("product_ids = %v, want %v", body.ProductIDs, want)
	}
}

func TestListCatalog_prefix(t *testing.T) {
	r := NewRouter(testDeps(t))

	tests := []struct {
		query string
		want  string
	}{
		{"prefix=sw_mag", "SW_MAGx_LR_1B"},
		{"prefix=SW_", "SW_EFIx_LP_1B,SW_MAGx_LR_1B"},
		{"prefix=CS", ""},
		{"prefix=", ""},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			w := doRequest(t, r, "GET", "/ui/catalog?"+tc.query, nil, "")
			var body catalogListResponse
			json.NewDecoder(w.Body).Decode(&body)
			if body.ProductIDs == nil {
				t.Fatal("product_ids should be an array, got null")
			}
			if got := strings.Join(body.ProductIDs, ","); got != tc.want {
				t.Errorf("product_ids = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGetProduct(t *testing.T) {
	r := NewRouter(testDeps(t))

	w := doRequest(t, r, "GET", "/ui/catalog/SW_MAGx_LR_1B", nil, "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got, want := w.Body.String(), productJSON(t, magProduct()); got != want {
		t.Errorf("body = %s\nwant %s", got, want)
	}
}

func TestGetProduct_notFound(t *testing.T) {
	r := NewRouter(testDeps(t))

	w := doRequest(t, r, "GET", "/ui/catalog/NOPE", nil, "")
	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if e := decodeError(t, w); e.Code != model.ErrNotFound {
		t.Errorf("code = %q", e.Code)
	}
}

func TestPreviewProduct(t *testing.T) {
	r := NewRouter(testDeps(t))

	w := doRequest(t, r, "GET", "/ui/catalog/SW_MAGx_LR_1B/preview", nil, "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got, want := w.Body.String(), export.ToMarkdown(magProduct()); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestGetSchema(t *testing.T) {
	deps := testDeps(t)
	r := NewRouter(deps)

	w := doRequest(t, r, "GET", "/ui/schema", nil, "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), deps.Schema.Raw()) {
		t.Error("schema body should be the raw document")
	}
}

func TestGetSchema_notConfigured(t *testing.T) {
	deps := testDeps(t)
	deps.Schema = nil
	r := NewRouter(deps)

	w := doRequest(t, r, "GET", "/ui/schema", nil, "")
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// --- Session handler tests ---

func TestCreateSession_default(t *testing.T) {
	r := NewRouter(testDeps(t))

	w := doRequest(t, r, "POST", "/ui/sessions", nil, "")
	if w.Code != 201 {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	s := decodeState(t, w)
	if s.SessionID == "" {
		t.Fatal("session_id should be set")
	}
	if got := w.Header().Get("Location"); got != "/ui/sessions/"+s.SessionID {
		t.Errorf("Location header = %q", got)
	}
	if s.Product.ProductID != "SW_MAGx_LR_1B" {
		t.Errorf("product_id = %q, want the default product", s.Product.ProductID)
	}
	if s.View.Filename != "SW_MAGx_LR_1B.json" {
		t.Errorf("filename = %q", s.View.Filename)
	}
	if s.Location != "?SW_MAGx_LR_1B" {
		t.Errorf("location = %q", s.Location)
	}
	if s.View.Markdown == "" || s.View.JSON["product_id"] != "SW_MAGx_LR_1B" {
		t.Error("view should be rendered for the preloaded product")
	}
}

func TestCreateSession_deepLink(t *testing.T) {
	r := NewRouter(testDeps(t))

	for _, query := range []string{"SW_EFIx_LP_1B", "product_id=SW_EFIx_LP_1B"} {
		t.Run(query, func(t *testing.T) {
			s := newSession(t, r, query)
			if s.Product.ProductID != "SW_EFIx_LP_1B" {
				t.Errorf("product_id = %q, want SW_EFIx_LP_1B", s.Product.ProductID)
			}
		})
	}
}

func TestCreateSession_escapedProductID(t *testing.T) {
	deps := testDeps(t)
	plus := model.NewProduct()
	plus.ProductID = "A+B"
	amp := model.NewProduct()
	amp.ProductID = "a&b"
	deps.Catalog.Replace([]catalog.Record{{Product: plus}, {Product: amp}})
	r := NewRouter(deps)

	tests := []struct {
		query    string
		want     string
		location string
	}{
		{"product_id=A%2BB", "A+B", "?A%2BB"},
		{"A%2BB", "A+B", "?A%2BB"},
		{"product_id=a%26b", "a&b", "?a%26b"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			s := newSession(t, r, tt.query)
			if s.Product.ProductID != tt.want {
				t.Errorf("product_id = %q, want %q", s.Product.ProductID, tt.want)
			}
			if s.Location != tt.location {
				t.Errorf("location = %q, want %q", s.Location, tt.location)
			}

			reopened := newSession(t, r, strings.TrimPrefix(s.Location, "?"))
			if reopened.Product.ProductID != tt.want {
				t.Errorf("reopened product_id = %q, want %q", reopened.Product.ProductID, tt.want)
			}
		})
	}
}

func TestCreateSession_unknownDeepLink(t *testing.T) {
	r := NewRouter(testDeps(t))

	s := newSession(t, r, "NOPE")
	if s.Product.ProductID != "" {
		t.Errorf("product_id = %q, want empty editor", s.Product.ProductID)
	}
	if s.Location != "?NOPE" {
		t.Errorf("location = %q, want the deep link kept", s.Location)
	}
}

func TestGetSession(t *testing.T) {
	r := NewRouter(testDeps(t))
	created := newSession(t, r, "")

	w := doRequest(t, r, "GET", "/ui/sessions/"+created.SessionID, nil, "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	s := decodeState(t, w)
	if s.SessionID != created.SessionID {
		t.Errorf("session_id = %q", s.SessionID)
	}
	if s.Product.ProductID != "SW_MAGx_LR_1B" {
		t.Errorf("product_id = %q", s.Product.ProductID)
	}
}

func TestGetForm(t *testing.T) {
	r := NewRouter(testDeps(t))
	s := newSession(t, r, "")

	w := doRequest(t, r, "GET", "/ui/sessions/"+s.SessionID+"/form", nil, "")
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var form model.FormDescriptor
	json.NewDecoder(w.Body).Decode(&form)
	if form.ID != "product-editor" {
		t.Errorf("form id = %q", form.ID)
	}
	var refresh string
	for _, a := range form.Actions {
		if a.ID == "refresh" {
			refresh = a.Endpoint
		}
	}
	if refresh != "/ui/sessions/"+s.SessionID+"/refresh" {
		t.Errorf("refresh endpoint = %q", refresh)
	}
}

func TestEditAndRefresh(t *testing.T) {
	r := NewRouter(testDeps(t))
	s := newSession(t, r, "")
	base := "/ui/sessions/" + s.SessionID

	w := doJSON(t, r, "PUT", base+"/widgets", `{
		"product_id": "SW_NEW_1B",
		"applicable_spacecraft": ["Swarm-C", "Swarm-A"],
		"definition": "New product"
	}`)
	if w.Code != 200 {
		t.Fatalf("put widgets status = %d, body %s", w.Code, w.Body.String())
	}
	edited := decodeState(t, w)
	if edited.Product.ProductID != "SW_MAGx_LR_1B" {
		t.Errorf("product changed before refresh: %q", edited.Product.ProductID)
	}
	if edited.View.Filename != "SW_MAGx_LR_1B.json" {
		t.Errorf("view changed before refresh: %q", edited.View.Filename)
	}

	w = doRequest(t, r, "POST", base+"/refresh", nil, "")
	if w.Code != 200 {
		t.Fatalf("refresh status = %d", w.Code)
	}
	refreshed := decodeState(t, w)
	if refreshed.Product.ProductID != "SW_NEW_1B" {
		t.Errorf("product_id = %q", refreshed.Product.ProductID)
	}
	if got := strings.Join(refreshed.Product.ApplicableSpacecraft, ","); got != "Swarm-A,Swarm-C" {
		t.Errorf("spacecraft = %q, want sorted", got)
	}
	if got := strings.Join(refreshed.Product.ApplicableMissions, ","); got != "Swarm" {
		t.Errorf("missions = %q, want Swarm", got)
	}
	if refreshed.View.Filename != "SW_NEW_1B.json" || refreshed.Location != "?SW_NEW_1B" {
		t.Errorf("filename = %q, location = %q", refreshed.View.Filename, refreshed.Location)
	}
}

func TestPutWidgets_unknownField(t *testing.T) {
	r := NewRouter(testDeps(t))
	s := newSession(t, r, "")

	w := doJSON(t, r, "PUT", "/ui/sessions/"+s.SessionID+"/widgets", `{"colour": "red"}`)
	if w.Code != 422 {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	e := decodeError(t, w)
	if e.Code != model.ErrValidationError {
		t.Errorf("code = %q", e.Code)
	}
	if len(e.Details) != 1 || e.Details[0].Field != "colour" {
		t.Errorf("details = %+v", e.Details)
	}
}

func TestPutWidgets_badBody(t *testing.T) {
	r := NewRouter(testDeps(t))
	s := newSession(t, r, "")

	for _, body := range []string{`not json`, `null`, `["a"]`} {
		t.Run(body, func(t *testing.T) {
			w := doJSON(t, r, "PUT", "/ui/sessions/"+s.SessionID+"/widgets", body)
			if w.Code != 400 {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	r := NewRouter(testDeps(t))
	s := newSession(t, r, "")

	w := doJSON(t, r, "POST", "/ui/sessions/"+s.SessionID+"/load", `{"product_id": "SW_EFIx_LP_1B"}`)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	got := decodeState(t, w)
	if got.Loaded == nil || !*got.Loaded {
		t.Error("loaded should be true")
	}
	if got.Product.ProductID != "SW_EFIx_LP_1B" || got.Widgets["product_id"] != "SW_EFIx_LP_1B" {
		t.Errorf("product = %q, widget = %v", got.Product.ProductID, got.Widgets["product_id"])
	}
}

func TestLoad_unknownIDIsNoop(t *testing.T) {
	r := NewRouter(testDeps(t))
	s := newSession(t, r, "")
	base := "/ui/sessions/" + s.SessionID

	doJSON(t, r, "PUT", base+"/widgets", `{"definition": "dirty"}`)

	w := doJSON(t, r, "POST", base+"/load", `{"product_id": "NOPE"}`)
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := decodeState(t, w)
	if got.Loaded == nil || *got.Loaded {
		t.Error("loaded should be false")
	}
	if got.Product.ProductID != "SW_MAGx_LR_1B" {
		t.Errorf("product_id = %q, want unchanged", got.Product.ProductID)
	}
	if got.Widgets["definition"] != "dirty" {
		t.Errorf("widgets should be unchanged, definition = %v", got.Widgets["definition"])
	}
}

func TestUpload_rawBody(t *testing.T) {
	r := NewRouter(testDeps(t))
	s := newSession(t, r, "")

	up := efiProduct()
	up.ProductID = "SW_UPLOADED"
	w := doJSON(t, r, "POST", "/ui/sessions/"+s.SessionID+"/upload", productJSON(t, up))
	if w.Code != 200 {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	got := decodeState(t, w)
	if got.Product.ProductID != "SW_UPLOADED" || got.View.Filename != "SW_UPLOADED.json" {
		t.Errorf("product_id = %q, filename = %q", got.Product.ProductID, got.View.Filename)
	}
}

func TestUpload_multipart(t *testing.T) {
	r := NewRouter(testDeps(t))
	s := newSession(t, r, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "SW_EFIx_LP_1B.json")
	fw.Write([]byte(productJSON(t, efiProduct())))
	mw.Close()

	w := doRequest(t, r, "POST", "/ui/sessions/"+s.SessionID+"/upload", &buf, mw.FormDataContentType())
	if w.Code != 200 {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decodeState(t, w); got.Product.ProductID != "SW_EFIx_LP_1B" {
		t.Errorf("product_id = %q", got.Product.ProductID)
	}
}

func TestUpload_multipartMissingFile(t *testing.T) {
	r := NewRouter(testDeps(t))
	s := newSession(t, r, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("other", "x")
	mw.Close()

	w := doRequest(t, r, "POST", "/ui/sessions/"+s.SessionID+"/upload", &buf, mw.FormDataContentType())
	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpload_malformedLeavesStateUnchanged(t *testing.T) {
	deps := testDeps(t)
	r := NewRouter(deps)
	s := newSession(t, r, "")
	base := "/ui/sessions/" + s.SessionID

	w := doJSON(t, r, "POST", base+"/upload", `{"product_id": "half a record"}`)
	if w.Code != 422 {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if e := decodeError(t, w); e.Code != model.ErrParseError {
		t.Errorf("code = %q, want PARSE_ERROR", e.Code)
	}

	w = doRequest(t, r, "GET", base, nil, "")
	got := decodeState(t, w)
	if got.Product.ProductID != "SW_MAGx_LR_1B" {
		t.Errorf("product_id = %q, want unchanged", got.Product.ProductID)
	}
	if len(got.Notifications) != 1 || got.Notifications[0].Level != model.NotifyError {
		t.Fatalf("notifications = %+v, want one error", got.Notifications)
	}

	// Notifications are delivered once.
	w = doRequest(t, r, "GET", base, nil, "")
	if again := decodeState(t, w); len(again.Notifications) != 0 {
		t.Errorf("notifications redelivered: %+v", again.Notifications)
	}

	if got := testutil.ToFloat64(deps.Metrics.UploadParseFailuresTotal); got != 1 {
		t.Errorf("upload parse failures = %v, want 1", got)
	}
}

func TestUpload_tooLarge(t *testing.T) {
	deps := testDeps(t)
	deps.Config.Server.MaxUploadBytes = 16
	r := NewRouter(deps)
	s := newSession(t, r, "")

	w := doJSON(t, r, "POST", "/ui/sessions/"+s.SessionID+"/upload", productJSON(t, magProduct()))
	if w.Code != 413 {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if e := decodeError(t, w); e.Code != model.ErrPayloadTooLarge {
		t.Errorf("code = %q", e.Code)
	}
}

func TestDownload(t *testing.T) {
	deps := testDeps(t)
	r := NewRouter(deps)
	s := newSession(t, r, "")

	w := doRequest(t, r, "GET", "/ui/sessions/"+s.SessionID+"/download", nil, "")
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="SW_MAGx_LR_1B.json"` {
		t.Errorf("Content-Disposition = %q", got)
	}

	want := magProduct()
	want.Normalize()
	if got := w.Body.String(); got != productJSON(t, want) {
		t.Errorf("body = %s", got)
	}
	if got := testutil.ToFloat64(deps.Metrics.DownloadsTotal); got != 1 {
		t.Errorf("downloads = %v, want 1", got)
	}
}

func TestDownload_roundTripsThroughUpload(t *testing.T) {
	r := NewRouter(testDeps(t))
	a := newSession(t, r, "")
	w := doRequest(t, r, "GET", "/ui/sessions/"+a.SessionID+"/download", nil, "")
	doc := w.Body.String()

	b := newSession(t, r, "SW_EFIx_LP_1B")
	w = doJSON(t, r, "POST", "/ui/sessions/"+b.SessionID+"/upload", doc)
	if w.Code != 200 {
		t.Fatalf("upload status = %d", w.Code)
	}
	w = doRequest(t, r, "GET", "/ui/sessions/"+b.SessionID+"/download", nil, "")
	if w.Body.String() != doc {
		t.Errorf("download after upload = %s\nwant %s", w.Body.String(), doc)
	}
}

func TestContentDisposition_escapesQuotes(t *testing.T) {
	got := contentDisposition(`we"ird\.json`)
	want := `attachment; filename="we\"ird\\.json"`
	if got != want {
		t.Errorf("contentDisposition = %q, want %q", got, want)
	}
}

func TestDeleteSession(t *testing.T) {
	r := NewRouter(testDeps(t))
	s := newSession(t, r, "")
	base := "/ui/sessions/" + s.SessionID

	w := doRequest(t, r, "DELETE", base, nil, "")
	if w.Code != 204 {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	w = doRequest(t, r, "GET", base, nil, "")
	if w.Code != 404 {
		t.Errorf("status after delete = %d, want 404", w.Code)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	r := NewRouter(testDeps(t))
	a := newSession(t, r, "")
	b := newSession(t, r, "")

	doJSON(t, r, "PUT", "/ui/sessions/"+a.SessionID+"/widgets", `{"definition": "only in a"}`)
	doRequest(t, r, "POST", "/ui/sessions/"+a.SessionID+"/refresh", nil, "")

	w := doRequest(t, r, "GET", "/ui/sessions/"+b.SessionID, nil, "")
	if got := decodeState(t, w); got.Product.Definition == "only in a" {
		t.Error("edit leaked into another session")
	}
}
