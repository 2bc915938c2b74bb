package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/swarm-handbook/editor/model"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]string{"hello": "world"})

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if xct := w.Header().Get("X-Content-Type-Options"); xct != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", xct)
	}

	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["hello"] != "world" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteDocument(t *testing.T) {
	w := httptest.NewRecorder()
	doc := []byte("{\n  \"product_id\": \"X\"\n}\n")
	WriteDocument(w, http.StatusOK, doc)

	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := w.Body.String(); got != string(doc) {
		t.Errorf("body = %q, want bytes written verbatim", got)
	}
}

func TestWriteError_envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, model.NewNotFoundError("product not found"))

	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}

	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", resp.Error.Code)
	}
}

func TestWriteError_wrappedEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, fmt.Errorf("loading: %w", model.NewParseError("bad json")))

	if w.Code != 422 {
		t.Errorf("status = %d, want 422 for wrapped PARSE_ERROR", w.Code)
	}
}

func TestWriteError_non_envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, fmt.Errorf("something went wrong"))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500 for non-envelope error", w.Code)
	}
}

func TestWriteNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNotFound(w, "resource missing")
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestWriteBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBadRequest(w, "bad")
	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStatusForCode_coverage(t *testing.T) {
	codes := []struct {
		code   string
		status int
	}{
		{model.ErrBadRequest, 400},
		{model.ErrNotFound, 404},
		{model.ErrPayloadTooLarge, 413},
		{model.ErrParseError, 422},
		{model.ErrValidationError, 422},
		{model.ErrLoadError, 500},
		{model.ErrInternalError, 500},
		{"SOMETHING_NEW", 500},
	}
	for _, tc := range codes {
		t.Run(tc.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, &model.ErrorEnvelope{Code: tc.code, Message: "test"})
			if w.Code != tc.status {
				t.Errorf("status for %s = %d, want %d", tc.code, w.Code, tc.status)
			}
		})
	}
}

func TestWriteRequestError_logsUnknownErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/ui/catalog", nil)

	writeRequestError(w, r, zap.New(core), fmt.Errorf("disk on fire"))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if logs.Len() != 1 {
		t.Fatalf("logged %d entries, want 1", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["path"]; got != "/ui/catalog" {
		t.Errorf("logged path = %v", got)
	}
}

func TestWriteRequestError_doesNotMutateEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	shared := model.NewNotFoundError("gone")

	w := httptest.NewRecorder()
	writeRequestError(w, httptest.NewRequest("GET", "/", nil), zap.New(core), shared)

	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if logs.Len() != 0 {
		t.Errorf("envelope errors should not be logged, got %d entries", logs.Len())
	}
	if shared.TraceID != "" {
		t.Errorf("shared envelope was modified: TraceID = %q", shared.TraceID)
	}
}
