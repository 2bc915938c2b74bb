package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/swarm-handbook/editor/internal/catalog"
	"github.com/swarm-handbook/editor/internal/dashboard"
	"github.com/swarm-handbook/editor/internal/observability"
	"github.com/swarm-handbook/editor/internal/schema"
	"github.com/swarm-handbook/editor/internal/session"
	"github.com/swarm-handbook/editor/model"
)

// uploadFormField is the multipart field carrying an uploaded product.
const uploadFormField = "file"

// maxWidgetBody bounds PUT /widgets bodies.
const maxWidgetBody = 1 << 20

type handlers struct {
	catalog   *catalog.Catalog
	schema    *schema.Schema
	sessions  *session.Manager
	metrics   *observability.Metrics
	logger    *zap.Logger
	maxUpload int64
}

// sessionState is the response body for every session endpoint that returns
// the editor state. Notifications are delivered once.
type sessionState struct {
	SessionID     string               `json:"session_id"`
	Product       *model.Product       `json:"product"`
	Widgets       map[string]any       `json:"widgets"`
	View          model.View           `json:"view"`
	Location      string               `json:"location"`
	Notifications []model.Notification `json:"notifications"`
	Loaded        *bool                `json:"loaded,omitempty"`
}

func stateOf(id string, c *dashboard.Controller) sessionState {
	notes := c.Notifications()
	if notes == nil {
		notes = []model.Notification{}
	}
	return sessionState{
		SessionID:     id,
		Product:       c.Product(),
		Widgets:       c.Widgets(),
		View:          c.View(),
		Location:      c.Location(),
		Notifications: notes,
	}
}

func sessionPath(id string) string {
	return "/ui/sessions/" + id
}

// createSession starts a session. The initial product comes from the
// product_id parameter or, failing that, the raw query used as a deep link
// (POST /ui/sessions?SW_MAGx_LR_1B).
func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var location string
	if q := r.URL.Query(); q.Has("product_id") {
		location = url.QueryEscape(q.Get("product_id"))
	} else {
		location = r.URL.RawQuery
	}
	if location != "" {
		location = "?" + location
	}

	var state sessionState
	id, err := h.sessions.Create(r.Context(), location, func(c *dashboard.Controller) error {
		state = stateOf("", c)
		return nil
	})
	if err != nil {
		writeRequestError(w, r, h.logger, err)
		return
	}
	state.SessionID = id
	w.Header().Set("Location", sessionPath(id))
	WriteJSON(w, http.StatusCreated, state)
}

// withSession runs fn against the session named in the URL and writes the
// resulting state.
func (h *handlers) withSession(w http.ResponseWriter, r *http.Request, fn func(c *dashboard.Controller) error) {
	id := chi.URLParam(r, "sessionId")
	r = withSessionID(r, id)

	var state sessionState
	err := h.sessions.With(r.Context(), id, func(c *dashboard.Controller) error {
		if err := fn(c); err != nil {
			return err
		}
		state = stateOf(id, c)
		return nil
	})
	if err != nil {
		writeRequestError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(*dashboard.Controller) error { return nil })
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	r = withSessionID(r, id)
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		writeRequestError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	r = withSessionID(r, id)

	var form model.FormDescriptor
	err := h.sessions.With(r.Context(), id, func(c *dashboard.Controller) error {
		form = c.Form(sessionPath(id))
		return nil
	})
	if err != nil {
		writeRequestError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, form)
}

// putWidgets stores widget values without refreshing. The body is a JSON
// object of field name to value.
func (h *handlers) putWidgets(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWidgetBody))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		writeRequestError(w, r, h.logger, bodyError(err, maxWidgetBody))
		return
	}
	if values == nil {
		writeRequestError(w, r, h.logger, model.NewBadRequestError("request body must be a JSON object"))
		return
	}

	h.withSession(w, r, func(c *dashboard.Controller) error {
		return c.SetWidgets(values)
	})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(c *dashboard.Controller) error {
		c.RefreshOutput(r.Context())
		return nil
	})
}

type loadRequest struct {
	ProductID string `json:"product_id"`
}

// load selects a catalog product. An unknown id leaves the session as it
// was and reports loaded:false.
func (h *handlers) load(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWidgetBody)).Decode(&req); err != nil {
		writeRequestError(w, r, h.logger, bodyError(err, maxWidgetBody))
		return
	}

	id := chi.URLParam(r, "sessionId")
	r = withSessionID(r, id)

	var (
		state  sessionState
		loaded bool
	)
	err := h.sessions.With(r.Context(), id, func(c *dashboard.Controller) error {
		loaded = c.LoadFromCatalog(r.Context(), req.ProductID)
		state = stateOf(id, c)
		return nil
	})
	if err != nil {
		writeRequestError(w, r, h.logger, err)
		return
	}
	state.Loaded = &loaded
	WriteJSON(w, http.StatusOK, state)
}

// upload loads a product from the request: either a raw JSON body or a
// multipart form with the document in the "file" field. A malformed
// document is a PARSE_ERROR and leaves the session unchanged.
func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	doc, err := h.readUpload(w, r)
	if err != nil {
		writeRequestError(w, r, h.logger, err)
		return
	}
	h.withSession(w, r, func(c *dashboard.Controller) error {
		return c.LoadFromUpload(r.Context(), doc)
	})
}

func (h *handlers) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		doc, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, bodyError(err, h.maxUpload)
		}
		return doc, nil
	}

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, bodyError(err, h.maxUpload)
	}
	defer r.MultipartForm.RemoveAll()

	f, _, err := r.FormFile(uploadFormField)
	if err != nil {
		return nil, model.NewBadRequestError(fmt.Sprintf("multipart upload has no %q file", uploadFormField))
	}
	defer f.Close()
	return io.ReadAll(f)
}

// download returns the JSON document of the last refresh as an attachment.
func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	r = withSessionID(r, id)

	var view model.View
	err := h.sessions.With(r.Context(), id, func(c *dashboard.Controller) error {
		view = c.View()
		return nil
	})
	if err != nil {
		writeRequestError(w, r, h.logger, err)
		return
	}

	h.metrics.RecordDownload()
	w.Header().Set("Content-Disposition", contentDisposition(view.Filename))
	WriteDocument(w, http.StatusOK, view.Document)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func contentDisposition(filename string) string {
	return `attachment; filename="` + quoteEscaper.Replace(filename) + `"`
}

// bodyError converts a request body read failure into an envelope.
func bodyError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return model.NewPayloadTooLargeError(limit)
	}
	return model.NewBadRequestError(fmt.Sprintf("invalid request body: %v", err))
}
