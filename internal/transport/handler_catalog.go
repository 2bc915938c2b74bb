package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swarm-handbook/editor/internal/export"
	"github.com/swarm-handbook/editor/model"
)

type catalogListResponse struct {
	ProductIDs []string `json:"product_ids"`
}

// listCatalog returns every catalog id, or the ids starting with ?prefix=
// when the parameter is present.
func (h *handlers) listCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var ids []string
	if q.Has("prefix") {
		ids = h.catalog.Match(q.Get("prefix"))
	} else {
		ids = h.catalog.IDs()
	}
	WriteJSON(w, http.StatusOK, catalogListResponse{ProductIDs: ids})
}

func (h *handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(chi.URLParam(r, "productId"))
	if err != nil {
		writeRequestError(w, r, h.logger, err)
		return
	}
	doc, err := export.ToJSON(p)
	if err != nil {
		writeRequestError(w, r, h.logger, err)
		return
	}
	WriteDocument(w, http.StatusOK, doc)
}

func (h *handlers) previewProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(chi.URLParam(r, "productId"))
	if err != nil {
		writeRequestError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(export.ToMarkdown(p)))
}

func (h *handlers) getSchema(w http.ResponseWriter, r *http.Request) {
	if h.schema == nil {
		writeRequestError(w, r, h.logger, model.NewNotFoundError("no schema is configured"))
		return
	}
	WriteDocument(w, http.StatusOK, h.schema.Raw())
}
