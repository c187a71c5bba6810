package directory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/leadscope/directory/internal/api"
)

// Handler serves the read-only directory listings. Contact pages returned
// here are still locked: clients reveal them by submitting the page's IDs to
// the quota unlock endpoint.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListAgencies(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	agencies, total, err := h.svc.ListAgencies(r.Context(), params)
	if err != nil {
		slog.Error("listing agencies", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, agencies, total, params.Page, params.PageSize)
}

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	contacts, total, err := h.svc.ListContacts(r.Context(), params)
	if err != nil {
		slog.Error("listing contacts", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, contacts, total, params.Page, params.PageSize)
}

func (h *Handler) SearchContacts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		api.HandleError(w, api.NewBadRequestError("missing query parameter q"))
		return
	}

	contacts, err := h.svc.SearchContacts(r.Context(), query)
	if err != nil {
		slog.Error("searching contacts", "error", err, "query", query)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, contacts)
}

func parseListParams(r *http.Request) ListParams {
	params := DefaultListParams()
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}
	return params
}
