package quota

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/leadscope/directory/internal/api"
	"github.com/leadscope/directory/internal/auth"
)

// Handler exposes the quota service over HTTP. The user identity always
// comes from the access token claims; request bodies never name a user.
type Handler struct {
	svc      *Service
	resolver Resolver
	validate *validator.Validate
}

func NewHandler(svc *Service, resolver Resolver) *Handler {
	return &Handler{
		svc:      svc,
		resolver: resolver,
		validate: validator.New(),
	}
}

// GetQuota returns the caller's quota state, persisting a window reset as a
// side effect when the window has expired.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	status, err := h.svc.Status(r.Context(), claims.UserID)
	if err != nil {
		slog.Error("fetching quota status", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// Unlock admits a batch of contact IDs against the caller's quota.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result, err := h.svc.Unlock(r.Context(), claims.UserID, req.ContactIDs)
	if err != nil {
		slog.Error("unlocking contacts", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// UnlockedContacts returns the resolved contact records the caller has
// unlocked in the current window, in unlock order. This backs the cached
// view shown once the cap is reached.
func (h *Handler) UnlockedContacts(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	status, err := h.svc.Status(r.Context(), claims.UserID)
	if err != nil {
		slog.Error("fetching quota status", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	var ids []string
	if status.Meta != nil {
		ids = status.Meta.UnlockedIDs
	}

	contacts, err := h.resolver.ResolveByIDs(r.Context(), ids)
	if err != nil {
		slog.Error("resolving unlocked contacts", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, contacts)
}
