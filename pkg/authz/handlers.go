package authz

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shiftdeck/shiftdeck/pkg/httputil"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// Handlers provides HTTP handlers for permission endpoints
type Handlers struct {
	service *Service
	log     *observability.Logger
}

// NewHandlers creates permission HTTP handlers
func NewHandlers(service *Service, log *observability.Logger) *Handlers {
	return &Handlers{service: service, log: log}
}

// RegisterRoutes registers permission endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/permissions", h.ListPermissions).Methods("GET")
	router.HandleFunc("/api/v1/venues/{venueID}/users/{userID}/permissions", h.GetEffectivePermissions).Methods("GET")
	router.HandleFunc("/api/v1/venues/{venueID}/users/{userID}/permissions", h.UpdateVenuePermissions).Methods("PUT")
}

// ListPermissions returns the canonical permission enumeration
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms := AllPermissions()
	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		keys = append(keys, p.String())
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": keys})
}

// GetEffectivePermissions returns a user's effective permission set at a venue
func (h *Handlers) GetEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	venueID, err := httputil.PathID(r, "venueID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid venue ID")
		return
	}
	userID, err := httputil.PathID(r, "userID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	set, err := h.service.EffectivePermissions(r.Context(), actor, userID, venueID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to compute effective permissions")
		httputil.WriteInternalError(w, "failed to compute permissions")
		return
	}

	httputil.WriteSuccess(w, set)
}

// UpdateVenuePermissionsRequest is the body for the bulk override update
type UpdateVenuePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// UpdateVenuePermissions replaces a user's venue override set
func (h *Handlers) UpdateVenuePermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	venueID, err := httputil.PathID(r, "venueID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid venue ID")
		return
	}
	userID, err := httputil.PathID(r, "userID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	var req UpdateVenuePermissionsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if req.Permissions == nil {
		httputil.WriteValidationError(w, "permissions list is required")
		return
	}

	err = h.service.BulkUpdateVenuePermissions(r.Context(), actor, userID, venueID, req.Permissions)
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, ErrPermissionDenied):
		httputil.WriteForbidden(w, ErrPermissionDenied.Error())
	case errors.Is(err, ErrInvalidPermission):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, ErrUserNotFound):
		httputil.WriteNotFound(w, "user not found")
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to update venue permissions")
		httputil.WriteInternalError(w, "failed to update permissions")
	}
}
