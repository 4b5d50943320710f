package venues

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/httputil"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// Handlers provides HTTP handlers for venue endpoints
type Handlers struct {
	service *Service
}

// NewHandlers creates venue HTTP handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers venue endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/venues", h.ListVenues).Methods("GET")
	router.HandleFunc("/api/v1/venues", h.CreateVenue).Methods("POST")
	router.HandleFunc("/api/v1/venues/{venueID}", h.GetVenue).Methods("GET")
	router.HandleFunc("/api/v1/venues/{venueID}", h.DeactivateVenue).Methods("DELETE")
	router.HandleFunc("/api/v1/venues/{venueID}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/api/v1/venues/{venueID}/members", h.AddMember).Methods("POST")
	router.HandleFunc("/api/v1/venues/{venueID}/members/{userID}", h.RemoveMember).Methods("DELETE")
}

// CreateVenueRequest is the body for venue creation
type CreateVenueRequest struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
}

// AddMemberRequest is the body for assigning a user to a venue
type AddMemberRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *Handlers) ListVenues(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	activeOnly := httputil.QueryBool(r, "active", true)
	venues, err := h.service.List(r.Context(), actor, activeOnly)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list venues")
		httputil.WriteInternalError(w, "failed to list venues")
		return
	}
	if venues == nil {
		venues = []*Venue{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"venues": venues})
}

func (h *Handlers) CreateVenue(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CreateVenueRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteValidationError(w, "venue name is required")
		return
	}

	venue := &Venue{Name: strings.TrimSpace(req.Name), Address: req.Address, Timezone: req.Timezone}
	err := h.service.Create(r.Context(), actor, venue)
	switch {
	case err == nil:
		httputil.WriteCreated(w, venue)
	case errors.Is(err, authz.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to create venue")
		httputil.WriteInternalError(w, "failed to create venue")
	}
}

func (h *Handlers) GetVenue(w http.ResponseWriter, r *http.Request) {
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

	venue, err := h.service.Get(r.Context(), actor, venueID)
	switch {
	case err == nil:
		httputil.WriteSuccess(w, venue)
	case errors.Is(err, ErrVenueNotFound):
		httputil.WriteNotFound(w, ErrVenueNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to get venue")
		httputil.WriteInternalError(w, "failed to get venue")
	}
}

func (h *Handlers) DeactivateVenue(w http.ResponseWriter, r *http.Request) {
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

	err = h.service.Deactivate(r.Context(), actor, venueID)
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, authz.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrVenueNotFound):
		httputil.WriteNotFound(w, ErrVenueNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to deactivate venue")
		httputil.WriteInternalError(w, "failed to deactivate venue")
	}
}

func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
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

	members, err := h.service.Members(r.Context(), actor, venueID)
	switch {
	case err == nil:
		if members == nil {
			members = []*Member{}
		}
		httputil.WriteSuccess(w, map[string]interface{}{"members": members})
	case errors.Is(err, ErrVenueNotFound):
		httputil.WriteNotFound(w, ErrVenueNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to list venue members")
		httputil.WriteInternalError(w, "failed to list members")
	}
}

func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
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

	var req AddMemberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if req.UserID <= 0 {
		httputil.WriteValidationError(w, "user_id is required")
		return
	}

	err = h.service.AddMember(r.Context(), actor, req.UserID, venueID)
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, authz.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrVenueNotFound):
		httputil.WriteNotFound(w, ErrVenueNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to add venue member")
		httputil.WriteInternalError(w, "failed to add member")
	}
}

func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
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

	err = h.service.RemoveMember(r.Context(), actor, userID, venueID)
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, authz.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrNotMember):
		httputil.WriteNotFound(w, ErrNotMember.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to remove venue member")
		httputil.WriteInternalError(w, "failed to remove member")
	}
}
