package timeoff

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/httputil"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
	"github.com/shiftdeck/shiftdeck/pkg/venues"
)

// Handlers provides HTTP handlers for time-off endpoints
type Handlers struct {
	service *Service
}

// NewHandlers creates time-off HTTP handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers time-off endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/timeoff", h.ListMine).Methods("GET")
	router.HandleFunc("/api/v1/timeoff", h.CreateRequest).Methods("POST")
	router.HandleFunc("/api/v1/timeoff/{requestID}", h.GetRequest).Methods("GET")
	router.HandleFunc("/api/v1/timeoff/{requestID}/decision", h.Decide).Methods("POST")
	router.HandleFunc("/api/v1/venues/{venueID}/timeoff", h.ListForVenue).Methods("GET")
}

// CreateRequestBody is the body for filing a request
type CreateRequestBody struct {
	VenueID   int64     `json:"venue_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Reason    string    `json:"reason"`
}

// DecisionBody is the body for approving or denying a request
type DecisionBody struct {
	Approve bool `json:"approve"`
}

func (h *Handlers) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	requests, err := h.service.ListMine(r.Context(), actor)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list time-off requests")
		httputil.WriteInternalError(w, "failed to list requests")
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"requests": requests})
}

func (h *Handlers) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CreateRequestBody
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	created, err := h.service.Request(r.Context(), actor, req.VenueID, req.StartDate, req.EndDate, req.Reason)
	switch {
	case err == nil:
		httputil.WriteCreated(w, created)
	case errors.Is(err, ErrInvalidDates):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, venues.ErrVenueNotFound):
		httputil.WriteNotFound(w, venues.ErrVenueNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to create time-off request")
		httputil.WriteInternalError(w, "failed to create request")
	}
}

func (h *Handlers) GetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	requestID, err := httputil.PathID(r, "requestID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid request ID")
		return
	}

	req, err := h.service.Get(r.Context(), actor, requestID)
	switch {
	case err == nil:
		httputil.WriteSuccess(w, req)
	case errors.Is(err, ErrRequestNotFound):
		httputil.WriteNotFound(w, ErrRequestNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to get time-off request")
		httputil.WriteInternalError(w, "failed to get request")
	}
}

func (h *Handlers) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	requestID, err := httputil.PathID(r, "requestID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid request ID")
		return
	}

	var body DecisionBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	err = h.service.Decide(r.Context(), actor, requestID, body.Approve)
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, ErrRequestNotFound):
		httputil.WriteNotFound(w, ErrRequestNotFound.Error())
	case errors.Is(err, authz.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrOwnRequest), errors.Is(err, ErrAlreadyDecided):
		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to decide time-off request")
		httputil.WriteInternalError(w, "failed to decide request")
	}
}

func (h *Handlers) ListForVenue(w http.ResponseWriter, r *http.Request) {
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

	requests, err := h.service.ListForVenue(r.Context(), actor, venueID,
		httputil.QueryBool(r, "pending", false))
	switch {
	case err == nil:
		httputil.WriteSuccess(w, map[string]interface{}{"requests": requests})
	case errors.Is(err, venues.ErrVenueNotFound):
		httputil.WriteNotFound(w, venues.ErrVenueNotFound.Error())
	case errors.Is(err, authz.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to list venue time-off requests")
		httputil.WriteInternalError(w, "failed to list requests")
	}
}
