package channels

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/httputil"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
	"github.com/shiftdeck/shiftdeck/pkg/venues"
)

// Handlers provides HTTP handlers for channel endpoints
type Handlers struct {
	service *Service
}

// NewHandlers creates channel HTTP handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers channel endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/channels", h.ListChannels).Methods("GET")
	router.HandleFunc("/api/v1/channels", h.CreateChannel).Methods("POST")
	router.HandleFunc("/api/v1/channels/{channelID}", h.GetChannel).Methods("GET")
	router.HandleFunc("/api/v1/channels/{channelID}", h.ArchiveChannel).Methods("DELETE")
	router.HandleFunc("/api/v1/channels/{channelID}/venues", h.UpdateVenues).Methods("PUT")
	router.HandleFunc("/api/v1/channels/{channelID}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/api/v1/channels/{channelID}/members", h.AddMember).Methods("POST")
	router.HandleFunc("/api/v1/channels/{channelID}/members/{userID}", h.RemoveMember).Methods("DELETE")
	router.HandleFunc("/api/v1/channels/{channelID}/members/{userID}/role", h.UpdateMemberRole).Methods("PUT")
}

// CreateChannelRequest is the body for channel creation
type CreateChannelRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	VenueIDs    []int64 `json:"venue_ids"`
}

// AddMemberRequest is the body for adding a channel member
type AddMemberRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// UpdateMemberRoleRequest is the body for changing a member's channel role
type UpdateMemberRoleRequest struct {
	Role string `json:"role"`
}

// UpdateVenuesRequest is the body for replacing the channel's venue links
type UpdateVenuesRequest struct {
	VenueIDs []int64 `json:"venue_ids"`
}

func (h *Handlers) ListChannels(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	includeArchived := httputil.QueryBool(r, "include_archived", false)
	ids, err := h.service.AccessibleChannelIDs(r.Context(), actor, includeArchived)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list channels")
		httputil.WriteInternalError(w, "failed to list channels")
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"channel_ids": ids})
}

func (h *Handlers) CreateChannel(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CreateChannelRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	channel, err := h.service.Create(r.Context(), actor, req.Name, req.Description, req.VenueIDs)
	switch {
	case err == nil:
		httputil.WriteCreated(w, channel)
	case errors.Is(err, ErrNoVenues):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, authz.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, venues.ErrVenueNotFound):
		httputil.WriteNotFound(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to create channel")
		httputil.WriteInternalError(w, "failed to create channel")
	}
}

func (h *Handlers) GetChannel(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	channelID, err := httputil.PathID(r, "channelID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid channel ID")
		return
	}

	channel, err := h.service.Get(r.Context(), actor, channelID)
	switch {
	case err == nil:
		httputil.WriteSuccess(w, channel)
	case errors.Is(err, ErrChannelNotFound):
		httputil.WriteNotFound(w, ErrChannelNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to get channel")
		httputil.WriteInternalError(w, "failed to get channel")
	}
}

func (h *Handlers) ArchiveChannel(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	channelID, err := httputil.PathID(r, "channelID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid channel ID")
		return
	}

	h.writeOutcome(w, r, h.service.Archive(r.Context(), actor, channelID))
}

func (h *Handlers) UpdateVenues(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	channelID, err := httputil.PathID(r, "channelID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid channel ID")
		return
	}

	var req UpdateVenuesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	h.writeOutcome(w, r, h.service.UpdateVenues(r.Context(), actor, channelID, req.VenueIDs))
}

func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	channelID, err := httputil.PathID(r, "channelID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid channel ID")
		return
	}

	members, err := h.service.Members(r.Context(), actor, channelID)
	switch {
	case err == nil:
		if members == nil {
			members = []*Member{}
		}
		httputil.WriteSuccess(w, map[string]interface{}{"members": members})
	case errors.Is(err, ErrChannelNotFound):
		httputil.WriteNotFound(w, ErrChannelNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to list channel members")
		httputil.WriteInternalError(w, "failed to list members")
	}
}

func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	channelID, err := httputil.PathID(r, "channelID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid channel ID")
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

	h.writeOutcome(w, r, h.service.AddMember(r.Context(), actor, channelID, req.UserID, MemberRole(req.Role)))
}

func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	channelID, err := httputil.PathID(r, "channelID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid channel ID")
		return
	}
	userID, err := httputil.PathID(r, "userID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	h.writeOutcome(w, r, h.service.RemoveMember(r.Context(), actor, channelID, userID))
}

func (h *Handlers) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	channelID, err := httputil.PathID(r, "channelID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid channel ID")
		return
	}
	userID, err := httputil.PathID(r, "userID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	var req UpdateMemberRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	h.writeOutcome(w, r, h.service.UpdateMemberRole(r.Context(), actor, channelID, userID, MemberRole(req.Role)))
}

// writeOutcome maps the shared error taxonomy of channel mutations onto HTTP
func (h *Handlers) writeOutcome(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, ErrChannelNotFound):
		httputil.WriteNotFound(w, ErrChannelNotFound.Error())
	case errors.Is(err, venues.ErrVenueNotFound):
		httputil.WriteNotFound(w, venues.ErrVenueNotFound.Error())
	case errors.Is(err, ErrNotChannelMember):
		httputil.WriteNotFound(w, ErrNotChannelMember.Error())
	case errors.Is(err, authz.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrLastCreator), errors.Is(err, ErrNoVenues),
		errors.Is(err, ErrMemberNotEligible), errors.Is(err, ErrAlreadyMember):
		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("channel operation failed")
		httputil.WriteInternalError(w, "operation failed")
	}
}
