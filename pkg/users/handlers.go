package users

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/httputil"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// Handlers provides HTTP handlers for user endpoints
type Handlers struct {
	service *Service
}

// NewHandlers creates user HTTP handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers user endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/users", h.Directory).Methods("GET")
	router.HandleFunc("/api/v1/users", h.CreateUser).Methods("POST")
	router.HandleFunc("/api/v1/users/{userID}", h.GetUser).Methods("GET")
	router.HandleFunc("/api/v1/users/{userID}", h.UpdateUser).Methods("PUT")
	router.HandleFunc("/api/v1/users/{userID}", h.DeactivateUser).Methods("DELETE")
	router.HandleFunc("/api/v1/users/{userID}/role", h.ChangeRole).Methods("PUT")
}

// CreateUserRequest is the body for creating a user
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// UpdateUserRequest is the body for updating a user's profile
type UpdateUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// ChangeRoleRequest is the body for reassigning a user's role
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handlers) Directory(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	users, err := h.service.Directory(r.Context(), actor)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list users")
		httputil.WriteInternalError(w, "failed to list users")
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"users": users})
}

func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CreateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	user := &identity.User{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     identity.Role(req.Role),
	}
	err := h.service.Create(r.Context(), actor, user)
	switch {
	case err == nil:
		httputil.WriteCreated(w, user)
	case errors.Is(err, authz.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrUsernameTaken):
		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
	default:
		httputil.WriteValidationError(w, err.Error())
	}
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	userID, err := httputil.PathID(r, "userID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	user, err := h.service.Get(r.Context(), actor, userID)
	switch {
	case err == nil:
		httputil.WriteSuccess(w, user)
	case errors.Is(err, ErrUserNotFound):
		httputil.WriteNotFound(w, ErrUserNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to get user")
		httputil.WriteInternalError(w, "failed to get user")
	}
}

func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	userID, err := httputil.PathID(r, "userID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	var req UpdateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	h.writeOutcome(w, r, h.service.UpdateProfile(r.Context(), actor, userID, req.Email, req.FullName))
}

func (h *Handlers) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	userID, err := httputil.PathID(r, "userID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	h.writeOutcome(w, r, h.service.Deactivate(r.Context(), actor, userID))
}

func (h *Handlers) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	userID, err := httputil.PathID(r, "userID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	var req ChangeRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	h.writeOutcome(w, r, h.service.ChangeRole(r.Context(), actor, userID, identity.Role(req.Role)))
}

func (h *Handlers) writeOutcome(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, authz.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrUserNotFound):
		httputil.WriteNotFound(w, ErrUserNotFound.Error())
	default:
		httputil.WriteValidationError(w, err.Error())
	}
}
