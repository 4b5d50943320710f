package messaging

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shiftdeck/shiftdeck/pkg/httputil"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// Handlers provides HTTP handlers for messaging endpoints
type Handlers struct {
	service *Service
}

// NewHandlers creates messaging HTTP handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers messaging endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/conversations", h.ListConversations).Methods("GET")
	router.HandleFunc("/api/v1/conversations", h.StartConversation).Methods("POST")
	router.HandleFunc("/api/v1/conversations/{conversationID}", h.GetConversation).Methods("GET")
	router.HandleFunc("/api/v1/conversations/{conversationID}/messages", h.ListMessages).Methods("GET")
	router.HandleFunc("/api/v1/conversations/{conversationID}/messages", h.SendMessage).Methods("POST")
	router.HandleFunc("/api/v1/conversations/{conversationID}/mute", h.Mute).Methods("PUT")
	router.HandleFunc("/api/v1/messages/{messageID}", h.EditMessage).Methods("PUT")
	router.HandleFunc("/api/v1/messages/{messageID}", h.DeleteMessage).Methods("DELETE")
	router.HandleFunc("/api/v1/messages/{messageID}/read", h.MarkRead).Methods("POST")
	router.HandleFunc("/api/v1/messages/search", h.Search).Methods("GET")
}

// StartConversationRequest is the body for creating a conversation
type StartConversationRequest struct {
	ParticipantIDs []int64 `json:"participant_ids"`
}

// MessageBodyRequest is the body for sending or editing a message
type MessageBodyRequest struct {
	Body string `json:"body"`
}

// MuteRequest is the body for muting a conversation; a null until clears it
type MuteRequest struct {
	Until *time.Time `json:"until"`
}

func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	ids, err := h.service.ListConversations(r.Context(), actor)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list conversations")
		httputil.WriteInternalError(w, "failed to list conversations")
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"conversation_ids": ids})
}

func (h *Handlers) StartConversation(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req StartConversationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	conv, err := h.service.StartConversation(r.Context(), actor, req.ParticipantIDs)
	switch {
	case err == nil:
		httputil.WriteCreated(w, conv)
	case errors.Is(err, ErrNoParticipants):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, ErrNotInYourVenues):
		httputil.WriteForbidden(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to start conversation")
		httputil.WriteInternalError(w, "failed to start conversation")
	}
}

func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	conversationID, err := httputil.PathID(r, "conversationID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid conversation ID")
		return
	}

	conv, err := h.service.GetConversation(r.Context(), actor, conversationID)
	switch {
	case err == nil:
		httputil.WriteSuccess(w, conv)
	case errors.Is(err, ErrConversationNotFound):
		httputil.WriteNotFound(w, ErrConversationNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to get conversation")
		httputil.WriteInternalError(w, "failed to get conversation")
	}
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	conversationID, err := httputil.PathID(r, "conversationID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid conversation ID")
		return
	}
	afterID := int64(httputil.QueryInt(r, "after", 0))
	limit := httputil.QueryInt(r, "limit", 50)

	messages, err := h.service.ListMessages(r.Context(), actor, conversationID, afterID, limit)
	switch {
	case err == nil:
		if messages == nil {
			messages = []*Message{}
		}
		httputil.WriteSuccess(w, map[string]interface{}{"messages": messages})
	case errors.Is(err, ErrConversationNotFound):
		httputil.WriteNotFound(w, ErrConversationNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to list messages")
		httputil.WriteInternalError(w, "failed to list messages")
	}
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	conversationID, err := httputil.PathID(r, "conversationID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid conversation ID")
		return
	}

	var req MessageBodyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	msg, err := h.service.SendMessage(r.Context(), actor, conversationID, req.Body)
	switch {
	case err == nil:
		httputil.WriteCreated(w, msg)
	case errors.Is(err, ErrConversationNotFound):
		httputil.WriteNotFound(w, ErrConversationNotFound.Error())
	default:
		httputil.WriteValidationError(w, err.Error())
	}
}

func (h *Handlers) EditMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	messageID, err := httputil.PathID(r, "messageID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid message ID")
		return
	}

	var req MessageBodyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	msg, err := h.service.EditMessage(r.Context(), actor, messageID, req.Body)
	switch {
	case err == nil:
		httputil.WriteSuccess(w, msg)
	case errors.Is(err, ErrMessageNotFound):
		httputil.WriteNotFound(w, ErrMessageNotFound.Error())
	case errors.Is(err, ErrEditWindowExpired):
		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
	default:
		httputil.WriteValidationError(w, err.Error())
	}
}

func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	messageID, err := httputil.PathID(r, "messageID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid message ID")
		return
	}

	err = h.service.DeleteMessage(r.Context(), actor, messageID)
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, ErrMessageNotFound):
		httputil.WriteNotFound(w, ErrMessageNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to delete message")
		httputil.WriteInternalError(w, "failed to delete message")
	}
}

func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	messageID, err := httputil.PathID(r, "messageID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid message ID")
		return
	}

	err = h.service.MarkRead(r.Context(), actor, messageID)
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, ErrMessageNotFound):
		httputil.WriteNotFound(w, ErrMessageNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to mark message read")
		httputil.WriteInternalError(w, "failed to mark read")
	}
}

func (h *Handlers) Mute(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	conversationID, err := httputil.PathID(r, "conversationID")
	if err != nil {
		httputil.WriteValidationError(w, "invalid conversation ID")
		return
	}

	var req MuteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	err = h.service.Mute(r.Context(), actor, conversationID, req.Until)
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, ErrConversationNotFound):
		httputil.WriteNotFound(w, ErrConversationNotFound.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to mute conversation")
		httputil.WriteInternalError(w, "failed to mute conversation")
	}
}

func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	messages, err := h.service.Search(r.Context(), actor, r.URL.Query().Get("q"),
		httputil.QueryInt(r, "limit", 25))
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to search messages")
		httputil.WriteInternalError(w, "failed to search messages")
		return
	}
	if messages == nil {
		messages = []*Message{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"messages": messages})
}
