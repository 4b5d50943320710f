package sso

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/httputil"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

const stateCookieName = "sso_state"

// Handlers provides the SSO login endpoints. These routes are served
// unauthenticated.
type Handlers struct {
	provider    Provider
	provisioner *Provisioner
	tokens      *identity.TokenManager
	tokenTTL    time.Duration
	auditLogger audit.Logger
}

// NewHandlers creates SSO HTTP handlers
func NewHandlers(provider Provider, provisioner *Provisioner, tokens *identity.TokenManager, tokenTTL time.Duration, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handlers{
		provider:    provider,
		provisioner: provisioner,
		tokens:      tokens,
		tokenTTL:    tokenTTL,
		auditLogger: auditLogger,
	}
}

// RegisterRoutes registers SSO endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/auth/sso/login", h.Login).Methods("GET")
	router.HandleFunc("/api/v1/auth/sso/callback", h.Callback).Methods("GET")
}

// Login starts the authorization code flow
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to generate SSO state")
		httputil.WriteInternalError(w, "failed to start sign-in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/v1/auth/sso",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// TokenResponse is returned after a successful sign-in
type TokenResponse struct {
	Token     string         `json:"token"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	User      *identity.User `json:"user"`
}

// Callback finishes the authorization code flow and issues a session token
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.FromContext(ctx)

	if err := h.checkState(r); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteValidationError(w, "missing authorization code")
		return
	}

	ext, err := h.provider.Exchange(ctx, code)
	if err != nil {
		log.WithError(err).Warn("SSO code exchange failed")
		h.recordLogin(r, nil, err)
		httputil.WriteUnauthorized(w, "sign-in failed")
		return
	}

	user, err := h.provisioner.Resolve(ctx, ext)
	if err != nil {
		h.recordLogin(r, nil, err)
		if errors.Is(err, ErrSignInNotAllowed) {
			httputil.WriteForbidden(w, ErrSignInNotAllowed.Error())
			return
		}
		log.WithError(err).Error("failed to resolve SSO identity")
		httputil.WriteInternalError(w, "sign-in failed")
		return
	}

	record, token, err := h.tokens.CreateToken(ctx, user.ID, h.tokenTTL)
	if err != nil {
		log.WithError(err).Error("failed to issue session token")
		httputil.WriteInternalError(w, "sign-in failed")
		return
	}
	h.recordLogin(r, user, nil)

	httputil.WriteSuccess(w, TokenResponse{
		Token:     token,
		ExpiresAt: record.ExpiresAt,
		User:      user,
	})
}

func (h *Handlers) checkState(r *http.Request) error {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" {
		return ErrStateMismatch
	}
	if r.URL.Query().Get("state") != cookie.Value {
		return ErrStateMismatch
	}
	return nil
}

func (h *Handlers) recordLogin(r *http.Request, user *identity.User, loginErr error) {
	ctx := r.Context()
	if loginErr != nil {
		event := audit.NewEvent(ctx, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure)
		event.ErrorMessage = loginErr.Error()
		_ = h.auditLogger.Record(ctx, event)
		return
	}
	event := audit.NewEvent(ctx, audit.EventTypeAuthLogin, audit.EventStatusSuccess)
	event.ActorID = &user.ID
	event.Username = user.Username
	event.ResourceType = audit.ResourceTypeToken
	event.ResourceID = fmt.Sprintf("user:%d", user.ID)
	_ = h.auditLogger.Record(ctx, event)
}

func newState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
