package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shiftdeck/shiftdeck/pkg/contextkeys"
	"github.com/shiftdeck/shiftdeck/pkg/httputil"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// Auth authenticates requests via bearer session tokens and puts the
// resolved actor into the request context. Paths in skip are passed through
// unauthenticated.
type Auth struct {
	resolver *identity.Resolver
	log      *observability.Logger
	skip     map[string]struct{}
}

// NewAuth creates the authentication middleware
func NewAuth(resolver *identity.Resolver, log *observability.Logger, skipPaths ...string) *Auth {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return &Auth{resolver: resolver, log: log, skip: skip}
}

// Handler wraps next with bearer token authentication
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.skip[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		actor, err := a.resolver.ResolveToken(r.Context(), token)
		if err != nil {
			// Unknown, expired, revoked and deactivated all look the same.
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		ctx := identity.WithActor(r.Context(), actor)
		ctx = contextkeys.WithUserID(ctx, fmt.Sprintf("%d", actor.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
