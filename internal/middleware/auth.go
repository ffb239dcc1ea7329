package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/laundrypos/api/internal/auth"
	"github.com/rs/zerolog"
)

type contextKey string

const claimsKey contextKey = "claims"

// Authenticate requires a Bearer access token. The claims are stored in the
// request context and the request logger gains terminal_id and role.
func Authenticate(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, msg := bearerToken(r)
			if msg != "" {
				deny(w, http.StatusUnauthorized, msg)
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, token)
			if err != nil {
				deny(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("terminal_id", claims.TerminalID.String()).Str("role", claims.Role)
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", "invalid authorization format"
	}
	return token, ""
}

// RequireTerminal scopes a route to the terminal in the {tid} path value.
// A token only ever reaches its own terminal's carts, whatever its role.
func RequireTerminal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			deny(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		raw := r.PathValue("tid")
		if raw == "" {
			deny(w, http.StatusBadRequest, "missing terminal ID")
			return
		}
		tid, err := uuid.Parse(raw)
		if err != nil {
			deny(w, http.StatusBadRequest, "invalid terminal ID")
			return
		}
		if tid != claims.TerminalID {
			deny(w, http.StatusForbidden, "access denied for this terminal")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireRole admits tokens carrying one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			switch {
			case claims == nil:
				deny(w, http.StatusUnauthorized, "not authenticated")
			case !allowed[claims.Role]:
				deny(w, http.StatusForbidden, "insufficient permissions")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
