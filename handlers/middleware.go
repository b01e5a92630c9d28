package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/CrowderSoup/taskdash/services"
)

type contextKey string

const (
	uidContextKey   contextKey = "uid"
	emailContextKey contextKey = "email"
)

// UIDFromContext returns the signed-in user id set by AuthMiddleware.
func UIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(uidContextKey).(string)
	return uid, ok && uid != ""
}

type AuthMiddleware struct {
	authService *services.AuthService
	users       *services.UserService
	logger      *log.Logger
}

func NewAuthMiddleware(authService *services.AuthService, users *services.UserService, logger *log.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		users:       users,
		logger:      logger,
	}
}

// bearerToken reads the token from the Authorization header, or from the
// token query parameter for websocket upgrades where browsers cannot set
// headers.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := r.URL.Query().Get("token")
		return token, token != ""
	}
	authParts := strings.Split(authHeader, " ")
	if len(authParts) != 2 || authParts[0] != "Bearer" {
		return "", false
	}
	return authParts[1], true
}

func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			writeError(w, m.logger, services.ErrUnauthenticated)
			return
		}

		id, err := m.authService.VerifyJWT(tokenString)
		if err != nil {
			writeError(w, m.logger, err)
			return
		}

		// deactivated accounts keep valid tokens but lose access
		if u, err := m.users.Get(r.Context(), id.UID); err == nil && !u.Active() {
			writeError(w, m.logger, services.ErrForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), uidContextKey, id.UID)
		ctx = context.WithValue(ctx, emailContextKey, id.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows the request through only when the signed-in user holds
// one of roles. It must run after Auth.
func (m *AuthMiddleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := UIDFromContext(r.Context())
			if !ok {
				writeError(w, m.logger, services.ErrUnauthenticated)
				return
			}
			allowed, err := m.users.HasRole(r.Context(), uid, roles...)
			if err != nil {
				writeError(w, m.logger, err)
				return
			}
			if !allowed {
				writeError(w, m.logger, services.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
