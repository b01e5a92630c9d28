package handlers

import (
	"fmt"
	"log"
	"net/http"
	"net/url"

	"github.com/CrowderSoup/taskdash/services"
)

// AuthHandler handles authentication-related endpoints
type AuthHandler struct {
	authService *services.AuthService
	users       *services.UserService
	verifier    services.IdentityVerifier
	logger      *log.Logger
}

// NewAuthHandler builds the auth endpoints. verifier may be nil when Google
// sign-in is not configured.
func NewAuthHandler(authService *services.AuthService, users *services.UserService, verifier services.IdentityVerifier, logger *log.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		users:       users,
		verifier:    verifier,
		logger:      logger,
	}
}

// Login handles the login request (sending a magic link)
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	baseURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	magicLink, err := h.authService.GenerateMagicLink(req.Email, baseURL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"message":   "Magic link has been sent",
		"magicLink": magicLink, // For development only
	})
}

// HandleMagicLink processes a magic link token and redirects to the frontend
func (h *AuthHandler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusBadRequest)
		return
	}

	id, err := h.authService.VerifyMagicLinkToken(token)
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusBadRequest)
		return
	}

	jwtToken, err := h.signIn(r, id)
	if err != nil {
		h.logger.Printf("Error signing in %s: %v", id.Email, err)
		http.Error(w, "Authentication error", http.StatusInternalServerError)
		return
	}

	q := url.Values{"token": {jwtToken}, "email": {id.Email}}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusFound)
}

// FirebaseLogin exchanges a Google sign-in ID token for a session token.
func (h *AuthHandler) FirebaseLogin(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		http.Error(w, "Google sign-in is not configured", http.StatusNotImplemented)
		return
	}
	var req struct {
		IDToken string `json:"idToken"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id, err := h.verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	jwtToken, err := h.signIn(r, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"token":  jwtToken,
		"uid":    id.UID,
	})
}

// signIn records the login in the user directory and issues a session token.
func (h *AuthHandler) signIn(r *http.Request, id services.Identity) (string, error) {
	u, err := h.users.HandleLogin(r.Context(), id)
	if err != nil {
		return "", err
	}
	if !u.Active() {
		return "", services.ErrForbidden
	}
	return h.authService.CreateJWT(id)
}

// Logout records the sign-out. The client discards its token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	uid, ok := UIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, services.ErrUnauthenticated)
		return
	}
	if err := h.users.HandleLogout(r.Context(), uid); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}

// VerifyToken checks if a JWT token is valid
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	tokenString, ok := bearerToken(r)
	if !ok {
		http.Error(w, "Missing authorization header", http.StatusUnauthorized)
		return
	}

	id, err := h.authService.VerifyJWT(tokenString)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"uid":    id.UID,
		"email":  id.Email,
		"status": "valid",
	})
}
