package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/taskdash/database"
	"github.com/CrowderSoup/taskdash/services"
)

type UserHandler struct {
	users  *services.UserService
	logger *log.Logger
}

func NewUserHandler(users *services.UserService, logger *log.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// publicUser is what other signed-in users may see of a directory entry.
type publicUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoURL,omitempty"`
	Role     string `json:"role"`
	Active   bool   `json:"isAccountActive"`
}

func toPublic(users []database.UserRecord) []publicUser {
	out := make([]publicUser, 0, len(users))
	for _, u := range users {
		out = append(out, publicUser{
			ID:       u.ID,
			Name:     u.Name,
			Email:    u.Email,
			PhotoURL: u.PhotoURL,
			Role:     u.Role,
			Active:   u.Active(),
		})
	}
	return out
}

// List returns the directory, optionally filtered by ?role= and ?active=true.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := h.users.List(r.Context(), services.ListFilter{
		Role:       q.Get("role"),
		ActiveOnly: q.Get("active") == "true",
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": toPublic(users)})
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": toPublic(users)})
}

// Recent lists the newest accounts, ?limit= of them (default 10).
func (h *UserHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	users, err := h.users.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": toPublic(users)})
}

// Me returns the caller's own directory record.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, ok := UIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, services.ErrUnauthenticated)
		return
	}
	u, err := h.users.Get(r.Context(), uid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": u})
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := UIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, services.ErrUnauthenticated)
		return
	}
	var req services.ProfileUpdate
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.UpdateProfile(r.Context(), uid, req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}

func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	uid := mux.Vars(r)["uid"]
	if err := h.users.UpdateRole(r.Context(), uid, req.Role); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}

func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Active == nil {
		http.Error(w, "active is required", http.StatusBadRequest)
		return
	}
	target := mux.Vars(r)["uid"]
	if caller, _ := UIDFromContext(r.Context()); caller == target && !*req.Active {
		http.Error(w, "You cannot deactivate your own account", http.StatusBadRequest)
		return
	}
	if err := h.users.SetActive(r.Context(), target, *req.Active); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["uid"]
	if caller, _ := UIDFromContext(r.Context()); caller == target {
		http.Error(w, "You cannot delete your own account", http.StatusBadRequest)
		return
	}
	if err := h.users.Delete(r.Context(), target); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}

func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.RoleStatistics(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": stats})
}
