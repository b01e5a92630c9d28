package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/taskdash/database"
)

// Router groups the handlers served under /api.
type Router struct {
	Middleware *AuthMiddleware
	Auth       *AuthHandler
	Tasks      *TaskHandler
	Users      *UserHandler
	Events     *EventHandler
	Sessions   *SessionHandler
	Health     *HealthHandler
}

func (rt Router) Build() *mux.Router {
	r := mux.NewRouter()

	// Public routes
	r.HandleFunc("/api/health", rt.Health.Health).Methods("GET")
	r.HandleFunc("/api/auth/login", rt.Auth.Login).Methods("POST")
	r.HandleFunc("/api/auth/magic-link", rt.Auth.HandleMagicLink).Methods("GET")
	r.HandleFunc("/api/auth/firebase", rt.Auth.FirebaseLogin).Methods("POST")
	r.HandleFunc("/api/auth/verify", rt.Auth.VerifyToken).Methods("GET")

	// Protected routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(rt.Middleware.Auth)

	api.HandleFunc("/auth/logout", rt.Auth.Logout).Methods("POST")

	api.HandleFunc("/tasks", rt.Tasks.List).Methods("GET")
	api.HandleFunc("/tasks", rt.Tasks.Create).Methods("POST")
	api.HandleFunc("/tasks/{owner}/{id}", rt.Tasks.Get).Methods("GET")
	api.HandleFunc("/tasks/{owner}/{id}", rt.Tasks.Update).Methods("PATCH")
	api.HandleFunc("/tasks/{owner}/{id}", rt.Tasks.Delete).Methods("DELETE")
	api.HandleFunc("/tasks/{owner}/{id}/subtasks", rt.Tasks.AddSubtask).Methods("POST")
	api.HandleFunc("/tasks/{owner}/{id}/subtasks/{sub}", rt.Tasks.UpdateSubtask).Methods("PATCH")
	api.HandleFunc("/tasks/{owner}/{id}/subtasks/{sub}", rt.Tasks.DeleteSubtask).Methods("DELETE")
	api.HandleFunc("/tasks/{owner}/{id}/collaborators/{uid}", rt.Tasks.AddCollaborator).Methods("PUT")
	api.HandleFunc("/tasks/{owner}/{id}/collaborators/{uid}", rt.Tasks.RemoveCollaborator).Methods("DELETE")

	api.HandleFunc("/users", rt.Users.List).Methods("GET")
	api.HandleFunc("/users/search", rt.Users.Search).Methods("GET")
	api.HandleFunc("/users/recent", rt.Users.Recent).Methods("GET")
	api.HandleFunc("/users/me", rt.Users.Me).Methods("GET")
	api.HandleFunc("/users/me", rt.Users.UpdateMe).Methods("PATCH")

	admin := api.PathPrefix("/users").Subrouter()
	admin.Use(rt.Middleware.RequireRole(database.RoleAdministrator))
	admin.HandleFunc("/stats", rt.Users.Stats).Methods("GET")
	admin.HandleFunc("/{uid}/role", rt.Users.UpdateRole).Methods("PATCH")
	admin.HandleFunc("/{uid}/active", rt.Users.SetActive).Methods("PATCH")
	admin.HandleFunc("/{uid}", rt.Users.Delete).Methods("DELETE")

	api.HandleFunc("/events", rt.Events.List).Methods("GET")
	api.HandleFunc("/events", rt.Events.Create).Methods("POST")
	api.HandleFunc("/events/{id}", rt.Events.Get).Methods("GET")
	api.HandleFunc("/events/{id}", rt.Events.Update).Methods("PUT")
	api.HandleFunc("/events/{id}", rt.Events.Delete).Methods("DELETE")

	// WebSocket route for real-time updates
	api.HandleFunc("/ws", rt.Sessions.HandleWebSocket)

	return r
}

// WithStatic serves the front end from dir for every path not under /api.
func WithStatic(r *mux.Router, dir string) *mux.Router {
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))
	return r
}
