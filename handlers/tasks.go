package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/taskdash/aggregator"
	"github.com/CrowderSoup/taskdash/database"
	"github.com/CrowderSoup/taskdash/services"
)

// snapshotTimeout bounds how long GET /api/tasks waits for the first
// aggregated table.
const snapshotTimeout = 10 * time.Second

// TaskHandler serves task reads and mutations over HTTP. Mutations reply
// with a status only; connected websocket sessions render the change.
type TaskHandler struct {
	store  database.Store
	tasks  *services.TaskService
	logger *log.Logger
}

func NewTaskHandler(store database.Store, tasks *services.TaskService, logger *log.Logger) *TaskHandler {
	return &TaskHandler{store: store, tasks: tasks, logger: logger}
}

func (h *TaskHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, ok := UIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, services.ErrUnauthenticated)
	}
	return uid, ok
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// List returns the caller's aggregated table of owned and shared tasks from
// a short-lived aggregator session.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.actor(w, r)
	if !ok {
		return
	}

	agg, err := aggregator.New(aggregator.Options{UID: uid, Store: h.store, Logger: h.logger})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()
	if err := agg.Start(ctx); err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer agg.Stop()

	select {
	case <-agg.Ready():
	case <-ctx.Done():
		h.logger.Printf("Task table for %s not ready: %v", uid, ctx.Err())
		http.Error(w, "Tasks unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   agg.Snapshot().Entries(),
	})
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req services.NewTask
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	task, err := h.tasks.Create(r.Context(), uid, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "data": task})
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	task, err := h.tasks.Get(r.Context(), uid, vars["owner"], vars["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": task})
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.actor(w, r)
	if !ok {
		return
	}
	var patch services.TaskPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}
	vars := mux.Vars(r)
	if err := h.tasks.Apply(r.Context(), uid, vars["owner"], vars["id"], patch); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := h.tasks.Delete(r.Context(), uid, vars["owner"], vars["id"]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}

func (h *TaskHandler) AddSubtask(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	vars := mux.Vars(r)
	id, err := h.tasks.AddSubtask(r.Context(), uid, vars["owner"], vars["id"], req.Title)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "success", "id": id})
}

func (h *TaskHandler) UpdateSubtask(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Completed *bool `json:"completed"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Completed == nil {
		http.Error(w, "completed is required", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	if err := h.tasks.ToggleSubtask(r.Context(), uid, vars["owner"], vars["id"], vars["sub"], *req.Completed); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}

func (h *TaskHandler) DeleteSubtask(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := h.tasks.DeleteSubtask(r.Context(), uid, vars["owner"], vars["id"], vars["sub"]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}

func (h *TaskHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := h.tasks.AddCollaborator(r.Context(), uid, vars["owner"], vars["id"], vars["uid"]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}

func (h *TaskHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := h.tasks.RemoveCollaborator(r.Context(), uid, vars["owner"], vars["id"], vars["uid"]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}
