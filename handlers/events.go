package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/taskdash/database"
	"github.com/CrowderSoup/taskdash/services"
)

type EventHandler struct {
	events *services.EventService
	logger *log.Logger
}

func NewEventHandler(events *services.EventService, logger *log.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// List returns every event, or only those of ?user=.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		events []database.Event
		err    error
	)
	if user := r.URL.Query().Get("user"); user != "" {
		events, err = h.events.ListByUser(r.Context(), user)
	} else {
		events, err = h.events.List(r.Context())
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": events})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": ev})
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := UIDFromContext(r.Context())
	var req database.Event
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ev, err := h.events.Create(r.Context(), uid, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "data": ev})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, _ := UIDFromContext(r.Context())
	var req database.Event
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ev, err := h.events.Update(r.Context(), uid, mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": ev})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := UIDFromContext(r.Context())
	if err := h.events.Delete(r.Context(), uid, mux.Vars(r)["id"]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w)
}
