package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/CrowderSoup/taskdash/database"
)

type HealthHandler struct {
	store   database.Store
	backend string
	started time.Time
	logger  *log.Logger
}

func NewHealthHandler(store database.Store, backend string, logger *log.Logger) *HealthHandler {
	return &HealthHandler{store: store, backend: backend, started: time.Now(), logger: logger}
}

// Health reports whether the record store answers a read.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if _, err := h.store.Read(ctx, database.UsersRoot); err != nil {
		h.logger.Printf("Health check read failed: %v", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status":  status,
		"backend": h.backend,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}
