package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/taskdash/aggregator"
	"github.com/CrowderSoup/taskdash/database"
	"github.com/CrowderSoup/taskdash/services"
)

// SessionHandler upgrades authenticated requests to websocket sessions. Each
// connection owns one aggregator whose renders go to that connection only.
type SessionHandler struct {
	hub      *services.Hub
	store    database.Store
	tasks    *services.TaskService
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewSessionHandler builds the websocket endpoint. checkOrigin may be nil to
// allow every origin.
func NewSessionHandler(hub *services.Hub, store database.Store, tasks *services.TaskService, checkOrigin func(*http.Request) bool, logger *log.Logger) *SessionHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &SessionHandler{
		hub:      hub,
		store:    store,
		tasks:    tasks,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		logger:   logger,
	}
}

func (h *SessionHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	uid, ok := UIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, services.ErrUnauthenticated)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	client := services.NewClient(h.hub, conn, uid)
	client.Handler = h.tasks.HandleMessage

	// the request context ends when this handler returns
	ctx, cancel := context.WithCancel(context.Background())
	agg, err := aggregator.New(aggregator.Options{
		UID:    uid,
		Store:  h.store,
		Logger: h.logger,
		Render: func(t aggregator.Table) {
			msg, err := services.NewMessage("tasks", t.Entries())
			if err != nil {
				h.logger.Printf("Error encoding task table for %s: %v", uid, err)
				return
			}
			if !client.Deliver(msg) {
				h.logger.Printf("Dropped task table for %s", uid)
			}
		},
	})
	if err != nil {
		cancel()
		conn.Close()
		h.logger.Printf("Error creating session for %s: %v", uid, err)
		return
	}

	h.hub.Register(client)
	h.logger.Printf("WebSocket client registered: %s", uid)

	go client.WritePump()
	go func() {
		client.ReadPump(ctx)
		agg.Stop()
		cancel()
		h.logger.Printf("Session closed: %s", uid)
	}()

	if err := agg.Start(ctx); err != nil {
		h.logger.Printf("Error starting session for %s: %v", uid, err)
		conn.Close()
	}
}
