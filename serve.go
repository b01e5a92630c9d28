package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/CrowderSoup/taskdash/config"
	"github.com/CrowderSoup/taskdash/handlers"
	"github.com/CrowderSoup/taskdash/services"
)

var staticDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&staticDir, "static", "./", "Directory served for non-API paths")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, app, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	defer store.Close()

	// Initialize services
	var smtpConfig services.SMTPConfig
	if cfg.SMTPConfigured() {
		smtpConfig = services.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}
	}
	authService := services.NewAuthService(cfg.JWTSecret, cfg.SessionTTL, smtpConfig, logger)
	userService := services.NewUserService(store, logger)
	taskService := services.NewTaskService(store, userService, logger)
	eventService := services.NewEventService(store, logger)

	var verifier services.IdentityVerifier
	if app != nil {
		fv, err := services.NewFirebaseVerifier(ctx, app)
		if err != nil {
			return err
		}
		verifier = fv
	}

	// Initialize WebSocket hub
	hub := services.NewHub(logger)
	go hub.Run(ctx)
	eventService.OnChange(func(change services.EventChange) {
		msg, err := services.NewMessage("events", change)
		if err != nil {
			logger.Printf("Error encoding event change: %v", err)
			return
		}
		hub.Broadcast(msg, "")
	})

	router := handlers.Router{
		Middleware: handlers.NewAuthMiddleware(authService, userService, logger),
		Auth:       handlers.NewAuthHandler(authService, userService, verifier, logger),
		Tasks:      handlers.NewTaskHandler(store, taskService, logger),
		Users:      handlers.NewUserHandler(userService, logger),
		Events:     handlers.NewEventHandler(eventService, logger),
		Sessions:   handlers.NewSessionHandler(hub, store, taskService, checkOrigin(cfg.AllowedOrigins), logger),
		Health:     handlers.NewHealthHandler(store, cfg.StoreBackend, logger),
	}
	r := handlers.WithStatic(router.Build(), staticDir)

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Server starting on port %s (%s store)", cfg.Port, cfg.StoreBackend)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// checkOrigin mirrors the CORS origin list for websocket upgrades.
func checkOrigin(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return nil
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
