package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chathub/internal/api"
	"chathub/internal/config"
	"chathub/internal/database"
	"chathub/internal/hub"
	"chathub/internal/router"
	"chathub/internal/websocket"
	pkgdatabase "chathub/pkg/database"
)

const rateLimitCleanupInterval = 5 * time.Minute

// Application coordinates all system components.
// Construction order: Database → Registry/Rooms → Hub → Router → WebSocket → API → HTTP
type Application struct {
	config        *config.Config
	dbManager     *database.Manager
	registry      *websocket.Registry
	rooms         *websocket.Rooms
	messageHub    *hub.Hub
	messageRouter *router.Router
	wsHandler     *websocket.Handler
	apiServer     *api.Server
	httpServer    *http.Server

	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewApplication wires every component. A nil config means defaults.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Database manager and schema
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.Driver = cfg.Database.Driver
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.ConnMaxLifetime = cfg.Database.Timeout
	dbConfig.ConnMaxIdleTime = cfg.Database.Timeout / 3

	if dir := filepath.Dir(cfg.Database.Path); dir != "." && !strings.HasPrefix(cfg.Database.Path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	if err := pkgdatabase.NewMigrationManager(dbManager.GetDB()).ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	if err := pkgdatabase.NewSchemaValidator(dbManager.GetDB()).Validate(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("database schema validation failed: %w", err)
	}

	// STEP 2: Connection tracking
	registry := websocket.NewRegistry()
	rooms := websocket.NewRooms()

	// STEP 3: Hub owns presence, typing and receipts
	messageHub := hub.NewHub(registry, rooms, dbManager, dbManager, hub.Config{
		QueueSize:           cfg.Hub.QueueSize,
		CollaboratorTimeout: cfg.Hub.CollaboratorTimeout,
	})

	// STEP 4: Router persists then hands messages to the hub
	messageRouter := router.NewRouter(dbManager, messageHub, cfg.Router.MessagesPerMinute)

	// STEP 5: WebSocket handler feeds connection events into the hub
	wsHandler := websocket.NewHandler(messageHub, websocket.HandlerConfig{
		PingInterval:  cfg.WebSocket.PingInterval,
		ReadTimeout:   cfg.WebSocket.ReadTimeout,
		WriteTimeout:  cfg.WebSocket.WriteTimeout,
		BufferSize:    cfg.WebSocket.BufferSize,
		AllowedOrigin: cfg.HTTP.AllowedOrigin,
	})

	// STEP 6: REST API with the websocket endpoint mounted
	apiServer := api.NewServer(api.ServerConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		Issuer:         cfg.Auth.Issuer,
		AllowedOrigins: []string{cfg.HTTP.AllowedOrigin},
		RequestTimeout: cfg.Hub.CollaboratorTimeout,
	}, dbManager, messageHub, messageRouter, wsHandler.HandleWebSocket)

	// STEP 7: HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:        cfg,
		dbManager:     dbManager,
		registry:      registry,
		rooms:         rooms,
		messageHub:    messageHub,
		messageRouter: messageRouter,
		wsHandler:     wsHandler,
		apiServer:     apiServer,
		httpServer:    httpServer,
	}, nil
}

// Start runs the hub, the rate-limit janitor and the HTTP server. It returns
// once the listener is bound.
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	log.Printf("Starting chathub on %s", app.httpServer.Addr)

	// Components stop through Stop, not through the caller's cancellation,
	// so the hub is still running to close client connections on shutdown.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	// STEP 1: Hub first so connections accepted below have somewhere to go
	if err := app.messageHub.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	// STEP 2: Bind the listener
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		cancel()
		_ = app.messageHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener
	app.cancel = cancel

	// STEP 3: Background workers
	app.wg.Add(2)
	go func() {
		defer app.wg.Done()
		app.messageRouter.RunCleanup(runCtx, rateLimitCleanupInterval)
	}()
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("chathub started successfully on %s", listener.Addr())
	return nil
}

// Stop shuts down in reverse order: HTTP → Hub → Database.
func (app *Application) Stop(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	log.Printf("Shutting down chathub")

	var errs []error

	// STEP 1: Stop accepting connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	// STEP 2: Stop the hub, which closes the hijacked websocket connections
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("message hub shutdown: %w", err))
	}
	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()

	// STEP 3: Close the database
	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	log.Printf("chathub shutdown complete")
	return errors.Join(errs...)
}

// GetAddr returns the bound address once started, the configured one before.
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
