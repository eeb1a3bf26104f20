// Package api serves the WebSocket endpoint and the REST collaborator hooks.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/workspace-realtime/events"
	"github.com/example/workspace-realtime/modules/broadcast"
	"github.com/example/workspace-realtime/modules/notify"
	"github.com/example/workspace-realtime/modules/workspace"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Config holds the HTTP and WebSocket settings.
type Config struct {
	Port            string
	AllowedOrigins  string
	Auth            AuthConfig
	PingInterval    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64
	Limits          Limits
}

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	config     Config
	app        *fiber.App
	auth       *Authenticator
	workspaces workspace.WorkspacePort
	broadcast  *broadcast.BroadcastModule
	notify     *notify.Module
	dispatcher *Dispatcher
	eventBus   mono.EventBus
	logger     types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.EventBusAwareModule   = (*APIModule)(nil)
	_ mono.EventEmitterModule    = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule(config Config, logger types.Logger) *APIModule {
	if config.Port == "" {
		config.Port = "3000"
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 25 * time.Second
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = 60 * time.Second
	}
	return &APIModule{
		config: config,
		auth:   NewAuthenticator(config.Auth),
		logger: logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"workspace"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "workspace":
		m.workspaces = workspace.NewWorkspaceAdapter(container)
	}
}

// SetEventBus receives the EventBus from the framework.
func (m *APIModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *APIModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.NotificationRequestedV1.ToBase(),
	}
}

// SetRealtime wires the in-process realtime components (called from main.go).
func (m *APIModule) SetRealtime(bm *broadcast.BroadcastModule, coordinator *workspace.Coordinator, notifier *notify.Module) {
	m.broadcast = bm
	m.notify = notifier
	m.dispatcher = NewDispatcher(coordinator, notifier, bm.Router(), m.config.Limits, m.logger)
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.workspaces == nil {
		return fmt.Errorf("workspace adapter dependency not set")
	}
	if m.dispatcher == nil {
		return fmt.Errorf("realtime components not set")
	}
	if m.config.Auth.SecretKey == "" && !m.config.Auth.Insecure {
		return fmt.Errorf("JWT secret is required unless insecure auth is enabled")
	}

	m.app = m.newApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.config.Port); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "port", m.config.Port, "insecureAuth", m.config.Auth.Insecure)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{
		"port": m.config.Port,
	}
	if m.broadcast != nil {
		details["connected_clients"] = m.broadcast.Registry().Count()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// newApp builds the Fiber app with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Workspace Realtime",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Get("Upgrade") == "websocket"
		},
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))

	allowedOrigins := m.config.AllowedOrigins
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes(app)
	return app
}

// errorHandler handles errors globally.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
