package main

import (
	"context"
	"log"
	"os"

	"github.com/example/workspace-realtime/modules/api"
	"github.com/example/workspace-realtime/modules/broadcast"
	"github.com/example/workspace-realtime/modules/notify"
	"github.com/example/workspace-realtime/modules/workspace"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Workspace Realtime - Presence + Activity over WebSocket ===")

	cfg := loadConfig()

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Create modules
	broadcastModule := broadcast.NewModule(cfg.SendBufferSize, logger)
	workspaceModule := workspace.NewModule(
		broadcastModule.Registry(),
		broadcastModule.Router(),
		logger,
		workspace.WithActivityLogSize(cfg.ActivityLogSize),
		workspace.WithMaxMessageLength(cfg.MaxChatLength),
	)
	notifyModule := notify.NewModule(broadcastModule.Router(), logger)
	apiModule := api.NewModule(cfg.APIConfig(), logger)

	// The registry, coordinator and notifier are shared in-process
	// and not exposed via ServiceContainer.
	apiModule.SetRealtime(broadcastModule, workspaceModule.Coordinator(), notifyModule)

	// Register modules with the framework.
	// - broadcast: connection registry + frame router
	// - workspace: rooms, presence, activity log (ServiceProviderModule + EventEmitterModule)
	// - notify: personal channels (EventConsumerModule)
	// - api: Fiber HTTP/WebSocket server, depends on workspace
	app.Register(broadcastModule)
	app.Register(workspaceModule)
	app.Register(notifyModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Configuration:")
	log.Printf("  - Port: %s", cfg.Port)
	log.Printf("  - Insecure auth: %t", cfg.InsecureAuth)
	log.Printf("  - Activity log size: %d", cfg.ActivityLogSize)
	log.Printf("  - Send buffer: %d frames", cfg.SendBufferSize)
	log.Printf("  - Ping/pong: %s / %s", cfg.PingInterval, cfg.PongTimeout)
	log.Printf("  - Inbound rate: %g/s (burst %d)", cfg.MessageRate, cfg.MessageBurst)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /health                             - Health check")
	log.Println("  GET    /api/v1/workspaces                  - List active workspaces")
	log.Println("  GET    /api/v1/workspaces/:id/state        - Presence and recent activity")
	log.Println("  POST   /api/v1/workspaces/:id/activity     - Inject repo/task activity")
	log.Println("  POST   /api/v1/users/:id/notifications     - Notify a user's personal channel")
	log.Println("  (POST hooks require Authorization: Bearer <collaborator service token>)")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", cfg.Port)
	if cfg.InsecureAuth {
		log.Printf("  Connect with: ws://localhost:%s/ws?userId=alice&userName=Alice", cfg.Port)
	} else {
		log.Printf("  Connect with: ws://localhost:%s/ws?token=<jwt>", cfg.Port)
	}
	log.Println("  Events: workspace:join, workspace:leave, workspace:getState, presence:status,")
	log.Println("          workspace:message, task:update, join-user-room, leave-user-room")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
