package broadcast

import (
	"context"

	"github.com/example/workspace-realtime/modules/registry"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// BroadcastModule owns the connection registry and the fan-out router.
type BroadcastModule struct {
	registry *registry.Registry
	router   *Router
	logger   types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a BroadcastModule whose connections queue up to bufferSize frames.
func NewModule(bufferSize int, logger types.Logger) *BroadcastModule {
	reg := registry.New(bufferSize)
	return &BroadcastModule{
		registry: reg,
		router:   NewRouter(reg, logger),
		logger:   logger,
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start starts the module.
func (m *BroadcastModule) Start(_ context.Context) error {
	m.logger.Info("Broadcast module started")
	return nil
}

// Stop closes every remaining connection so their writers exit.
func (m *BroadcastModule) Stop(_ context.Context) error {
	count := m.registry.Count()
	m.registry.CloseAll()
	m.logger.Info("Broadcast module stopped", "connections", count)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	delivered, dropped := m.router.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.registry.Count(),
			"frames_delivered":  delivered,
			"frames_dropped":    dropped,
		},
	}
}

// Registry returns the connection registry.
func (m *BroadcastModule) Registry() *registry.Registry {
	return m.registry
}

// Router returns the fan-out router.
func (m *BroadcastModule) Router() *Router {
	return m.router
}
