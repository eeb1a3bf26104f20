// Package notify manages personal notification channels, one per user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/workspace-realtime/events"
	"github.com/example/workspace-realtime/modules/broadcast"
	"github.com/example/workspace-realtime/modules/registry"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// ErrForeignChannel is returned when a connection subscribes to another user's channel.
var ErrForeignChannel = errors.New("personal channel belongs to another user")

// Deliverer sends an envelope to a set of connections.
type Deliverer interface {
	ToConnections(ids []string, env broadcast.Envelope) int
}

// Notification is the payload of notification:new.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Title     string         `json:"title"`
	Body      string         `json:"body,omitempty"`
	Link      string         `json:"link,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Module tracks which connections listen on each user's personal channel.
type Module struct {
	deliverer Deliverer
	logger    types.Logger

	mu       sync.RWMutex
	channels map[string]map[string]struct{} // userID -> connectionIDs
	byConn   map[string]string              // connectionID -> userID

	delivered atomic.Int64
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the notify module.
func NewModule(deliverer Deliverer, logger types.Logger) *Module {
	return &Module{
		deliverer: deliverer,
		logger:    logger,
		channels:  make(map[string]map[string]struct{}),
		byConn:    make(map[string]string),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "notify"
}

// RegisterEventConsumers subscribes to notification requests.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry,
		events.NotificationRequestedV1,
		m.handleNotificationRequested,
		m,
	); err != nil {
		return fmt.Errorf("failed to register NotificationRequested consumer: %w", err)
	}

	m.logger.Info("Registered notify event consumers")
	return nil
}

func (m *Module) handleNotificationRequested(_ context.Context, event events.NotificationRequestedEvent, _ *mono.Msg) error {
	sent := m.Deliver(Notification{
		ID:        event.NotificationID,
		UserID:    event.UserID,
		Title:     event.Title,
		Body:      event.Body,
		Link:      event.Link,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	})
	m.logger.Debug("Delivered notification", "userID", event.UserID, "notificationID", event.NotificationID, "connections", sent)
	return nil
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Notify module started")
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Notify module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	m.mu.RLock()
	users := len(m.channels)
	subscriptions := len(m.byConn)
	m.mu.RUnlock()

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"users":                   users,
			"subscriptions":           subscriptions,
			"notifications_delivered": m.delivered.Load(),
		},
	}
}

// Subscribe attaches conn to userID's channel. An empty userID means the
// connection's own user.
func (m *Module) Subscribe(conn *registry.Connection, userID string) error {
	if conn == nil || conn.UserID() == "" {
		return registry.ErrUnauthenticated
	}
	if userID == "" {
		userID = conn.UserID()
	}
	if userID != conn.UserID() {
		return fmt.Errorf("%w: %w", registry.ErrUnauthenticated, ErrForeignChannel)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.channels[userID]
	if !ok {
		conns = make(map[string]struct{})
		m.channels[userID] = conns
	}
	conns[conn.ID] = struct{}{}
	m.byConn[conn.ID] = userID
	return nil
}

// Unsubscribe detaches connectionID from its channel and reports whether
// it was subscribed.
func (m *Module) Unsubscribe(connectionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.byConn[connectionID]
	if !ok {
		return false
	}
	delete(m.byConn, connectionID)

	conns := m.channels[userID]
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(m.channels, userID)
	}
	return true
}

// Subscribers returns the connection ids listening on userID's channel.
func (m *Module) Subscribers(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.channels[userID]))
	for id := range m.channels[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Deliver pushes n to every connection on its user's channel and returns
// the number of connections reached.
func (m *Module) Deliver(n Notification) int {
	ids := m.Subscribers(n.UserID)
	if len(ids) == 0 {
		return 0
	}

	sent := m.deliverer.ToConnections(ids, broadcast.Envelope{
		Event: broadcast.EventNotificationNew,
		Data:  n,
	})
	m.delivered.Add(int64(sent))
	return sent
}
