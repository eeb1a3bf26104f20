package api

import (
	"errors"
	"time"

	"github.com/example/workspace-realtime/events"
	"github.com/example/workspace-realtime/modules/notify"
	"github.com/example/workspace-realtime/modules/workspace"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	maxNotificationTitleLength = 200
	maxNotificationBodyLength  = 2000
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	// Health check
	app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	app.Use("/ws", m.upgradeMiddleware)
	app.Get("/ws", websocket.New(m.handleWebSocket))

	// REST API v1
	api := app.Group("/api/v1")

	api.Get("/workspaces", m.listWorkspaces)
	api.Get("/workspaces/:id/state", m.getWorkspaceState)
	// Collaborator hooks
	api.Post("/workspaces/:id/activity", m.serviceAuthMiddleware, m.recordActivity)
	api.Post("/users/:id/notifications", m.serviceAuthMiddleware, m.notifyUser)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	details := map[string]any{
		"module": "api",
	}
	if m.broadcast != nil {
		delivered, dropped := m.broadcast.Router().Stats()
		details["connected_clients"] = m.broadcast.Registry().Count()
		details["frames_delivered"] = delivered
		details["frames_dropped"] = dropped
	}
	return c.JSON(HealthResponse{
		Status:  "healthy",
		Details: details,
	})
}

// listWorkspaces handles GET /api/v1/workspaces.
func (m *APIModule) listWorkspaces(c *fiber.Ctx) error {
	summaries, err := m.workspaces.ListWorkspaces(c.UserContext())
	if err != nil {
		m.logger.Error("Failed to list workspaces", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list workspaces",
		})
	}
	return c.JSON(WorkspaceListResponse{Workspaces: summaries})
}

// getWorkspaceState handles GET /api/v1/workspaces/:id/state.
func (m *APIModule) getWorkspaceState(c *fiber.Ctx) error {
	workspaceID := c.Params("id")

	state, err := m.workspaces.GetState(c.UserContext(), workspaceID)
	if err != nil {
		if errors.Is(err, workspace.ErrUnknownRoom) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error:   "not_found",
				Message: "Workspace is not active",
			})
		}
		m.logger.Error("Failed to get workspace state", "workspaceID", workspaceID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "state_failed",
			Message: "Failed to get workspace state",
		})
	}
	return c.JSON(state)
}

// recordActivity handles POST /api/v1/workspaces/:id/activity.
func (m *APIModule) recordActivity(c *fiber.Ctx) error {
	workspaceID := c.Params("id")

	var req RecordActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	activity, err := m.workspaces.RecordActivity(c.UserContext(), workspaceID, workspace.ActivityRequest{
		Type:       req.Type,
		UserID:     req.UserID,
		UserName:   req.UserName,
		UserAvatar: req.UserAvatar,
		Data:       req.Data,
	})
	switch {
	case err == nil:
		return c.Status(fiber.StatusCreated).JSON(activity)
	case errors.Is(err, workspace.ErrUnknownRoom):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Workspace is not active",
		})
	case errors.Is(err, workspace.ErrInvalidActivityType), errors.Is(err, workspace.ErrInvalidPayload):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	default:
		m.logger.Error("Failed to record activity", "workspaceID", workspaceID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "record_failed",
			Message: "Failed to record activity",
		})
	}
}

// notifyUser handles POST /api/v1/users/:id/notifications.
func (m *APIModule) notifyUser(c *fiber.Ctx) error {
	userID := c.Params("id")

	var req NotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "Notification title is required",
		})
	}

	if len(req.Title) > maxNotificationTitleLength || len(req.Body) > maxNotificationBodyLength {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "Notification too long",
		})
	}

	event := events.NotificationRequestedEvent{
		NotificationID: uuid.New().String(),
		UserID:         userID,
		Title:          req.Title,
		Body:           req.Body,
		Link:           req.Link,
		Data:           req.Data,
		Timestamp:      time.Now(),
	}

	if err := m.publishNotification(event); err != nil {
		m.logger.Error("Failed to publish notification", "userID", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "notify_failed",
			Message: "Failed to publish notification",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(NotificationAcceptedResponse{
		ID:        event.NotificationID,
		UserID:    userID,
		Timestamp: event.Timestamp,
	})
}

// publishNotification hands event to the notify module through the
// EventBus, or directly when no bus is attached.
func (m *APIModule) publishNotification(event events.NotificationRequestedEvent) error {
	if m.eventBus != nil {
		return events.NotificationRequestedV1.Publish(m.eventBus, event, nil)
	}
	if m.notify == nil {
		return errors.New("no notification channel available")
	}
	m.notify.Deliver(notify.Notification{
		ID:        event.NotificationID,
		UserID:    event.UserID,
		Title:     event.Title,
		Body:      event.Body,
		Link:      event.Link,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	})
	return nil
}
