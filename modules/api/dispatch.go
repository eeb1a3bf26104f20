package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/workspace-realtime/modules/broadcast"
	"github.com/example/workspace-realtime/modules/notify"
	"github.com/example/workspace-realtime/modules/registry"
	"github.com/example/workspace-realtime/modules/workspace"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/time/rate"
)

// Inbound client event names.
const (
	EventWorkspaceJoin     = "workspace:join"
	EventWorkspaceGetState = "workspace:getState"
	EventWorkspaceLeave    = "workspace:leave"
	EventPresenceStatus    = "presence:status"
	EventWorkspaceMessage  = "workspace:message"
	EventTaskUpdate        = "task:update"
	EventJoinUserRoom      = "join-user-room"
	EventLeaveUserRoom     = "leave-user-room"
)

// Wire error codes.
const (
	CodeUnauthenticated     = "unauthenticated"
	CodeIdentityMismatch    = "identity_mismatch"
	CodeDuplicateConnection = "duplicate_connection"
	CodeUnknownRoom         = "unknown_room"
	CodeNotJoined           = "not_joined"
	CodeInvalidPayload      = "invalid_payload"
	CodeInvalidStatus       = "invalid_status"
	CodeInvalidActivityType = "invalid_activity_type"
	CodeRateLimited         = "rate_limited"
	CodeUnknownEvent        = "unknown_event"
	CodeInternal            = "internal"
)

var (
	errRateLimited  = errors.New("too many messages")
	errUnknownEvent = errors.New("unknown event")
)

// InboundEvent is a frame received from a client.
type InboundEvent struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// userRoomRequest is the join-user-room payload in object form.
type userRoomRequest struct {
	UserID string `json:"userId"`
}

// Limits bounds inbound traffic per connection.
type Limits struct {
	MessageRate  float64
	MessageBurst int
}

// Session is the dispatch state of one live connection.
type Session struct {
	Conn    *registry.Connection
	limiter *rate.Limiter
}

// Dispatcher decodes inbound frames and routes them to the coordinator.
// Replies go to the originating connection only.
type Dispatcher struct {
	coordinator *workspace.Coordinator
	notify      *notify.Module
	router      *broadcast.Router
	limits      Limits
	logger      types.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(coordinator *workspace.Coordinator, notifier *notify.Module, router *broadcast.Router, limits Limits, logger types.Logger) *Dispatcher {
	return &Dispatcher{
		coordinator: coordinator,
		notify:      notifier,
		router:      router,
		limits:      limits,
		logger:      logger,
	}
}

// NewSession creates the dispatch state for conn.
func (d *Dispatcher) NewSession(conn *registry.Connection) *Session {
	limit := rate.Inf
	if d.limits.MessageRate > 0 {
		limit = rate.Limit(d.limits.MessageRate)
	}
	burst := d.limits.MessageBurst
	if burst <= 0 {
		burst = 1
	}
	return &Session{Conn: conn, limiter: rate.NewLimiter(limit, burst)}
}

// Close removes the session from every room and personal channel and
// releases its registry binding.
func (d *Dispatcher) Close(s *Session) {
	if d.notify != nil {
		d.notify.Unsubscribe(s.Conn.ID)
	}
	d.coordinator.HandleDisconnect(s.Conn.ID)
}

// Dispatch handles one inbound frame.
func (d *Dispatcher) Dispatch(s *Session, raw []byte) {
	var in InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
		d.reply(s, InboundEvent{}, nil, fmt.Errorf("%w: malformed frame", workspace.ErrInvalidPayload))
		return
	}
	if !s.limiter.Allow() {
		d.reply(s, in, nil, errRateLimited)
		return
	}

	data, err := d.route(s, in)
	d.reply(s, in, data, err)
}

func (d *Dispatcher) route(s *Session, in InboundEvent) (any, error) {
	conn := s.Conn

	switch in.Event {
	case EventWorkspaceJoin:
		var req workspace.JoinRequest
		if err := decode(in.Data, &req); err != nil {
			return nil, err
		}
		return d.coordinator.HandleJoin(conn, req)

	case EventWorkspaceGetState:
		var req workspace.StateRequest
		if err := decode(in.Data, &req); err != nil {
			return nil, err
		}
		return d.coordinator.HandleGetState(conn, req)

	case EventWorkspaceLeave:
		var req workspace.LeaveRequest
		if err := decode(in.Data, &req); err != nil {
			return nil, err
		}
		return nil, d.coordinator.HandleLeave(conn, req)

	case EventPresenceStatus:
		var req workspace.StatusRequest
		if err := decode(in.Data, &req); err != nil {
			return nil, err
		}
		return nil, d.coordinator.HandleStatus(conn, req)

	case EventWorkspaceMessage:
		var req workspace.MessageRequest
		if err := decode(in.Data, &req); err != nil {
			return nil, err
		}
		return d.coordinator.HandleMessage(conn, req)

	case EventTaskUpdate:
		var req workspace.TaskUpdateRequest
		if err := decode(in.Data, &req); err != nil {
			return nil, err
		}
		return d.coordinator.HandleTaskUpdate(conn, req)

	case EventJoinUserRoom:
		if d.notify == nil {
			return nil, errUnknownEvent
		}
		userID, err := decodeUserID(in.Data)
		if err != nil {
			return nil, err
		}
		return nil, d.notify.Subscribe(conn, userID)

	case EventLeaveUserRoom:
		if d.notify == nil {
			return nil, errUnknownEvent
		}
		d.notify.Unsubscribe(conn.ID)
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownEvent, in.Event)
	}
}

// reply acknowledges in. Failures without an ackId are reported as an
// error frame; successful requests without an ackId get no reply, except
// getState which always answers.
func (d *Dispatcher) reply(s *Session, in InboundEvent, data any, err error) {
	var env broadcast.Envelope
	switch {
	case err != nil:
		code, message := errorBody(err)
		env = broadcast.Envelope{
			Event: broadcast.EventError,
			AckID: in.AckID,
			Error: &broadcast.ErrorBody{Code: code, Message: message},
		}
		if in.AckID != "" {
			env.Event = broadcast.EventAck
		}
		if code == CodeInternal {
			d.logger.Error("Inbound event failed", "connectionID", s.Conn.ID, "event", in.Event, "error", err)
		} else {
			d.logger.Debug("Inbound event rejected", "connectionID", s.Conn.ID, "event", in.Event, "code", code)
		}
	case in.AckID != "" || in.Event == EventWorkspaceGetState:
		env = broadcast.Envelope{Event: broadcast.EventAck, AckID: in.AckID, Data: data}
	default:
		return
	}

	if sendErr := d.router.Send(s.Conn, env); sendErr != nil {
		d.logger.Warn("Failed to send reply", "connectionID", s.Conn.ID, "event", in.Event, "error", sendErr)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: data is required", workspace.ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", workspace.ErrInvalidPayload, err)
	}
	return nil
}

// decodeUserID accepts a bare user id string or {"userId": ...}. Absent
// data means the connection's own user.
func decodeUserID(data json.RawMessage) (string, error) {
	if len(data) == 0 || string(data) == "null" {
		return "", nil
	}
	var userID string
	if err := json.Unmarshal(data, &userID); err == nil {
		return userID, nil
	}
	var req userRoomRequest
	if err := decode(data, &req); err != nil {
		return "", err
	}
	return req.UserID, nil
}

// errorBody maps an error to its wire code and client-facing message.
func errorBody(err error) (string, string) {
	switch {
	case errors.Is(err, workspace.ErrIdentityMismatch), errors.Is(err, notify.ErrForeignChannel):
		return CodeIdentityMismatch, err.Error()
	case errors.Is(err, registry.ErrUnauthenticated):
		return CodeUnauthenticated, err.Error()
	case errors.Is(err, registry.ErrDuplicateConnection):
		return CodeDuplicateConnection, err.Error()
	case errors.Is(err, workspace.ErrUnknownRoom):
		return CodeUnknownRoom, err.Error()
	case errors.Is(err, workspace.ErrNotJoined):
		return CodeNotJoined, err.Error()
	case errors.Is(err, workspace.ErrInvalidStatus):
		return CodeInvalidStatus, err.Error()
	case errors.Is(err, workspace.ErrInvalidActivityType):
		return CodeInvalidActivityType, err.Error()
	case errors.Is(err, workspace.ErrInvalidPayload):
		return CodeInvalidPayload, err.Error()
	case errors.Is(err, errRateLimited):
		return CodeRateLimited, err.Error()
	case errors.Is(err, errUnknownEvent):
		return CodeUnknownEvent, err.Error()
	default:
		return CodeInternal, "internal error"
	}
}
