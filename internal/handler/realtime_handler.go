package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"companion-be/internal/constant"
	"companion-be/internal/dto"
	"companion-be/internal/pkg/logger"
	"companion-be/internal/pkg/serverutils"
	internalWS "companion-be/internal/websocket"
	"companion-be/pkg/coordinator"
	"companion-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	defaultRoom     = "default"
	dispatchTimeout = 30 * time.Second
)

// Coordinator is what the realtime handler drives.
type Coordinator interface {
	Connect(connectionID, room string, role store.Role)
	Disconnect(ctx context.Context, connectionID string)
	HandleUserDetected(ctx context.Context, connectionID string, d coordinator.Detection) error
	HandleUserLost(ctx context.Context, connectionID, userID string) error
	HandleUserMessage(ctx context.Context, connectionID, text string) error
	HandleUserAudio(ctx context.Context, connectionID string, audio []byte, format, language string) error
	HandleOperatorMessage(ctx context.Context, connectionID, text, mood string) error
}

type RealtimeHandler struct {
	coordinator Coordinator
	hub         *internalWS.Hub
	logger      logger.ILogger
}

func NewRealtimeHandler(c Coordinator, hub *internalWS.Hub, log logger.ILogger) *RealtimeHandler {
	return &RealtimeHandler{coordinator: c, hub: hub, logger: log}
}

// ServeWs upgrades /ws?room=&role=&token=. Operators must present a token whose
// role claim is "operator"; kiosk clients connect anonymously.
func (h *RealtimeHandler) ServeWs(c *fiber.Ctx) error {
	room := strings.TrimSpace(c.Query("room"))
	if room == "" {
		room = defaultRoom
	}
	role, ok := store.ParseRole(c.Query("role"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(fiber.StatusBadRequest, "role must be client or operator"))
	}

	if role == store.RoleOperator {
		claims, err := serverutils.ParseToken(serverutils.BearerToken(c))
		if err != nil {
			h.logger.Warn("RealtimeHandler", "Invalid token in WS handshake", map[string]interface{}{"room": room})
			return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}
		if r, _ := claims["role"].(string); r != serverutils.RoleOperator {
			return c.Status(fiber.StatusForbidden).JSON(serverutils.ErrorResponse(fiber.StatusForbidden, "Operator role required"))
		}
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		id := uuid.NewString()
		h.logger.Info("RealtimeHandler", "Starting WebSocket session", map[string]interface{}{
			"connection_id": id,
			"room":          room,
			"role":          role,
		})

		h.coordinator.Connect(id, room, role)
		defer func() {
			h.coordinator.Disconnect(context.Background(), id)
			h.logger.Info("RealtimeHandler", "WebSocket session ended", map[string]interface{}{"connection_id": id})
		}()

		internalWS.ServeWs(h.hub, conn, id, room, role, func(data []byte) {
			h.Dispatch(id, role, data)
		})
	})(c)
}

// Dispatch handles one inbound frame. Failures and panics become an error event
// for the sending connection.
func (h *RealtimeHandler) Dispatch(connectionID string, role store.Role, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("RealtimeHandler", "Recovered from panic in dispatch", map[string]interface{}{
				"connection_id": connectionID,
				"panic":         fmt.Sprint(r),
			})
			h.sendError(connectionID, errors.New("internal error"))
		}
	}()

	var in dto.InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendError(connectionID, fmt.Errorf("%w: malformed message", coordinator.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := h.handle(ctx, connectionID, role, in); err != nil {
		h.logger.Warn("RealtimeHandler", "Event failed", map[string]interface{}{
			"connection_id": connectionID,
			"type":          in.Type,
			"error":         err.Error(),
		})
		h.sendError(connectionID, err)
	}
}

func (h *RealtimeHandler) handle(ctx context.Context, id string, role store.Role, in dto.InboundEvent) error {
	if role == store.RoleOperator && in.Type != constant.EventWizardMessage {
		return fmt.Errorf("%w: operators may only send %s", coordinator.ErrInvalidInput, constant.EventWizardMessage)
	}

	switch in.Type {
	case constant.EventUserDetected:
		var p dto.UserDetectedPayload
		if err := decode(in.Data, &p); err != nil {
			return err
		}
		return h.coordinator.HandleUserDetected(ctx, id, coordinator.Detection{
			UserID:              p.UserId,
			UserName:            p.UserName,
			NeedsIdentification: p.NeedsIdentification,
			IsNewUser:           p.IsNewUser,
			Ratio:               p.ConsensusRatio,
		})

	case constant.EventUserLost:
		var p dto.UserLostPayload
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &p); err != nil {
				return fmt.Errorf("%w: %v", coordinator.ErrInvalidInput, err)
			}
		}
		return h.coordinator.HandleUserLost(ctx, id, p.UserId)

	case constant.EventUserMessage:
		var p dto.TextPayload
		if err := decode(in.Data, &p); err != nil {
			return err
		}
		return h.coordinator.HandleUserMessage(ctx, id, p.Text)

	case constant.EventUserAudio:
		var p dto.AudioPayload
		if err := decode(in.Data, &p); err != nil {
			return err
		}
		audio, err := base64.StdEncoding.DecodeString(p.Audio)
		if err != nil {
			return fmt.Errorf("%w: audio is not valid base64", coordinator.ErrInvalidInput)
		}
		return h.coordinator.HandleUserAudio(ctx, id, audio, p.Format, p.Language)

	case constant.EventWizardMessage:
		if role != store.RoleOperator {
			return coordinator.ErrNotOperator
		}
		var p dto.TextPayload
		if err := decode(in.Data, &p); err != nil {
			return err
		}
		return h.coordinator.HandleOperatorMessage(ctx, id, p.Text, p.State)
	}
	return fmt.Errorf("%w: unknown event type %q", coordinator.ErrInvalidInput, in.Type)
}

func decode(data json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", coordinator.ErrInvalidInput, err)
	}
	if err := serverutils.ValidateRequest(v); err != nil {
		return fmt.Errorf("%w: %v", coordinator.ErrInvalidInput, err)
	}
	return nil
}

func (h *RealtimeHandler) sendError(connectionID string, err error) {
	h.hub.SendTo(connectionID, dto.RealtimeEvent{
		Type: constant.EventError,
		Data: dto.ErrorPayload{Message: err.Error(), Code: ErrorCode(err)},
	})
}

// ErrorCode maps coordinator errors onto the codes clients switch on.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, coordinator.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, coordinator.ErrUnknownConnection):
		return "unknown_connection"
	case errors.Is(err, coordinator.ErrNotOperator):
		return "forbidden"
	case errors.Is(err, coordinator.ErrNoTranscriber):
		return "speech_unavailable"
	}
	return "internal"
}

func (h *RealtimeHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", h.ServeWs)
}
