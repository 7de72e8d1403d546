package service

import (
	"context"

	"companion-be/internal/constant"
	"companion-be/internal/dto"
	"companion-be/internal/pkg/logger"
	"companion-be/pkg/coordinator"
	"companion-be/pkg/events"
	pktNats "companion-be/pkg/nats"
)

const (
	monitorSubject = pktNats.SubjectPrefix + ">"
	monitorDurable = "companion-monitor"
)

type EventSubscriber interface {
	Subscribe(ctx context.Context, subject string, durableName string, handler pktNats.EventHandler) error
}

// RoomBroadcaster pushes an event to a room; an empty room means every room.
type RoomBroadcaster interface {
	Broadcast(room string, event dto.RealtimeEvent, excludeConnectionID string) int
}

// MonitorService relays identity events from the bus to operator dashboards.
type MonitorService struct {
	subscriber EventSubscriber
	delivery   RoomBroadcaster
	logger     logger.ILogger
}

func NewMonitorService(sub EventSubscriber, delivery RoomBroadcaster, log logger.ILogger) *MonitorService {
	return &MonitorService{subscriber: sub, delivery: delivery, logger: log}
}

// Start begins listening to the event bus.
func (s *MonitorService) Start(ctx context.Context) error {
	if err := s.subscriber.Subscribe(ctx, monitorSubject, monitorDurable, s.HandleEvent); err != nil {
		s.logger.Error("MonitorService", "Failed to start monitor subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("MonitorService", "Monitor started, listening to "+monitorSubject, nil)
	return nil
}

func (s *MonitorService) HandleEvent(ctx context.Context, event events.Event) error {
	room, _ := event.Payload()["room"].(string)

	n := s.delivery.Broadcast(room, dto.RealtimeEvent{
		Type: constant.EventIdentityEvent,
		Data: coordinator.IdentityPayload(event),
	}, "")

	s.logger.Debug("MonitorService", "Identity event relayed", map[string]interface{}{
		"type":       event.EventType(),
		"room":       room,
		"recipients": n,
	})
	return nil
}
