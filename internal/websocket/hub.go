package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"companion-be/internal/constant"
	"companion-be/internal/dto"
	"companion-be/internal/pkg/logger"
	"companion-be/pkg/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "companion_events"

// Audience says which roles may receive an event type.
type Audience int

const (
	AudienceAll Audience = iota
	AudienceClients
	AudienceOperators
)

// AudienceOf classifies outbound event types. Unknown types go to everyone.
func AudienceOf(eventType string) Audience {
	switch eventType {
	case constant.EventWizardMessage,
		constant.EventUserMessage,
		constant.EventIdentityEvent,
		constant.EventUserDetected,
		constant.EventUserLost:
		return AudienceOperators
	case constant.EventAnimation:
		return AudienceClients
	default:
		return AudienceAll
	}
}

type relayMessage struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Exclude string          `json:"exclude,omitempty"`
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// Hub tracks the connections of every room. Rooms are the unit of broadcast; an
// empty room name in Broadcast targets every room.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	// Redis connection for cross-instance fan-out
	rdb        *redis.Client
	instanceID string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

// Run relays broadcasts from other instances until ctx is done. Without Redis it
// returns immediately.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		return
	}
	h.subscribeToRedis(ctx)
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	members, ok := h.rooms[c.Room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[c.Room] = members
	}
	members[c.ID] = c
	h.mu.Unlock()

	h.logger.Info("Hub", "Client registered", map[string]interface{}{
		"connection_id": c.ID,
		"room":          c.Room,
		"role":          c.Role,
	})
}

// Unregister removes the client and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		delete(h.clients, c.ID)
		if members, ok := h.rooms[c.Room]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, c.Room)
			}
		}
	}
	h.mu.Unlock()

	if c.close() {
		h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"connection_id": c.ID, "room": c.Room})
	}
}

// SendTo delivers an event to one connection regardless of audience.
func (h *Hub) SendTo(connectionID string, event dto.RealtimeEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.trySend(c, data)
}

// Broadcast delivers an event to the room members its audience allows, skipping
// exclude. It returns the number of local deliveries.
func (h *Hub) Broadcast(room string, event dto.RealtimeEvent, exclude string) int {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode event", map[string]interface{}{"type": event.Type, "error": err.Error()})
		return 0
	}

	n := h.deliverLocal(room, event.Type, exclude, data)

	if h.rdb != nil {
		payload, _ := json.Marshal(relayMessage{
			Origin:  h.instanceID,
			Room:    room,
			Exclude: exclude,
			Type:    event.Type,
			Message: data,
		})
		if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
			h.logger.Warn("Hub", "Failed to relay broadcast", map[string]interface{}{"error": err.Error()})
		}
	}
	return n
}

func (h *Hub) deliverLocal(room, eventType, exclude string, data []byte) int {
	audience := AudienceOf(eventType)

	h.mu.RLock()
	var targets []*Client
	collect := func(members map[string]*Client) {
		for id, c := range members {
			if id != exclude && c.accepts(audience) {
				targets = append(targets, c)
			}
		}
	}
	if room == "" {
		for _, members := range h.rooms {
			collect(members)
		}
	} else {
		collect(h.rooms[room])
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if h.trySend(c, data) {
			n++
		}
	}
	return n
}

func (h *Hub) trySend(c *Client, data []byte) bool {
	if c.trySend(data) {
		return true
	}
	h.logger.Warn("Hub", "Dropping message for closed or slow client", map[string]interface{}{"connection_id": c.ID})
	return false
}

// HasClients reports whether an ordinary (non-operator) client is in the room.
func (h *Hub) HasClients(room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		if c.Role == store.RoleClient && !c.isClosed() {
			return true
		}
	}
	return false
}

// Counts returns the number of local client and operator connections.
func (h *Hub) Counts() (clients, operators int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Role == store.RoleOperator {
			operators++
		} else {
			clients++
		}
	}
	return clients, operators
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var relay relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &relay); err != nil {
				h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if relay.Origin == h.instanceID {
				continue
			}
			h.deliverLocal(relay.Room, relay.Type, relay.Exclude, relay.Message)
		}
	}
}
