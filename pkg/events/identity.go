package events

import "time"

const (
	UserEnrolled      = "USER_ENROLLED"
	UserIdentified    = "USER_IDENTIFIED"
	NameRegistered    = "NAME_REGISTERED"
	UserLost          = "USER_LOST"
	ConversationEnded = "CONVERSATION_ENDED"
)

// NewIdentityEvent builds an event about one user. room may be empty when the
// event did not originate from a realtime connection.
func NewIdentityEvent(eventType, room, userID string, data map[string]interface{}, now time.Time) BaseEvent {
	payload := make(map[string]interface{}, len(data)+2)
	for k, v := range data {
		payload[k] = v
	}
	payload["user_id"] = userID
	if room != "" {
		payload["room"] = room
	}
	return BaseEvent{Type: eventType, Data: payload, OccurredAt: now}
}
