package store

import "time"

type Role string

const (
	RoleClient   Role = "client"
	RoleOperator Role = "operator"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleClient, "":
		return RoleClient, true
	case RoleOperator:
		return RoleOperator, true
	}
	return "", false
}

// Detection state of one connection.
const (
	StateIdle            = "IDLE"
	StateFaceDetected    = "FACE_DETECTED"
	StateBatchCollecting = "BATCH_COLLECTING"
	StateUncertain       = "UNCERTAIN"
	StateConfirmed       = "CONFIRMED"
)

// SocketSession is the per-connection state kept by the coordinator.
type SocketSession struct {
	ID                    string    `json:"id"`
	Room                  string    `json:"room"`
	State                 string    `json:"state"`
	CurrentUserID         string    `json:"current_user_id,omitempty"`
	CurrentUserName       string    `json:"current_user_name,omitempty"`
	HasGreetedThisSession bool      `json:"has_greeted_this_session"`
	ConversationSessionID string    `json:"conversation_session_id,omitempty"`
	ConnectedAt           time.Time `json:"connected_at"`
	LastFaceUpdate        time.Time `json:"last_face_update"`

	// At most one identification can be pending per connection.
	Pending *PendingIdentification `json:"pending,omitempty"`
}

type PendingIdentification struct {
	UserID         string    `json:"user_id"`
	ConnectionID   string    `json:"connection_id"`
	WaitingForName bool      `json:"waiting_for_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone copies the session including its pending identification.
func (s *SocketSession) Clone() SocketSession {
	out := *s
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	return out
}

// DetectionSession groups recognition requests coming from one camera stream.
type DetectionSession struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Requests     int       `json:"requests"`
}
