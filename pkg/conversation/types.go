package conversation

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	ID        string                 `json:"id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Messages  []Message  `json:"messages"`
	IsActive  bool       `json:"isActive"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// LastActivity is the newest message time, or the start time for an empty session.
func (s *Session) LastActivity() time.Time {
	if n := len(s.Messages); n > 0 {
		return s.Messages[n-1].Timestamp
	}
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	return s.StartedAt
}

func (s *Session) clone() Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}

type Stats struct {
	Users          int       `json:"users"`
	Sessions       int       `json:"sessions"`
	ActiveSessions int       `json:"activeSessions"`
	Messages       int       `json:"messages"`
	LastSavedAt    time.Time `json:"lastSavedAt"`
}

type CleanupResult struct {
	RemovedSessions int `json:"removedSessions"`
	RemovedUsers    int `json:"removedUsers"`
}

type document struct {
	SavedAt time.Time             `json:"savedAt"`
	Users   map[string][]*Session `json:"users"`
}
