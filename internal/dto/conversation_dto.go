package dto

import "time"

type ConversationStatsResponse struct {
	Users          int        `json:"users"`
	Sessions       int        `json:"sessions"`
	ActiveSessions int        `json:"activeSessions"`
	Messages       int        `json:"messages"`
	LastSavedAt    *time.Time `json:"lastSavedAt"`
}

type ConversationMessageResponse struct {
	Id        string                 `json:"id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type ConversationSessionResponse struct {
	Id        string                        `json:"id"`
	UserId    string                        `json:"userId"`
	IsActive  bool                          `json:"isActive"`
	StartedAt time.Time                     `json:"startedAt"`
	EndedAt   *time.Time                    `json:"endedAt,omitempty"`
	Messages  []ConversationMessageResponse `json:"messages"`
}

type ConversationHistoryResponse struct {
	UserId   string                        `json:"userId"`
	Sessions []ConversationSessionResponse `json:"sessions"`
}

type CleanupConversationsRequest struct {
	// Omitted means the configured default.
	DaysOld *int `json:"daysOld" validate:"omitempty,min=0,max=3650"`
}

type CleanupConversationsResponse struct {
	DaysOld         int `json:"daysOld"`
	RemovedSessions int `json:"removedSessions"`
	RemovedUsers    int `json:"removedUsers"`
}

type ForceSaveResponse struct {
	SavedAt   time.Time `json:"savedAt"`
	Documents []string  `json:"documents"`
	BackedUp  []string  `json:"backedUp,omitempty"`
}
