package dto

import "time"

// LogListResponse uses string for Id because log IDs are MD5 hashes, not UUIDs.
type LogListResponse struct {
	Id        string `json:"id"`
	Level     string `json:"level"`
	Module    string `json:"module"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type LogDetailResponse struct {
	LogListResponse
	Details map[string]interface{} `json:"details"`
}

type LogPage struct {
	Items []LogListResponse `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

type HealthResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	StartedAt     time.Time `json:"startedAt"`
	Goroutines    int       `json:"goroutines"`
	ProcessRSS    uint64    `json:"processRssBytes"`
	HostMemUsed   float64   `json:"hostMemUsedPercent"`
	Connections   int       `json:"connections"`
	Operators     int       `json:"operators"`
	PendingNames  int       `json:"pendingIdentifications"`
	FaceUsers     int       `json:"faceUsers"`
	Conversations int       `json:"conversationUsers"`
	Detection     int       `json:"detectionSessions"`
	EventBus      bool      `json:"eventBus"`
}
