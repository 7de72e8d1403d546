package dto

type RecognizeRequest struct {
	// Base64 images, optionally as data URLs.
	Images       []string `json:"images" validate:"required,min=1,max=5,dive,required"`
	UserId       string   `json:"user_id"`
	SessionId    string   `json:"session_id" validate:"required,max=128"`
	ClientId     string   `json:"client_id"`
	ConnectionId string   `json:"connection_id"`
}

// User status values reported by the recognizer.
const (
	UserStatusDetecting    = "detecting"
	UserStatusUncertain    = "uncertain"
	UserStatusNewUnknown   = "new_unknown"
	UserStatusKnownUnnamed = "known_unnamed"
	UserStatusIdentified   = "identified"
)

type RecognizeResponse struct {
	UserId              *string  `json:"userId"`
	UserName            *string  `json:"userName"`
	IsNewUser           bool     `json:"isNewUser"`
	NeedsIdentification bool     `json:"needsIdentification"`
	UserStatus          string   `json:"userStatus"`
	IsPreliminary       bool     `json:"isPreliminary,omitempty"`
	IsUncertain         bool     `json:"isUncertain,omitempty"`
	IsConfirmed         bool     `json:"isConfirmed,omitempty"`
	DetectionProgress   int      `json:"detectionProgress,omitempty"`
	TotalRequired       int      `json:"totalRequired,omitempty"`
	ConsensusRatio      *float64 `json:"consensusRatio,omitempty"`
	VisitCount          int      `json:"visitCount,omitempty"`
	Message             string   `json:"message"`
}

type ResetDetectionRequest struct {
	SessionId string `json:"session_id" validate:"required"`
}

type ResetDetectionResponse struct {
	SessionId string `json:"sessionId"`
	Cleared   bool   `json:"cleared"`
}
