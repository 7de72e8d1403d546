package dto

import "encoding/json"

// RealtimeEvent is the {type, data} envelope sent over the websocket.
type RealtimeEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// InboundEvent keeps data raw until the type is known.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type UserDetectedPayload struct {
	UserId              string  `json:"userId" validate:"required"`
	UserName            string  `json:"userName"`
	NeedsIdentification bool    `json:"needsIdentification"`
	IsNewUser           bool    `json:"isNewUser"`
	ConsensusRatio      float64 `json:"consensusRatio"`
}

type UserLostPayload struct {
	UserId string `json:"userId"`
}

type TextPayload struct {
	Text  string `json:"text" validate:"required"`
	State string `json:"state,omitempty"`
}

type AudioPayload struct {
	Audio    string `json:"audio" validate:"required"` // base64
	Format   string `json:"format,omitempty"`
	Language string `json:"language,omitempty"`
}

type RobotMessagePayload struct {
	Text  string `json:"text"`
	State string `json:"state"`
}

type ForwardedUserMessage struct {
	ConnectionId string `json:"connectionId"`
	UserId       string `json:"userId,omitempty"`
	UserName     string `json:"userName,omitempty"`
	Text         string `json:"text"`
}

type RegistrationSuccessPayload struct {
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
}

type AnimationPayload struct {
	Text   string `json:"text"`
	State  string `json:"state"`
	Audio  string `json:"audio,omitempty"` // base64
	Format string `json:"format,omitempty"`
}

type IdentityEventPayload struct {
	Event      string                 `json:"event"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt string                 `json:"occurredAt"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
