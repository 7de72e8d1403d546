package coordinator

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"companion-be/internal/dto"
	"companion-be/pkg/consensus"
	"companion-be/pkg/conversation"
	"companion-be/pkg/dialogue"
	"companion-be/pkg/facestore"
	"companion-be/pkg/voice/stt"
	"companion-be/pkg/voice/tts"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotOperator       = errors.New("connection is not an operator")
	ErrNoTranscriber     = errors.New("speech recognition is not configured")
)

const (
	DefaultIdentifyDelay   = 2 * time.Second
	DefaultContextMessages = 10
	DefaultSpeechTimeout   = 20 * time.Second
)

// FaceDirectory is the part of the face store the coordinator needs.
type FaceDirectory interface {
	Get(id string) (facestore.UserRecord, bool)
	Rename(id, name string) (facestore.UserRecord, error)
}

type ConversationLog interface {
	ActiveSession(userID string) (conversation.Session, error)
	EndActiveSession(userID string) (conversation.Session, bool)
	Append(userID, role, content string, metadata map[string]interface{}) (conversation.Message, error)
	Context(userID string, n int) []conversation.Message
}

type Dialogue interface {
	Respond(ctx context.Context, req dialogue.Request) (dialogue.Reply, error)
}

// Notifier delivers events to the members of a room.
type Notifier interface {
	Broadcast(room string, event dto.RealtimeEvent, excludeConnectionID string) int
	HasClients(room string) bool
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts tts.SynthesizeOptions) (*tts.Synthesis, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, opts stt.TranscribeOptions) (*stt.Transcript, error)
}

type Config struct {
	// IdentifyDelay is how long an unnamed user is watched before being asked for a name.
	IdentifyDelay   time.Duration
	ContextMessages int
	SpeechTimeout   time.Duration
	Voice           string
	AudioFormat     string
	Language        string
}

func (c Config) withDefaults() Config {
	if c.IdentifyDelay <= 0 {
		c.IdentifyDelay = DefaultIdentifyDelay
	}
	if c.ContextMessages <= 0 {
		c.ContextMessages = DefaultContextMessages
	}
	if c.SpeechTimeout <= 0 {
		c.SpeechTimeout = DefaultSpeechTimeout
	}
	return c
}

// Prompts holds the fixed lines and dialogue instructions. {name} and {visits}
// are substituted where they appear.
type Prompts struct {
	NamePrompt                string `yaml:"name_prompt"`
	NameReprompt              string `yaml:"name_reprompt"`
	GreetingInstruction       string `yaml:"greeting_instruction"`
	GreetingFallback          string `yaml:"greeting_fallback"`
	NameRegisteredInstruction string `yaml:"name_registered_instruction"`
	FallbackReply             string `yaml:"fallback_reply"`
}

func DefaultPrompts() Prompts {
	return Prompts{
		NamePrompt:                "Hi there! I don't think we've been introduced. What's your name?",
		NameReprompt:              "Sorry, I didn't quite catch your name. Could you tell me again?",
		GreetingInstruction:       "{name} just walked up to you. This is visit number {visits}. Greet them by name in one short sentence.",
		GreetingFallback:          "Hello {name}, good to see you!",
		NameRegisteredInstruction: "The person in front of you just told you their name is {name}. Welcome them by name and ask how their day is going.",
		FallbackReply:             "Sorry, I lost my train of thought. Could you say that again?",
	}
}

// WithDefaults fills every empty prompt from DefaultPrompts.
func (p Prompts) WithDefaults() Prompts {
	d := DefaultPrompts()
	for _, f := range []struct{ dst *string; def string }{
		{&p.NamePrompt, d.NamePrompt},
		{&p.NameReprompt, d.NameReprompt},
		{&p.GreetingInstruction, d.GreetingInstruction},
		{&p.GreetingFallback, d.GreetingFallback},
		{&p.NameRegisteredInstruction, d.NameRegisteredInstruction},
		{&p.FallbackReply, d.FallbackReply},
	} {
		if strings.TrimSpace(*f.dst) == "" {
			*f.dst = f.def
		}
	}
	return p
}

func render(tmpl, name string, visits int) string {
	if name == "" {
		name = "friend"
	}
	return strings.NewReplacer("{name}", name, "{visits}", strconv.Itoa(visits)).Replace(tmpl)
}

// Detection is a confirmed identity for one connection, either from the consensus
// matcher or reported by the kiosk itself.
type Detection struct {
	UserID              string
	UserName            string
	NeedsIdentification bool
	IsNewUser           bool
	Ratio               float64
}

func DetectionFromResult(c consensus.Confirmed) Detection {
	return Detection{
		UserID:              c.UserID,
		UserName:            c.UserName,
		NeedsIdentification: c.NeedsIdentification(),
		IsNewUser:           c.IsNewUser(),
		Ratio:               c.Ratio,
	}
}

type Stats struct {
	Connections            int `json:"connections"`
	Operators              int `json:"operators"`
	PendingIdentifications int `json:"pendingIdentifications"`
}

// endedConversation describes a user released from a connection.
type endedConversation struct {
	room      string
	userID    string
	sessionID string
	messages  int
	greeted   bool
}
