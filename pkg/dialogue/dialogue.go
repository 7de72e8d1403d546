// Package dialogue produces the companion's spoken replies. The model is asked for
// {"reply": "...", "mood": "..."} and the answer is parsed leniently.
package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"companion-be/pkg/llm"
)

const (
	MoodNeutral   = "neutral"
	MoodHappy     = "happy"
	MoodSad       = "sad"
	MoodSurprised = "surprised"
	MoodThinking  = "thinking"
	MoodCurious   = "curious"
)

var Moods = []string{MoodNeutral, MoodHappy, MoodSad, MoodSurprised, MoodThinking, MoodCurious}

var ErrEmptyReply = errors.New("model returned an empty reply")

type Request struct {
	UserName   string
	VisitCount int
	// History is the recent conversation, oldest first, including the current turn.
	History []llm.Message
	// Instruction describes a proactive turn (greeting, follow-up after a name).
	Instruction string
}

type Reply struct {
	Text string `json:"reply"`
	Mood string `json:"mood"`
}

type Persona struct {
	Name         string
	SystemPrompt string
}

type Service struct {
	provider llm.LLMProvider
	persona  Persona
	opts     []llm.Option
}

func NewService(provider llm.LLMProvider, persona Persona, opts ...llm.Option) *Service {
	return &Service{provider: provider, persona: persona, opts: opts}
}

func (s *Service) systemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.persona.SystemPrompt))
	if s.persona.Name != "" {
		fmt.Fprintf(&b, "\n\nYour name is %s.", s.persona.Name)
	}
	if req.UserName != "" {
		fmt.Fprintf(&b, "\nYou are talking to %s", req.UserName)
		if req.VisitCount > 1 {
			fmt.Fprintf(&b, ", who has visited %d times", req.VisitCount)
		}
		b.WriteString(".")
	}
	fmt.Fprintf(&b, "\n\nAnswer with a JSON object {\"reply\": string, \"mood\": string}. mood is one of: %s. Keep replies to one or two spoken sentences.",
		strings.Join(Moods, ", "))
	return b.String()
}

func (s *Service) Respond(ctx context.Context, req Request) (Reply, error) {
	history := make([]llm.Message, 0, len(req.History)+2)
	history = append(history, llm.Message{Role: llm.RoleSystem, Content: s.systemPrompt(req)})
	history = append(history, req.History...)
	if req.Instruction != "" {
		history = append(history, llm.Message{Role: llm.RoleUser, Content: "[event] " + req.Instruction})
	}

	opts := append([]llm.Option{llm.WithJSON()}, s.opts...)
	raw, err := s.provider.Chat(ctx, history, opts...)
	if err != nil {
		return Reply{}, err
	}
	return ParseReply(raw)
}

// ParseReply accepts a JSON object anywhere in the text. Anything else is taken
// as the reply itself with a neutral mood.
func ParseReply(raw string) (Reply, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reply{}, ErrEmptyReply
	}

	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		var r Reply
		if err := json.Unmarshal([]byte(raw[start:end+1]), &r); err == nil && strings.TrimSpace(r.Text) != "" {
			r.Text = strings.TrimSpace(r.Text)
			r.Mood = NormalizeMood(r.Mood)
			return r, nil
		}
	}

	text := strings.Trim(raw, "`\" \n")
	if text == "" {
		return Reply{}, ErrEmptyReply
	}
	return Reply{Text: text, Mood: MoodNeutral}, nil
}

func NormalizeMood(mood string) string {
	mood = strings.ToLower(strings.TrimSpace(mood))
	for _, m := range Moods {
		if m == mood {
			return m
		}
	}
	return MoodNeutral
}
