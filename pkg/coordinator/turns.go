package coordinator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"companion-be/internal/constant"
	"companion-be/internal/dto"
	"companion-be/pkg/conversation"
	"companion-be/pkg/dialogue"
	"companion-be/pkg/events"
	"companion-be/pkg/facestore"
	"companion-be/pkg/llm"
	"companion-be/pkg/store"
	"companion-be/pkg/voice/stt"
	"companion-be/pkg/voice/tts"
)

const (
	sourceText  = "text"
	sourceVoice = "voice"
)

// HandleUserMessage handles a typed turn from the kiosk.
func (c *Coordinator) HandleUserMessage(ctx context.Context, connectionID, text string) error {
	return c.handleTurn(ctx, connectionID, text, sourceText)
}

// HandleUserAudio transcribes a spoken turn and handles it like a typed one.
func (c *Coordinator) HandleUserAudio(ctx context.Context, connectionID string, audio []byte, format, language string) error {
	if len(audio) == 0 {
		return fmt.Errorf("%w: empty audio", ErrInvalidInput)
	}
	if c.transcriber == nil {
		return ErrNoTranscriber
	}

	if language == "" {
		language = c.cfg.Language
	}
	tr, err := c.transcriber.Transcribe(ctx, bytes.NewReader(audio), stt.TranscribeOptions{Format: format, Language: language})
	if err != nil {
		return fmt.Errorf("transcribe audio: %w", err)
	}
	if strings.TrimSpace(tr.Text) == "" {
		c.logger.Debug(logModule, "Transcript was empty", map[string]interface{}{"connection_id": connectionID})
		return nil
	}
	return c.handleTurn(ctx, connectionID, tr.Text, sourceVoice)
}

func (c *Coordinator) handleTurn(ctx context.Context, connectionID, text, source string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidInput)
	}

	c.mu.Lock()
	sess, ok := c.sessions.Get(connectionID)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownConnection
	}
	room, userID, userName := sess.Room, sess.CurrentUserID, sess.CurrentUserName
	operator := c.operatorInRoomLocked(room)
	var pending *store.PendingIdentification
	if sess.Pending != nil && sess.Pending.WaitingForName {
		pending = sess.Pending
	}
	c.mu.Unlock()

	name, isIntroduction := "", false
	if pending != nil {
		name, isIntroduction = ExtractName(text)
	}

	meta := map[string]interface{}{constant.MetaSource: source}
	if isIntroduction {
		meta[constant.MetaKind] = constant.KindIntroduction
	}
	c.appendMessage(userID, conversation.RoleUser, text, meta)

	c.notifier.Broadcast(room, dto.RealtimeEvent{
		Type: constant.EventUserMessage,
		Data: dto.ForwardedUserMessage{ConnectionId: connectionID, UserId: userID, UserName: userName, Text: text},
	}, connectionID)

	if pending != nil {
		if !isIntroduction {
			if !operator {
				c.say(ctx, room, userID, dialogue.Reply{Text: c.prompts.NameReprompt, Mood: dialogue.MoodCurious},
					proactive(constant.KindNameReprompt))
			}
			return nil
		}
		return c.registerName(ctx, connectionID, room, pending, name, operator)
	}

	if operator {
		return nil
	}
	reply := c.respond(ctx, userID, userName, text, "")
	c.say(ctx, room, userID, reply, nil)
	return nil
}

func (c *Coordinator) registerName(ctx context.Context, connectionID, room string, pending *store.PendingIdentification, name string, operator bool) error {
	rec, err := c.faces.Rename(pending.UserID, name)
	switch {
	case errors.Is(err, facestore.ErrPersist):
		c.logger.Error(logModule, "Name kept in memory but not persisted", map[string]interface{}{
			"user_id": pending.UserID,
			"error":   err.Error(),
		})
	case err != nil:
		return fmt.Errorf("register name for %s: %w", pending.UserID, err)
	}

	c.mu.Lock()
	if sess, ok := c.sessions.Get(connectionID); ok && sess.Pending == pending {
		sess.Pending = nil
		if sess.CurrentUserID == pending.UserID {
			sess.CurrentUserName = rec.Name
			// The welcome below stands in for the greeting.
			sess.HasGreetedThisSession = true
		}
	}
	c.mu.Unlock()

	c.logger.Info(logModule, "Name registered", map[string]interface{}{
		"connection_id": connectionID,
		"user_id":       rec.ID,
		"user_name":     rec.Name,
	})

	c.notifier.Broadcast(room, dto.RealtimeEvent{
		Type: constant.EventRegistrationSuccess,
		Data: dto.RegistrationSuccessPayload{UserId: rec.ID, UserName: rec.Name},
	}, "")
	c.emitIdentity(ctx, room, events.NameRegistered, rec.ID, map[string]interface{}{"user_name": rec.Name})

	if operator {
		return nil
	}
	reply := c.respond(ctx, rec.ID, rec.Name, "", render(c.prompts.NameRegisteredInstruction, rec.Name, rec.VisitCount))
	c.say(ctx, room, rec.ID, reply, nil)
	return nil
}

// HandleOperatorMessage speaks an operator's reply to everyone in the room and
// echoes it to the other operators.
func (c *Coordinator) HandleOperatorMessage(ctx context.Context, connectionID, text, mood string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidInput)
	}

	c.mu.Lock()
	room, ok := c.operators[connectionID]
	if !ok {
		c.mu.Unlock()
		return ErrNotOperator
	}
	users := make(map[string]bool)
	for _, sess := range c.sessions.All() {
		if sess.Room == room && sess.CurrentUserID != "" {
			users[sess.CurrentUserID] = true
		}
	}
	c.mu.Unlock()

	reply := dialogue.Reply{Text: text, Mood: dialogue.NormalizeMood(mood)}
	for userID := range users {
		c.appendMessage(userID, conversation.RoleAssistant, text, map[string]interface{}{constant.MetaOperator: true})
	}

	c.notifier.Broadcast(room, dto.RealtimeEvent{
		Type: constant.EventWizardMessage,
		Data: dto.RobotMessagePayload{Text: reply.Text, State: reply.Mood},
	}, connectionID)
	c.deliver(room, reply)
	c.speak(ctx, room, reply)
	return nil
}

func (c *Coordinator) greet(ctx context.Context, connectionID, room, userID string) {
	name, visits := "", 0
	if rec, ok := c.faces.Get(userID); ok {
		visits = rec.VisitCount
		if rec.HasName() {
			name = rec.Name
		}
	}

	reply, err := c.dialogue.Respond(ctx, dialogue.Request{
		UserName:    name,
		VisitCount:  visits,
		History:     c.history(userID),
		Instruction: render(c.prompts.GreetingInstruction, name, visits),
	})
	if err != nil || strings.TrimSpace(reply.Text) == "" {
		c.logger.Warn(logModule, "Greeting fell back to the fixed line", map[string]interface{}{
			"connection_id": connectionID,
			"user_id":       userID,
			"error":         fmt.Sprint(err),
		})
		reply = dialogue.Reply{Text: render(c.prompts.GreetingFallback, name, visits), Mood: dialogue.MoodHappy}
	}
	reply.Mood = dialogue.NormalizeMood(reply.Mood)
	c.say(ctx, room, userID, reply, proactive(constant.KindGreeting))
}

// promptForName runs IdentifyDelay after an unnamed user was confirmed. The
// pending pointer identifies the identification it was scheduled for.
func (c *Coordinator) promptForName(connectionID string, pending *store.PendingIdentification) {
	c.mu.Lock()
	sess, ok := c.sessions.Get(connectionID)
	if !ok || sess.Pending != pending {
		c.mu.Unlock()
		return
	}
	pending.WaitingForName = true
	room := sess.Room
	operator := c.operatorInRoomLocked(room)
	c.mu.Unlock()

	if operator {
		c.logger.Info(logModule, "Name prompt left to the operator", map[string]interface{}{
			"connection_id": connectionID,
			"user_id":       pending.UserID,
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SpeechTimeout)
	defer cancel()
	c.say(ctx, room, pending.UserID, dialogue.Reply{Text: c.prompts.NamePrompt, Mood: dialogue.MoodCurious},
		proactive(constant.KindNamePrompt))
}

// respond asks the dialogue service for a reply, falling back to a fixed line.
// turn is the user's text when it could not be logged against a user.
func (c *Coordinator) respond(ctx context.Context, userID, userName, turn, instruction string) dialogue.Reply {
	req := dialogue.Request{UserName: userName, Instruction: instruction}
	if userID != "" {
		if rec, ok := c.faces.Get(userID); ok {
			req.VisitCount = rec.VisitCount
			if req.UserName == "" && rec.HasName() {
				req.UserName = rec.Name
			}
		}
		req.History = c.history(userID)
	} else if turn != "" {
		req.History = []llm.Message{{Role: llm.RoleUser, Content: turn}}
	}

	reply, err := c.dialogue.Respond(ctx, req)
	if err != nil || strings.TrimSpace(reply.Text) == "" {
		c.logger.Warn(logModule, "Dialogue failed, using fallback reply", map[string]interface{}{
			"user_id": userID,
			"error":   fmt.Sprint(err),
		})
		return dialogue.Reply{Text: c.prompts.FallbackReply, Mood: dialogue.MoodNeutral}
	}
	reply.Mood = dialogue.NormalizeMood(reply.Mood)
	return reply
}

func (c *Coordinator) history(userID string) []llm.Message {
	msgs := c.conversations.Context(userID, c.cfg.ContextMessages)
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

// say logs an assistant line against the user, shows it and speaks it.
func (c *Coordinator) say(ctx context.Context, room, userID string, reply dialogue.Reply, meta map[string]interface{}) {
	c.appendMessage(userID, conversation.RoleAssistant, reply.Text, meta)
	c.deliver(room, reply)
	c.speak(ctx, room, reply)
}

func (c *Coordinator) deliver(room string, reply dialogue.Reply) {
	c.notifier.Broadcast(room, dto.RealtimeEvent{
		Type: constant.EventRobotMessage,
		Data: dto.RobotMessagePayload{Text: reply.Text, State: reply.Mood},
	}, "")
}

// speak drives the avatar. Audio is attached when synthesis succeeds; the
// animation goes out either way.
func (c *Coordinator) speak(ctx context.Context, room string, reply dialogue.Reply) {
	if !c.notifier.HasClients(room) {
		return
	}

	payload := dto.AnimationPayload{Text: reply.Text, State: reply.Mood}
	if c.synth != nil {
		audio, err := c.synth.Synthesize(ctx, reply.Text, tts.SynthesizeOptions{
			Voice:   c.cfg.Voice,
			Emotion: reply.Mood,
			Format:  c.cfg.AudioFormat,
		})
		if err != nil {
			c.logger.Warn(logModule, "Speech synthesis failed", map[string]interface{}{"room": room, "error": err.Error()})
		} else {
			payload.Audio = base64.StdEncoding.EncodeToString(audio.Audio)
			payload.Format = audio.Format
		}
	}
	c.notifier.Broadcast(room, dto.RealtimeEvent{Type: constant.EventAnimation, Data: payload}, "")
}

func (c *Coordinator) appendMessage(userID, role, text string, meta map[string]interface{}) {
	if userID == "" {
		return
	}
	if _, err := c.conversations.Append(userID, role, text, meta); err != nil {
		c.logger.Error(logModule, "Failed to log message", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

func proactive(kind string) map[string]interface{} {
	return map[string]interface{}{constant.MetaProactive: true, constant.MetaKind: kind}
}
