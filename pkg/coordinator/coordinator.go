// Package coordinator maps realtime connections to recognised users and decides
// when the companion greets, asks for a name, answers, or stays quiet because a
// human operator has taken over the room.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"companion-be/internal/constant"
	"companion-be/internal/dto"
	"companion-be/internal/pkg/logger"
	"companion-be/internal/repository/memory"
	"companion-be/pkg/consensus"
	"companion-be/pkg/events"
	"companion-be/pkg/facestore"
	"companion-be/pkg/store"
)

const logModule = "Coordinator"

// Deps are the collaborators of a Coordinator. Synthesizer, Transcriber and
// Publisher are optional and must be left nil (not a typed nil) when absent.
type Deps struct {
	Sessions      *memory.SessionRepository
	Cooldowns     *memory.CooldownRepository
	Faces         FaceDirectory
	Conversations ConversationLog
	Dialogue      Dialogue
	Notifier      Notifier
	Synthesizer   Synthesizer
	Transcriber   Transcriber
	Publisher     events.Publisher
	Clock         Clock
	Logger        logger.ILogger
}

type Coordinator struct {
	// mu guards every SocketSession and the operator map. It is never held
	// across dialogue, speech, store or bus calls.
	mu        sync.Mutex
	sessions  *memory.SessionRepository
	cooldowns *memory.CooldownRepository
	operators map[string]string // connection id -> room
	tasks     *taskSet

	faces         FaceDirectory
	conversations ConversationLog
	dialogue      Dialogue
	notifier      Notifier
	synth         Synthesizer
	transcriber   Transcriber
	publisher     events.Publisher
	clock         Clock
	cfg           Config
	prompts       Prompts
	logger        logger.ILogger
}

func New(deps Deps, cfg Config, prompts Prompts) *Coordinator {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = memory.NewSessionRepository()
	}

	return &Coordinator{
		sessions:      sessions,
		cooldowns:     deps.Cooldowns,
		operators:     make(map[string]string),
		tasks:         newTaskSet(clock),
		faces:         deps.Faces,
		conversations: deps.Conversations,
		dialogue:      deps.Dialogue,
		notifier:      deps.Notifier,
		synth:         deps.Synthesizer,
		transcriber:   deps.Transcriber,
		publisher:     deps.Publisher,
		clock:         clock,
		cfg:           cfg.withDefaults(),
		prompts:       prompts.WithDefaults(),
		logger:        log,
	}
}

// Connect registers a new connection. Operators only join the operator set; they
// never carry a user.
func (c *Coordinator) Connect(connectionID, room string, role store.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if role == store.RoleOperator {
		c.operators[connectionID] = room
		c.logger.Info(logModule, "Operator connected, automatic replies paused", map[string]interface{}{
			"connection_id": connectionID,
			"room":          room,
			"operators":     len(c.operators),
		})
		return
	}

	c.sessions.Save(&store.SocketSession{
		ID:          connectionID,
		Room:        room,
		State:       store.StateIdle,
		ConnectedAt: c.clock.Now(),
	})
}

// Disconnect tears a connection down. Calling it twice is harmless.
func (c *Coordinator) Disconnect(ctx context.Context, connectionID string) {
	c.mu.Lock()
	if room, ok := c.operators[connectionID]; ok {
		delete(c.operators, connectionID)
		stillCovered := c.operatorInRoomLocked(room)
		c.mu.Unlock()
		msg := "Operator disconnected"
		if !stillCovered {
			msg = "Last operator left the room, automatic replies resumed"
		}
		c.logger.Info(logModule, msg, map[string]interface{}{"connection_id": connectionID, "room": room})
		return
	}

	sess, ok := c.sessions.Get(connectionID)
	if !ok {
		c.mu.Unlock()
		return
	}
	c.tasks.cancelConnection(connectionID)
	ended := c.releaseUserLocked(sess)
	c.sessions.Delete(connectionID)
	c.mu.Unlock()

	c.publishEnded(ctx, ended)
}

// Close stops every scheduled task.
func (c *Coordinator) Close() {
	c.tasks.stopAll()
}

// Session returns a copy of the connection's state.
func (c *Coordinator) Session(connectionID string) (store.SocketSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions.Get(connectionID)
	if !ok {
		return store.SocketSession{}, false
	}
	return sess.Clone(), true
}

// OperatorConnected reports whether any operator is watching the room.
func (c *Coordinator) OperatorConnected(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.operatorInRoomLocked(room)
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{Operators: len(c.operators)}
	for _, sess := range c.sessions.All() {
		st.Connections++
		if sess.Pending != nil {
			st.PendingIdentifications++
		}
	}
	return st
}

func (c *Coordinator) operatorInRoomLocked(room string) bool {
	for _, r := range c.operators {
		if r == room {
			return true
		}
	}
	return false
}

// HandleConsensus applies a matcher result to the connection that sent the frames.
func (c *Coordinator) HandleConsensus(ctx context.Context, connectionID string, result consensus.Result) error {
	switch r := result.(type) {
	case consensus.Confirmed:
		return c.HandleUserDetected(ctx, connectionID, DetectionFromResult(r))
	case consensus.Preliminary:
		state := store.StateBatchCollecting
		if r.Progress <= 1 {
			state = store.StateFaceDetected
		}
		return c.setState(connectionID, state)
	case consensus.Uncertain:
		return c.setState(connectionID, store.StateUncertain)
	}
	return fmt.Errorf("%w: unsupported consensus result %T", ErrInvalidInput, result)
}

func (c *Coordinator) setState(connectionID, state string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions.Get(connectionID)
	if !ok {
		return ErrUnknownConnection
	}
	sess.State = state
	sess.LastFaceUpdate = c.clock.Now()
	return nil
}

// HandleUserDetected binds a confirmed user to the connection. A different user
// than the one tracked so far ends the previous user's conversation first.
func (c *Coordinator) HandleUserDetected(ctx context.Context, connectionID string, d Detection) error {
	if d.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := c.clock.Now()

	c.mu.Lock()
	sess, ok := c.sessions.Get(connectionID)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownConnection
	}

	var ended *endedConversation
	switched := sess.CurrentUserID != "" && sess.CurrentUserID != d.UserID
	if switched {
		ended = c.releaseUserLocked(sess)
	}

	sess.State = store.StateConfirmed
	sess.LastFaceUpdate = now
	sess.CurrentUserID = d.UserID
	if d.UserName != "" && d.UserName != facestore.UnknownName {
		sess.CurrentUserName = d.UserName
	}
	room := sess.Room

	greet := false
	if d.NeedsIdentification {
		if sess.Pending == nil || sess.Pending.UserID != d.UserID {
			pending := &store.PendingIdentification{UserID: d.UserID, ConnectionID: connectionID, CreatedAt: now}
			sess.Pending = pending
			c.tasks.schedule(taskKey(connectionID, taskIdentify), c.cfg.IdentifyDelay, func() {
				c.promptForName(connectionID, pending)
			})
		}
	} else {
		if sess.Pending != nil {
			sess.Pending = nil
			c.tasks.cancel(taskKey(connectionID, taskIdentify))
		}
		greet = c.shouldGreetLocked(sess, switched, now) && !c.operatorInRoomLocked(room)
		if greet {
			sess.HasGreetedThisSession = true
		}
	}
	c.mu.Unlock()

	c.publishEnded(ctx, ended)

	if conv, err := c.conversations.ActiveSession(d.UserID); err == nil {
		c.mu.Lock()
		if sess, ok := c.sessions.Get(connectionID); ok && sess.CurrentUserID == d.UserID {
			sess.ConversationSessionID = conv.ID
		}
		c.mu.Unlock()
	}

	eventType := events.UserIdentified
	if d.IsNewUser {
		eventType = events.UserEnrolled
	}
	c.emitIdentity(ctx, room, eventType, d.UserID, map[string]interface{}{
		"user_name":            d.UserName,
		"consensus_ratio":      d.Ratio,
		"needs_identification": d.NeedsIdentification,
		"connection_id":        connectionID,
	})

	c.logger.Info(logModule, "User detected", map[string]interface{}{
		"connection_id":        connectionID,
		"user_id":              d.UserID,
		"needs_identification": d.NeedsIdentification,
		"switched":             switched,
		"greet":                greet,
	})

	if greet {
		c.greet(ctx, connectionID, room, d.UserID)
	}
	return nil
}

// HandleUserLost releases the tracked user. A userID that does not match the
// tracked user is a stale report and is ignored.
func (c *Coordinator) HandleUserLost(ctx context.Context, connectionID, userID string) error {
	c.mu.Lock()
	sess, ok := c.sessions.Get(connectionID)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownConnection
	}
	current := sess.CurrentUserID
	if current == "" || (userID != "" && userID != current) {
		c.mu.Unlock()
		return nil
	}
	ended := c.releaseUserLocked(sess)
	room := sess.Room
	c.mu.Unlock()

	c.emitIdentity(ctx, room, events.UserLost, current, map[string]interface{}{"connection_id": connectionID})
	c.publishEnded(ctx, ended)
	return nil
}

// shouldGreetLocked: a new face on this connection is always greeted; the same
// face is greeted once per session and not again inside its cooldown.
func (c *Coordinator) shouldGreetLocked(sess *store.SocketSession, switched bool, now time.Time) bool {
	if switched {
		return true
	}
	if sess.HasGreetedThisSession {
		return false
	}
	return c.cooldowns == nil || !c.cooldowns.Active(sess.CurrentUserID, now)
}

// releaseUserLocked detaches the current user from sess: clears the pending
// identification, ends the conversation and starts the greeting cooldown.
func (c *Coordinator) releaseUserLocked(sess *store.SocketSession) *endedConversation {
	if sess.Pending != nil {
		sess.Pending = nil
		c.tasks.cancel(taskKey(sess.ID, taskIdentify))
	}
	if sess.CurrentUserID == "" {
		return nil
	}

	out := &endedConversation{room: sess.Room, userID: sess.CurrentUserID, greeted: sess.HasGreetedThisSession}
	if conv, ok := c.conversations.EndActiveSession(sess.CurrentUserID); ok {
		out.sessionID = conv.ID
		out.messages = len(conv.Messages)
	}
	if sess.HasGreetedThisSession && c.cooldowns != nil {
		c.cooldowns.Record(sess.CurrentUserID, c.clock.Now())
	}

	sess.CurrentUserID = ""
	sess.CurrentUserName = ""
	sess.ConversationSessionID = ""
	sess.HasGreetedThisSession = false
	sess.State = store.StateIdle
	return out
}

func (c *Coordinator) publishEnded(ctx context.Context, ended *endedConversation) {
	if ended == nil {
		return
	}
	c.emitIdentity(ctx, ended.room, events.ConversationEnded, ended.userID, map[string]interface{}{
		"session_id": ended.sessionID,
		"messages":   ended.messages,
		"greeted":    ended.greeted,
	})
}

// emitIdentity publishes to the bus when one is configured; the monitor relay
// then forwards the event to operators. Without a bus, or when publishing fails,
// operators in the room are notified directly.
func (c *Coordinator) emitIdentity(ctx context.Context, room, eventType, userID string, data map[string]interface{}) {
	evt := events.NewIdentityEvent(eventType, room, userID, data, c.clock.Now())
	if c.publisher != nil {
		err := c.publisher.Publish(ctx, evt)
		if err == nil {
			return
		}
		c.logger.Warn(logModule, "Failed to publish identity event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
	if room != "" {
		c.notifier.Broadcast(room, dto.RealtimeEvent{Type: constant.EventIdentityEvent, Data: IdentityPayload(evt)}, "")
	}
}

// IdentityPayload converts a bus event into the operator-facing payload.
func IdentityPayload(e events.Event) dto.IdentityEventPayload {
	return dto.IdentityEventPayload{
		Event:      e.EventType(),
		Data:       e.Payload(),
		OccurredAt: e.Timestamp().UTC().Format(time.RFC3339),
	}
}
