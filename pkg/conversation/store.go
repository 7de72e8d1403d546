// Package conversation keeps per-user conversation history grouped into sessions
// and snapshots it to a JSON document.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"companion-be/internal/pkg/logger"
	"companion-be/pkg/docstore"
)

const (
	DefaultMaxMessagesPerSession = 100
	DefaultMaxSessionsPerUser    = 10
	DefaultSaveEvery             = 5
)

var (
	ErrEmptyUser    = errors.New("user id must not be empty")
	ErrEmptyMessage = errors.New("message content must not be empty")
	ErrPersist      = errors.New("conversation store persist failed")
)

type Options struct {
	MaxMessagesPerSession int
	MaxSessionsPerUser    int
	// SaveEvery requests a snapshot after this many appended messages.
	SaveEvery int
}

func (o Options) withDefaults() Options {
	if o.MaxMessagesPerSession <= 0 {
		o.MaxMessagesPerSession = DefaultMaxMessagesPerSession
	}
	if o.MaxSessionsPerUser <= 0 {
		o.MaxSessionsPerUser = DefaultMaxSessionsPerUser
	}
	if o.SaveEvery <= 0 {
		o.SaveEvery = DefaultSaveEvery
	}
	return o
}

// SaveRequester schedules a snapshot to be written later by a single writer.
type SaveRequester interface {
	RequestSave()
}

type Store struct {
	mu       sync.RWMutex
	users    map[string][]*Session
	appended int
	savedAt  time.Time

	opts      Options
	requester SaveRequester
	now       func() time.Time
	logger    logger.ILogger

	saveMu sync.Mutex
	file   *docstore.File
}

// Open loads path. A missing file yields an empty store. Sessions that were
// active when the previous process stopped are closed.
func Open(path string, opts Options, log logger.ILogger) (*Store, error) {
	s := &Store{
		users:  make(map[string][]*Session),
		opts:   opts.withDefaults(),
		now:    time.Now,
		logger: log,
		file:   docstore.NewFile(path),
	}

	var doc document
	found, err := s.file.Load(&doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return s, nil
	}

	s.savedAt = doc.SavedAt
	for userID, sessions := range doc.Users {
		kept := make([]*Session, 0, len(sessions))
		for _, sess := range sessions {
			if sess == nil {
				continue
			}
			if sess.IsActive {
				sess.IsActive = false
				ended := sess.LastActivity()
				sess.EndedAt = &ended
			}
			kept = append(kept, sess)
		}
		if len(kept) > 0 {
			s.users[userID] = kept
		}
	}
	return s, nil
}

// SetSaveRequester routes periodic snapshots through r instead of saving inline.
func (s *Store) SetSaveRequester(r SaveRequester) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requester = r
}

func (s *Store) Path() string {
	return s.file.Path()
}

func (s *Store) activeLocked(userID string) *Session {
	sessions := s.users[userID]
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].IsActive {
			return sessions[i]
		}
	}
	return nil
}

func (s *Store) endLocked(sess *Session) {
	sess.IsActive = false
	ended := s.now()
	sess.EndedAt = &ended
}

func (s *Store) startLocked(userID string) *Session {
	if cur := s.activeLocked(userID); cur != nil {
		s.endLocked(cur)
	}

	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Messages:  []Message{},
		IsActive:  true,
		StartedAt: s.now(),
	}
	sessions := append(s.users[userID], sess)
	if over := len(sessions) - s.opts.MaxSessionsPerUser; over > 0 {
		sessions = sessions[over:]
	}
	s.users[userID] = sessions
	return sess
}

// StartSession ends any active session of the user and opens a new one.
func (s *Store) StartSession(userID string) (Session, error) {
	if userID == "" {
		return Session{}, ErrEmptyUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(userID).clone(), nil
}

// ActiveSession returns the user's active session, starting one if none exists.
func (s *Store) ActiveSession(userID string) (Session, error) {
	if userID == "" {
		return Session{}, ErrEmptyUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.activeLocked(userID); cur != nil {
		return cur.clone(), nil
	}
	return s.startLocked(userID).clone(), nil
}

// EndActiveSession closes the user's active session, if any.
func (s *Store) EndActiveSession(userID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.activeLocked(userID)
	if cur == nil {
		return Session{}, false
	}
	s.endLocked(cur)
	return cur.clone(), true
}

// Append adds a message to the user's active session, starting one if needed.
func (s *Store) Append(userID, role, content string, metadata map[string]interface{}) (Message, error) {
	if userID == "" {
		return Message{}, ErrEmptyUser
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	sess := s.activeLocked(userID)
	if sess == nil {
		sess = s.startLocked(userID)
	}

	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
		Metadata:  metadata,
	}
	sess.Messages = append(sess.Messages, msg)
	if over := len(sess.Messages) - s.opts.MaxMessagesPerSession; over > 0 {
		sess.Messages = sess.Messages[over:]
	}

	s.appended++
	due := s.appended%s.opts.SaveEvery == 0
	requester := s.requester
	s.mu.Unlock()

	if due {
		s.scheduleSave(requester)
	}
	return msg, nil
}

func (s *Store) scheduleSave(requester SaveRequester) {
	if requester != nil {
		requester.RequestSave()
		return
	}
	if err := s.Save(); err != nil {
		s.logger.Error("ConversationStore", "Periodic save failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Context returns up to n of the user's most recent non-empty messages in
// chronological order, reaching back across session boundaries.
func (s *Store) Context(userID string, n int) []Message {
	if n <= 0 {
		return []Message{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.users[userID]
	var collected []Message
	for i := len(sessions) - 1; i >= 0 && len(collected) < n; i-- {
		var chunk []Message
		for _, m := range sessions[i].Messages {
			if strings.TrimSpace(m.Content) != "" {
				chunk = append(chunk, m)
			}
		}
		collected = append(chunk, collected...)
	}

	if len(collected) > n {
		collected = collected[len(collected)-n:]
	}
	out := make([]Message, len(collected))
	copy(out, collected)
	return out
}

// History returns all sessions of a user, oldest first.
func (s *Store) History(userID string) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.users[userID]
	out := make([]Session, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.clone())
	}
	return out
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Users: len(s.users), LastSavedAt: s.savedAt}
	for _, sessions := range s.users {
		st.Sessions += len(sessions)
		for _, sess := range sessions {
			if sess.IsActive {
				st.ActiveSessions++
			}
			st.Messages += len(sess.Messages)
		}
	}
	return st
}

// Cleanup removes ended sessions whose last activity is older than daysOld days.
// Active sessions are always kept.
func (s *Store) Cleanup(daysOld int) CleanupResult {
	cutoff := s.now().AddDate(0, 0, -daysOld)

	s.mu.Lock()
	defer s.mu.Unlock()

	var res CleanupResult
	for userID, sessions := range s.users {
		kept := sessions[:0]
		for _, sess := range sessions {
			if !sess.IsActive && sess.LastActivity().Before(cutoff) {
				res.RemovedSessions++
				continue
			}
			kept = append(kept, sess)
		}
		if len(kept) == 0 {
			delete(s.users, userID)
			res.RemovedUsers++
			continue
		}
		s.users[userID] = kept
	}
	return res
}

// Save writes a consistent snapshot. Calls are serialized so an older snapshot
// never overwrites a newer one.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	doc := document{SavedAt: s.now(), Users: make(map[string][]*Session, len(s.users))}
	for userID, sessions := range s.users {
		copies := make([]*Session, len(sessions))
		for i, sess := range sessions {
			c := sess.clone()
			copies[i] = &c
		}
		doc.Users[userID] = copies
	}
	s.mu.RUnlock()

	if err := s.file.Write(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	s.mu.Lock()
	s.savedAt = doc.SavedAt
	s.mu.Unlock()
	return nil
}
