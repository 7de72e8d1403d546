// Package facestore keeps enrolled users and their face descriptor samples in
// memory and mirrors them to a single JSON document.
package facestore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"companion-be/pkg/docstore"
)

const (
	UnknownName       = "unknown"
	DefaultMaxSamples = 5
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidName  = errors.New("name must not be empty")
	// ErrPersist wraps write failures. The in-memory change has already been applied.
	ErrPersist = errors.New("face store persist failed")
)

type UserRecord struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Descriptors [][]float64 `json:"descriptors"`
	CreatedAt   time.Time   `json:"createdAt"`
	LastSeen    time.Time   `json:"lastSeen"`
	VisitCount  int         `json:"visitCount"`
	Temporary   bool        `json:"temporary"`
}

// HasName reports whether the user has told us who they are.
func (u UserRecord) HasName() bool {
	return !u.Temporary && u.Name != "" && !strings.EqualFold(u.Name, UnknownName)
}

func (u UserRecord) clone() UserRecord {
	out := u
	out.Descriptors = make([][]float64, len(u.Descriptors))
	for i, d := range u.Descriptors {
		out.Descriptors[i] = append([]float64(nil), d...)
	}
	return out
}

type document struct {
	NextID int           `json:"nextId"`
	Users  []*UserRecord `json:"users"`
}

type Store struct {
	mu         sync.RWMutex
	users      map[string]*UserRecord
	nextID     int
	maxSamples int

	// saveMu spans snapshot and write so an older snapshot never lands last.
	saveMu sync.Mutex
	file   *docstore.File
}

// Open loads the document at path. A missing file yields an empty store.
func Open(path string, maxSamples int) (*Store, error) {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	s := &Store{
		users:      make(map[string]*UserRecord),
		nextID:     1,
		maxSamples: maxSamples,
		file:       docstore.NewFile(path),
	}

	var doc document
	found, err := s.file.Load(&doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return s, nil
	}

	for _, u := range doc.Users {
		if u == nil || u.ID == "" {
			continue
		}
		s.users[u.ID] = u
		if n := parseSeq(u.ID); n >= s.nextID {
			s.nextID = n + 1
		}
	}
	if doc.NextID > s.nextID {
		s.nextID = doc.NextID
	}
	return s, nil
}

func parseSeq(id string) int {
	var n int
	if _, err := fmt.Sscanf(id, "user%d", &n); err != nil {
		return 0
	}
	return n
}

func (s *Store) Path() string {
	return s.file.Path()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Store) Get(id string) (UserRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return UserRecord{}, false
	}
	return u.clone(), true
}

// FindByName matches case-insensitively. Names are not unique; the most recently
// seen match wins.
func (s *Store) FindByName(name string) (UserRecord, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return UserRecord{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *UserRecord
	for _, u := range s.users {
		if !strings.EqualFold(u.Name, name) {
			continue
		}
		if best == nil || u.LastSeen.After(best.LastSeen) {
			best = u
		}
	}
	if best == nil {
		return UserRecord{}, false
	}
	return best.clone(), true
}

// List returns every user ordered by enrollment.
func (s *Store) List() []UserRecord {
	s.mu.RLock()
	out := make([]UserRecord, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := parseSeq(out[i].ID), parseSeq(out[j].ID)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Enroll registers a new unnamed user with the given samples.
func (s *Store) Enroll(samples [][]float64, now time.Time) UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrollLocked(samples, now)
}

func (s *Store) enrollLocked(samples [][]float64, now time.Time) UserRecord {
	id := fmt.Sprintf("user%d", s.nextID)
	s.nextID++

	u := &UserRecord{
		ID:         id,
		Name:       UnknownName,
		CreatedAt:  now,
		LastSeen:   now,
		VisitCount: 1,
		Temporary:  true,
	}
	s.addSamples(u, samples)
	s.users[id] = u
	return u.clone()
}

// Scorer rates how closely a descriptor matches a user's stored samples.
type Scorer func(desc []float64, stored [][]float64) float64

// EnrollUnlessMatched enrolls samples as a new user unless an existing user now
// scores above threshold against one of them, in which case that user's visit is
// recorded instead. The check and the write happen under one lock so concurrent
// batches of the same unseen face end up on a single id. The bool reports
// whether a new user was created.
func (s *Store) EnrollUnlessMatched(samples [][]float64, score Scorer, threshold float64, now time.Time) (UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best     *UserRecord
		bestSim  float64
		bestDesc []float64
	)
	for _, u := range s.users {
		for _, desc := range samples {
			sim := score(desc, u.Descriptors)
			if sim <= threshold {
				continue
			}
			if best == nil || sim > bestSim || (sim == bestSim && u.ID < best.ID) {
				best, bestSim, bestDesc = u, sim, desc
			}
		}
	}

	if best != nil {
		best.VisitCount++
		best.LastSeen = now
		s.addSamples(best, [][]float64{bestDesc})
		return best.clone(), false
	}
	return s.enrollLocked(samples, now), true
}

// RecordVisit bumps the visit counter and refreshes the descriptor samples.
func (s *Store) RecordVisit(id string, samples [][]float64, now time.Time) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	u.VisitCount++
	u.LastSeen = now
	s.addSamples(u, samples)
	return u.clone(), nil
}

// addSamples keeps the newest maxSamples descriptors.
func (s *Store) addSamples(u *UserRecord, samples [][]float64) {
	for _, d := range samples {
		if len(d) == 0 {
			continue
		}
		u.Descriptors = append(u.Descriptors, append([]float64(nil), d...))
	}
	if over := len(u.Descriptors) - s.maxSamples; over > 0 {
		u.Descriptors = u.Descriptors[over:]
	}
}

// Rename gives the user a display name and persists the change. The id never
// changes.
func (s *Store) Rename(id, name string) (UserRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return UserRecord{}, ErrInvalidName
	}

	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return UserRecord{}, ErrUserNotFound
	}
	u.Name = name
	u.Temporary = false
	out := u.clone()
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		return out, err
	}
	return out, nil
}

// Candidates exposes a read-only copy of every user's samples for matching.
func (s *Store) Candidates() map[string][][]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][][]float64, len(s.users))
	for id, u := range s.users {
		out[id] = u.clone().Descriptors
	}
	return out
}

// Save writes a consistent snapshot of the store.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	doc := document{NextID: s.nextID, Users: make([]*UserRecord, 0, len(s.users))}
	for _, u := range s.users {
		c := u.clone()
		doc.Users = append(doc.Users, &c)
	}
	s.mu.RUnlock()

	sort.Slice(doc.Users, func(i, j int) bool {
		return parseSeq(doc.Users[i].ID) < parseSeq(doc.Users[j].ID)
	})

	if err := s.file.Write(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
