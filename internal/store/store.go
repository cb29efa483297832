package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"microgrid_simulator/internal/simulator"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrDefaultSession = errors.New("default session cannot be deleted")
	ErrLimitReached   = errors.New("session limit reached")
)

// Factory builds the engine for a new session. The ID is passed so the
// factory can label callbacks (broadcasts, metrics) with it.
type Factory func(id string) *simulator.Engine

// Session is one independent simulation.
type Session struct {
	ID        string
	CreatedAt time.Time
	Engine    *simulator.Engine
}

// Info is the listing view of a session.
type Info struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Default   bool            `json:"default"`
	State     simulator.State `json:"state"`
}

// Store holds simulation sessions in memory, indexed by session ID.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	defaultID string
	factory   Factory
	limit     int
	onDelete  []func(id string)

	now   func() time.Time
	newID func() string
}

// New creates an empty store. maxSessions <= 0 means unlimited.
func New(factory Factory, maxSessions int) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		factory:  factory,
		limit:    maxSessions,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// OnDelete registers fn to run after a session is removed.
func (s *Store) OnDelete(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

// Create registers a new stopped session.
func (s *Store) Create() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

func (s *Store) createLocked() (*Session, error) {
	if s.limit > 0 && len(s.sessions) >= s.limit {
		return nil, ErrLimitReached
	}
	id := s.newID()
	sess := &Session{
		ID:        id,
		CreatedAt: s.now(),
		Engine:    s.factory(id),
	}
	s.sessions[id] = sess
	return sess, nil
}

// Default returns the default session, creating it on first use.
func (s *Store) Default() (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[s.defaultID]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[s.defaultID]; ok {
		return sess, nil
	}
	sess, err := s.createLocked()
	if err != nil {
		return nil, err
	}
	s.defaultID = sess.ID
	return sess, nil
}

// Get returns a session by ID.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Resolve returns the session for id, or the default session when id is empty.
func (s *Store) Resolve(id string) (*Session, error) {
	if id == "" {
		return s.Default()
	}
	return s.Get(id)
}

// Delete pauses and removes a session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if id == s.defaultID {
		s.mu.Unlock()
		return ErrDefaultSession
	}
	delete(s.sessions, id)
	hooks := append([]func(string){}, s.onDelete...)
	s.mu.Unlock()

	sess.Engine.Pause()
	for _, fn := range hooks {
		fn(id)
	}
	return nil
}

// List returns all sessions, oldest first.
func (s *Store) List() []Info {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	defaultID := s.defaultID
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	infos := make([]Info, len(sessions))
	for i, sess := range sessions {
		infos[i] = Info{
			ID:        sess.ID,
			CreatedAt: sess.CreatedAt,
			Default:   sess.ID == defaultID,
			State:     sess.Engine.State(),
		}
	}
	return infos
}

// Describe returns the listing view of one session.
func (s *Store) Describe(sess *Session) Info {
	s.mu.RLock()
	defaultID := s.defaultID
	s.mu.RUnlock()
	return Info{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		Default:   sess.ID == defaultID,
		State:     sess.Engine.State(),
	}
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// PauseAll stops every running session, used on shutdown.
func (s *Store) PauseAll() {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.Engine.Pause()
	}
}
