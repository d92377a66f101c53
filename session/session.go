// Package session holds the credential and identity of the signed-in user.
// One Session is created per login and shared by the REST client and the
// realtime channel.
package session

import (
	"context"
	"errors"
	"sync"

	"gigs/entity"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

var ErrNoSession = errors.New("no active session")

type Session struct {
	mu        sync.RWMutex
	token     string
	user      entity.User
	valid     bool
	nextID    int
	observers map[int]func()
}

func New(token string, user entity.User) *Session {
	return &Session{
		token:     token,
		user:      user,
		valid:     token != "",
		observers: make(map[int]func()),
	}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) User() entity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valid
}

// Invalidate logs the session out. Observers run once, on the first call.
func (s *Session) Invalidate(ctx context.Context, reason string) {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return
	}
	s.valid = false
	s.token = ""
	observers := make([]func(), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	log.FromContext(ctx).WithField("user_id", s.User().ID).Warnf("Session invalidated: %s", reason)

	for _, fn := range observers {
		fn()
	}
}

// OnInvalidate registers fn to run when the session is invalidated.
func (s *Session) OnInvalidate(fn func()) (release func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}
