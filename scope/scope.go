// Package scope ties the release of subscriptions, timers and pollers to the
// lifetime of the context that acquired them.
package scope

import (
	"context"
	"sync"
)

// Once wraps release so that calling it more than once is a no-op.
// A nil release becomes a no-op func.
func Once(release func()) func() {
	if release == nil {
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(release)
	}
}

// Scope collects release funcs and runs them in reverse order of
// acquisition, exactly once.
type Scope struct {
	mu       sync.Mutex
	releases []func()
	closed   bool
	stop     func() bool
}

func New() *Scope {
	return &Scope{}
}

// Bind closes the scope when ctx is done.
func Bind(ctx context.Context) *Scope {
	s := New()
	s.stop = context.AfterFunc(ctx, s.Close)
	return s
}

// Add registers release with the scope. If the scope is already closed the
// release runs immediately.
func (s *Scope) Add(release func()) {
	release = Once(release)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		release()
		return
	}
	s.releases = append(s.releases, release)
	s.mu.Unlock()
}

func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	releases := s.releases
	s.releases = nil
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}

	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}
