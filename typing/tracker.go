// Package typing tracks "is typing" presence for one booking's chat. None of
// it is persisted.
package typing

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"gigs/entity"
	"gigs/realtime"
	"gigs/scope"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/jonboulle/clockwork"
)

const DefaultTimeout = 3 * time.Second

type Channel interface {
	Emit(event string, payload any) error
	On(event, key string, handler realtime.Handler) (release func())
	OnState(key string, fn func(realtime.State)) (release func())
}

type RemoteTyper struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Tracker broadcasts the local user's typing state and collects the typing
// state of the other party.
//
// Locally, "typing" is sent once when input starts and "stop-typing" after
// the input has been idle for the timeout, on send, or when the input is
// cleared. Remote entries are only cleared by an explicit stop or when the
// channel leaves CONNECTED.
type Tracker struct {
	bookingID string
	user      entity.User
	channel   Channel
	clock     clockwork.Clock
	timeout   time.Duration
	scope     *scope.Scope

	mu         sync.Mutex
	active     bool
	timer      clockwork.Timer
	generation int
	remote     map[string]RemoteTyper
	observers  map[int]func([]RemoteTyper)
	nextID     int
}

func NewTracker(bookingID string, user entity.User, channel Channel, clock clockwork.Clock, timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		bookingID: bookingID,
		user:      user,
		channel:   channel,
		clock:     clock,
		timeout:   timeout,
		scope:     scope.New(),
		remote:    make(map[string]RemoteTyper),
		observers: make(map[int]func([]RemoteTyper)),
	}
}

func (t *Tracker) key() string {
	return "typing:" + t.bookingID
}

// Start listens for the other party's typing signals.
func (t *Tracker) Start() {
	t.scope.Add(t.channel.On(realtime.EventUserTyping, t.key(), t.onUserTyping))
	t.scope.Add(t.channel.On(realtime.EventUserStopTyping, t.key(), t.onUserStopTyping))
	t.scope.Add(t.channel.OnState(t.key(), func(s realtime.State) {
		if s != realtime.StateConnected {
			t.clearRemote()
		}
	}))
}

// InputChanged is called on every edit of the message input.
func (t *Tracker) InputChanged(text string) {
	if strings.TrimSpace(text) == "" {
		t.Stop()
		return
	}

	t.mu.Lock()
	if t.scope.Closed() {
		t.mu.Unlock()
		return
	}
	start := !t.active
	t.active = true
	t.generation++
	generation := t.generation
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.AfterFunc(t.timeout, func() {
		t.expire(generation)
	})
	t.mu.Unlock()

	if start {
		t.emit(realtime.EventTyping, realtime.TypingPayload{
			BookingID: t.bookingID,
			UserID:    t.user.ID,
			Name:      t.user.Name,
		})
	}
}

func (t *Tracker) expire(generation int) {
	t.mu.Lock()
	if generation != t.generation || !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.timer = nil
	t.mu.Unlock()

	t.emitStop()
}

// Stop ends the local typing burst right away, if there is one.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.emitStop()
}

// Active reports whether the local user is currently broadcast as typing.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Tracker) emitStop() {
	t.emit(realtime.EventStopTyping, realtime.TypingPayload{
		BookingID: t.bookingID,
		UserID:    t.user.ID,
	})
}

func (t *Tracker) emit(event string, payload realtime.TypingPayload) {
	// typing is best effort; a missed signal is corrected by the next one
	if err := t.channel.Emit(event, payload); err != nil {
		log.FromContext(context.Background()).WithError(err).WithField("booking_id", t.bookingID).Debugf("Could not send %s", event)
	}
}

func (t *Tracker) onUserTyping(data json.RawMessage) {
	var p realtime.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || !t.concerns(p) {
		return
	}

	t.update(func(remote map[string]RemoteTyper) bool {
		if current, ok := remote[p.UserID]; ok && current.Name == p.Name {
			return false
		}
		remote[p.UserID] = RemoteTyper{UserID: p.UserID, Name: p.Name}
		return true
	})
}

func (t *Tracker) onUserStopTyping(data json.RawMessage) {
	var p realtime.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || !t.concerns(p) {
		return
	}

	t.update(func(remote map[string]RemoteTyper) bool {
		if _, ok := remote[p.UserID]; !ok {
			return false
		}
		delete(remote, p.UserID)
		return true
	})
}

func (t *Tracker) concerns(p realtime.TypingPayload) bool {
	if p.UserID == "" || p.UserID == t.user.ID {
		return false
	}
	return p.BookingID == "" || p.BookingID == t.bookingID
}

func (t *Tracker) clearRemote() {
	t.update(func(remote map[string]RemoteTyper) bool {
		if len(remote) == 0 {
			return false
		}
		clear(remote)
		return true
	})
}

func (t *Tracker) update(fn func(map[string]RemoteTyper) bool) {
	t.mu.Lock()
	if !fn(t.remote) {
		t.mu.Unlock()
		return
	}
	snapshot := t.typingLocked()
	observers := make([]func([]RemoteTyper), 0, len(t.observers))
	for _, o := range t.observers {
		observers = append(observers, o)
	}
	t.mu.Unlock()

	for _, o := range observers {
		o(snapshot)
	}
}

// Typing returns the remote users currently typing, ordered by user id.
func (t *Tracker) Typing() []RemoteTyper {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typingLocked()
}

func (t *Tracker) typingLocked() []RemoteTyper {
	out := make([]RemoteTyper, 0, len(t.remote))
	for _, r := range t.remote {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (t *Tracker) OnChange(fn func([]RemoteTyper)) (release func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.observers[id] = fn
	t.mu.Unlock()

	return scope.Once(func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	})
}

// Close sends a pending stop, cancels the expiry timer and drops the
// listeners.
func (t *Tracker) Close() {
	t.Stop()
	t.scope.Close()
	t.clearRemote()
}
