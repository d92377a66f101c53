// Package chat keeps one ordered, duplicate-free message sequence per booking
// from the REST history and the live socket stream.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gigs/entity"
	"gigs/realtime"
	"gigs/scope"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

var (
	ErrChatClosed   = errors.New("chat is not available for this booking")
	ErrEmptyMessage = errors.New("message is empty")
)

type Route string

const (
	RouteChannel Route = "channel"
	RouteREST    Route = "rest"
)

type Channel interface {
	Connected() bool
	Emit(event string, payload any) error
	Join(bookingID string) (release func())
	On(event, key string, handler realtime.Handler) (release func())
	OnState(key string, fn func(realtime.State)) (release func())
}

type API interface {
	ListMessages(ctx context.Context, bookingID string) ([]entity.Message, error)
	SendMessage(ctx context.Context, bookingID, content string) (entity.Message, error)
}

type Synchronizer struct {
	bookingID string
	channel   Channel
	api       API
	scope     *scope.Scope

	mu        sync.Mutex
	messages  []entity.Message
	started   bool
	observers map[int]func([]entity.Message)
	nextID    int
}

func NewSynchronizer(bookingID string, channel Channel, api API) *Synchronizer {
	return &Synchronizer{
		bookingID: bookingID,
		channel:   channel,
		api:       api,
		scope:     scope.New(),
		observers: make(map[int]func([]entity.Message)),
	}
}

func (s *Synchronizer) key() string {
	return "chat:" + s.bookingID
}

// Start joins the booking's room and seeds the sequence from the history.
// The live listener is registered before the history is fetched so nothing
// sent in between is lost; duplicates are merged away.
func (s *Synchronizer) Start(ctx context.Context, b entity.Booking) error {
	if !b.Status.ChatAllowed() {
		return fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, ErrChatClosed)
	}

	if s.scope.Closed() {
		return ErrChatClosed
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.scope.Add(s.channel.On(realtime.EventNewMessage, s.key(), s.onMessage))
	s.scope.Add(s.channel.Join(s.bookingID))
	s.scope.Add(s.channel.OnState(s.key(), func(state realtime.State) {
		if state == realtime.StateConnected {
			go s.resync(context.WithoutCancel(ctx))
		}
	}))

	if err := s.Refresh(ctx); err != nil {
		s.Close()
		return err
	}

	return nil
}

// Refresh merges the REST history into the sequence. It is used on start and
// after the channel reconnects, to pick up what was sent while offline.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	history, err := s.api.ListMessages(ctx, s.bookingID)
	if err != nil {
		return fmt.Errorf("loading chat history: %w", err)
	}

	s.add(history...)
	return nil
}

func (s *Synchronizer) resync(ctx context.Context) {
	if s.scope.Closed() {
		return
	}
	if err := s.Refresh(ctx); err != nil {
		log.FromContext(ctx).WithError(err).WithField("booking_id", s.bookingID).Warn("Failed to resync chat after reconnect")
	}
}

func (s *Synchronizer) onMessage(data json.RawMessage) {
	var m entity.Message
	if err := json.Unmarshal(data, &m); err != nil {
		log.FromContext(context.Background()).WithError(err).Warn("Discarding malformed chat message")
		return
	}
	if m.BookingID != "" && m.BookingID != s.bookingID {
		return
	}
	s.add(m)
}

func (s *Synchronizer) add(incoming ...entity.Message) {
	s.mu.Lock()
	if s.scope.Closed() {
		s.mu.Unlock()
		return
	}
	before := len(s.messages)
	s.messages = Merge(s.messages, incoming...)
	if len(s.messages) == before {
		s.mu.Unlock()
		return
	}
	snapshot := append([]entity.Message(nil), s.messages...)
	observers := make([]func([]entity.Message), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

// Send delivers content over the channel when it is connected and over REST
// otherwise. Nothing is added to the sequence until the server has assigned
// the message an id.
func (s *Synchronizer) Send(ctx context.Context, content string) (Route, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	if s.scope.Closed() {
		return "", ErrChatClosed
	}

	if s.channel.Connected() {
		err := s.channel.Emit(realtime.EventSendMessage, realtime.SendMessagePayload{
			BookingID: s.bookingID,
			Content:   content,
		})
		if err == nil {
			return RouteChannel, nil
		}
		log.FromContext(ctx).WithError(err).WithField("booking_id", s.bookingID).Warn("Channel send failed, falling back to REST")
	}

	m, err := s.api.SendMessage(ctx, s.bookingID, content)
	if err != nil {
		return "", err
	}
	if m.BookingID == "" {
		m.BookingID = s.bookingID
	}
	s.add(m)

	return RouteREST, nil
}

func (s *Synchronizer) Messages() []entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Message(nil), s.messages...)
}

// OnChange calls fn with the full sequence whenever a message is added.
func (s *Synchronizer) OnChange(fn func([]entity.Message)) (release func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	return scope.Once(func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	})
}

// Close leaves the room and drops the listeners. It is safe to call more
// than once.
func (s *Synchronizer) Close() {
	s.scope.Close()
}
