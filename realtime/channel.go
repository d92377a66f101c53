// Package realtime keeps the single socket connection of a session and
// multiplexes it into booking rooms.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"gigs/scope"
	"gigs/session"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
)

const (
	DefaultReconnectDelay       = time.Second
	DefaultMaxReconnectAttempts = 5

	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

var ErrNotConnected = errors.New("realtime channel is not connected")

type Handler func(data json.RawMessage)

type Config struct {
	URL     string
	Session *session.Session
	Clock   clockwork.Clock
	Dialer  *websocket.Dialer

	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

type registration[T any] struct {
	id int
	fn T
}

type Channel struct {
	url         string
	session     *session.Session
	clock       clockwork.Clock
	dialer      *websocket.Dialer
	delay       time.Duration
	maxAttempts int
	logger      *logrus.Entry

	mu       sync.Mutex
	state    State
	offline  bool
	conn     *websocket.Conn
	epoch    int
	stopLoop context.CancelFunc
	rooms    map[string]int
	handlers map[string]map[string]registration[Handler]
	watchers map[string]registration[func(State)]
	nextID   int

	writeMu  sync.Mutex
	notifyMu sync.Mutex
}

func NewChannel(cfg Config) *Channel {
	c := &Channel{
		url:         cfg.URL,
		session:     cfg.Session,
		clock:       cfg.Clock,
		dialer:      cfg.Dialer,
		delay:       cfg.ReconnectDelay,
		maxAttempts: cfg.MaxReconnectAttempts,
		logger:      logrus.WithField("component", "realtime"),
		state:       StateDisconnected,
		rooms:       make(map[string]int),
		handlers:    make(map[string]map[string]registration[Handler]),
		watchers:    make(map[string]registration[func(State)]),
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	if c.delay <= 0 {
		c.delay = DefaultReconnectDelay
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxReconnectAttempts
	}
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Connected() bool {
	return c.State() == StateConnected
}

// Offline reports whether reconnection gave up. It stays set until the next
// Connect or Reconnect.
func (c *Channel) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

// Connect dials the socket. It is a no-op when the channel is already
// connected or a connection is in progress.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.epoch++
	epoch := c.epoch
	c.offline = false
	c.state = StateConnecting
	c.mu.Unlock()

	c.notify(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(epoch, StateDisconnected)
		return fmt.Errorf("connecting to %s: %w", c.url, err)
	}

	if !c.attach(epoch, conn) {
		return fmt.Errorf("connecting to %s: %w", c.url, ErrNotConnected)
	}

	return nil
}

// Reconnect drops the current connection, if any, and connects again. It
// clears the offline signal.
func (c *Channel) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

// Disconnect closes the connection and stops any reconnection in progress.
// Room memberships and listeners are kept for the next connection.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.epoch++
	conn := c.conn
	c.conn = nil
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop = nil
	}
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.offline = false
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		_ = conn.Close()
	}

	if changed {
		c.notify(StateDisconnected)
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	token := c.session.Token()
	if token == "" {
		return nil, session.ErrNoSession
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parsing socket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, res, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if res != nil && (res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden) {
			c.session.Invalidate(ctx, fmt.Sprintf("socket handshake returned %d", res.StatusCode))
		}
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)

	return conn, nil
}

// attach makes conn the live connection unless the channel was disconnected
// while dialing, and joins every room that is currently held.
func (c *Channel) attach(epoch int, conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.state = StateConnected
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	go c.readLoop(epoch, conn)

	for _, id := range rooms {
		if err := c.Emit(EventJoinBooking, RoomPayload{BookingID: id}); err != nil {
			c.logger.WithError(err).WithField("booking_id", id).Warn("Failed to rejoin room")
		}
	}

	c.logger.WithField("rooms", len(rooms)).Info("Channel connected")
	c.notify(StateConnected)

	return true
}

func (c *Channel) readLoop(epoch int, conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.connectionLost(epoch, err)
			return
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, r := range c.handlers[env.Event] {
		handlers = append(handlers, r.fn)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(env.Data)
	}
}

func (c *Channel) connectionLost(epoch int, err error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.epoch++
	epoch = c.epoch
	c.state = StateReconnecting
	ctx, cancel := context.WithCancel(context.Background())
	c.stopLoop = cancel
	c.mu.Unlock()

	c.logger.WithError(err).Warn("Connection lost, reconnecting")
	c.notify(StateReconnecting)

	go c.reconnect(ctx, epoch)
}

func (c *Channel) reconnect(ctx context.Context, epoch int) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.delay):
		}

		conn, err := c.dial(ctx)
		if err == nil {
			c.attach(epoch, conn)
			return
		}
		if errors.Is(err, session.ErrNoSession) {
			break
		}

		c.logger.WithError(err).WithField("attempt", attempt).Warn("Reconnect attempt failed")
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.offline = true
	c.stopLoop = nil
	c.mu.Unlock()

	c.logger.Error("Reconnection attempts exhausted, channel is offline")
	c.notify(StateDisconnected)
}

func (c *Channel) setState(epoch int, s State) {
	c.mu.Lock()
	if c.epoch != epoch || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.notify(s)
}

func (c *Channel) notify(s State) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	watchers := make([]func(State), 0, len(c.watchers))
	for _, r := range c.watchers {
		watchers = append(watchers, r.fn)
	}
	c.mu.Unlock()

	for _, fn := range watchers {
		fn(s)
	}
}

// Emit sends one event. It fails with ErrNotConnected instead of queueing
// when there is no live connection, so callers can fall back to REST.
func (c *Channel) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling %s payload: %w", event, err)
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		// the read loop notices the broken connection and reconnects
		_ = conn.Close()
		return fmt.Errorf("emitting %s: %w", event, err)
	}

	return nil
}

// Join enters the booking's room. Joins are reference counted: the room is
// left when the last holder releases it.
func (c *Channel) Join(bookingID string) (release func()) {
	c.mu.Lock()
	c.rooms[bookingID]++
	first := c.rooms[bookingID] == 1
	c.mu.Unlock()

	if first {
		c.emitMembership(EventJoinBooking, bookingID)
	}

	return scope.Once(func() {
		c.mu.Lock()
		c.rooms[bookingID]--
		last := c.rooms[bookingID] <= 0
		if last {
			delete(c.rooms, bookingID)
		}
		c.mu.Unlock()

		if last {
			c.emitMembership(EventLeaveBooking, bookingID)
		}
	})
}

func (c *Channel) emitMembership(event, bookingID string) {
	err := c.Emit(event, RoomPayload{BookingID: bookingID})
	if err != nil && !errors.Is(err, ErrNotConnected) {
		c.logger.WithError(err).WithField("booking_id", bookingID).Warnf("Failed to send %s", event)
	}
}

// Rooms returns the bookings whose rooms are currently held.
func (c *Channel) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// On registers handler for an inbound event under key. Registering the same
// key again replaces the previous handler.
func (c *Channel) On(event, key string, handler Handler) (release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[string]registration[Handler])
	}
	c.handlers[event][key] = registration[Handler]{id: id, fn: handler}

	return scope.Once(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if r, ok := c.handlers[event][key]; ok && r.id == id {
			delete(c.handlers[event], key)
		}
	})
}

// OnState registers fn to be called on every connection state change.
func (c *Channel) OnState(key string, fn func(State)) (release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.watchers[key] = registration[func(State)]{id: id, fn: fn}

	return scope.Once(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if r, ok := c.watchers[key]; ok && r.id == id {
			delete(c.watchers, key)
		}
	})
}
