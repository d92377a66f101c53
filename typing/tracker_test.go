package typing_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"gigs/entity"
	"gigs/realtime"
	"gigs/scope"
	"gigs/typing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelMock struct {
	lock     sync.Mutex
	emitted  []string
	handlers map[string]realtime.Handler
	watchers map[string]func(realtime.State)
}

func newChannelMock() *channelMock {
	return &channelMock{
		handlers: make(map[string]realtime.Handler),
		watchers: make(map[string]func(realtime.State)),
	}
}

func (c *channelMock) Emit(event string, _ any) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.emitted = append(c.emitted, event)
	return nil
}

func (c *channelMock) On(event, _ string, handler realtime.Handler) func() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.handlers[event] = handler
	return scope.Once(func() {
		c.lock.Lock()
		defer c.lock.Unlock()
		delete(c.handlers, event)
	})
}

func (c *channelMock) OnState(key string, fn func(realtime.State)) func() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.watchers[key] = fn
	return scope.Once(func() {
		c.lock.Lock()
		defer c.lock.Unlock()
		delete(c.watchers, key)
	})
}

func (c *channelMock) push(t *testing.T, event string, p realtime.TypingPayload) {
	t.Helper()

	data, err := json.Marshal(p)
	require.NoError(t, err)

	c.lock.Lock()
	h := c.handlers[event]
	c.lock.Unlock()

	if h != nil {
		h(data)
	}
}

func (c *channelMock) setState(s realtime.State) {
	c.lock.Lock()
	watchers := make([]func(realtime.State), 0, len(c.watchers))
	for _, fn := range c.watchers {
		watchers = append(watchers, fn)
	}
	c.lock.Unlock()

	for _, fn := range watchers {
		fn(s)
	}
}

func (c *channelMock) Emitted() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.emitted...)
}

func (c *channelMock) Listeners() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.handlers) + len(c.watchers)
}

var me = entity.User{ID: "artist-1", Name: "Ana", Role: entity.RoleArtist}

func newTracker(t *testing.T) (*typing.Tracker, *channelMock, clockwork.FakeClock) {
	t.Helper()

	ch := newChannelMock()
	clock := clockwork.NewFakeClock()
	tracker := typing.NewTracker("booking-1", me, ch, clock, typing.DefaultTimeout)
	tracker.Start()
	t.Cleanup(tracker.Close)

	return tracker, ch, clock
}

func TestTracker_StartIsSentOncePerBurst(t *testing.T) {
	tracker, ch, clock := newTracker(t)

	tracker.InputChanged("h")
	tracker.InputChanged("he")
	clock.Advance(2 * time.Second)
	tracker.InputChanged("hel")

	assert.Equal(t, []string{realtime.EventTyping}, ch.Emitted())
	assert.True(t, tracker.Active())

	// the last keystroke restarted the timer, so 2s more is not enough
	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{realtime.EventTyping}, ch.Emitted())

	clock.Advance(time.Second)
	assert.EventuallyWithT(t, func(t *assert.CollectT) {
		assert.Equal(t, []string{realtime.EventTyping, realtime.EventStopTyping}, ch.Emitted())
	}, time.Second, 5*time.Millisecond)
	assert.False(t, tracker.Active())

	tracker.InputChanged("hello")
	assert.Equal(t, []string{realtime.EventTyping, realtime.EventStopTyping, realtime.EventTyping}, ch.Emitted())
}

func TestTracker_StopIsImmediate(t *testing.T) {
	tracker, ch, clock := newTracker(t)

	tracker.InputChanged("on my way")
	tracker.Stop()
	tracker.Stop()

	assert.Equal(t, []string{realtime.EventTyping, realtime.EventStopTyping}, ch.Emitted())

	// the cancelled timer must not fire a second stop
	clock.Advance(typing.DefaultTimeout)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{realtime.EventTyping, realtime.EventStopTyping}, ch.Emitted())
}

func TestTracker_ClearingInputStopsTyping(t *testing.T) {
	tracker, ch, _ := newTracker(t)

	tracker.InputChanged("x")
	tracker.InputChanged("")

	assert.Equal(t, []string{realtime.EventTyping, realtime.EventStopTyping}, ch.Emitted())
	assert.False(t, tracker.Active())
}

func TestTracker_RemoteTypingNeverExpiresLocally(t *testing.T) {
	tracker, ch, clock := newTracker(t)

	ch.push(t, realtime.EventUserTyping, realtime.TypingPayload{UserID: "contractor-1", Name: "Caio"})
	ch.push(t, realtime.EventUserTyping, realtime.TypingPayload{UserID: me.ID, Name: me.Name})

	clock.Advance(time.Minute)

	assert.Equal(t, []typing.RemoteTyper{{UserID: "contractor-1", Name: "Caio"}}, tracker.Typing())

	ch.push(t, realtime.EventUserStopTyping, realtime.TypingPayload{UserID: "contractor-1"})
	assert.Empty(t, tracker.Typing())
}

func TestTracker_DisconnectClearsRemoteTyping(t *testing.T) {
	tracker, ch, _ := newTracker(t)

	var seen [][]typing.RemoteTyper
	tracker.OnChange(func(typers []typing.RemoteTyper) {
		seen = append(seen, typers)
	})

	ch.push(t, realtime.EventUserTyping, realtime.TypingPayload{UserID: "contractor-1", Name: "Caio"})
	ch.push(t, realtime.EventUserTyping, realtime.TypingPayload{UserID: "manager-7", Name: "Bia"})
	require.Len(t, tracker.Typing(), 2)

	ch.setState(realtime.StateReconnecting)

	assert.Empty(t, tracker.Typing())
	require.Len(t, seen, 3)
	assert.Empty(t, seen[2])
}

func TestTracker_CloseReleasesListeners(t *testing.T) {
	ch := newChannelMock()
	tracker := typing.NewTracker("booking-1", me, ch, clockwork.NewFakeClock(), 0)
	tracker.Start()

	tracker.InputChanged("typing")
	tracker.Close()
	tracker.Close()

	assert.Equal(t, 0, ch.Listeners())
	assert.Equal(t, []string{realtime.EventTyping, realtime.EventStopTyping}, ch.Emitted())

	tracker.InputChanged("after close")
	assert.Equal(t, []string{realtime.EventTyping, realtime.EventStopTyping}, ch.Emitted())
}
