package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gigs/chat"
	"gigs/entity"
	"gigs/typing"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/jonboulle/clockwork"
)

type bookingSource interface {
	Get(bookingID string) (entity.Booking, bool)
	Load(ctx context.Context, bookingID string) (entity.Booking, error)
}

type chatChannel interface {
	chat.Channel
	typing.Channel
}

type conversation struct {
	sync    *chat.Synchronizer
	tracker *typing.Tracker
}

func (c *conversation) close() {
	c.tracker.Close()
	c.sync.Close()
}

// conversations keeps one chat synchronizer and typing tracker per booking
// whose chat is open. It opens them lazily on first use or when the booking
// is confirmed, and closes them when the booking leaves the chat statuses.
type conversations struct {
	bookings      bookingSource
	channel       chatChannel
	api           chat.API
	user          func() entity.User
	clock         clockwork.Clock
	typingTimeout time.Duration

	mu    sync.Mutex
	open  map[string]*conversation
	locks map[string]*sync.Mutex
}

func newConversations(
	bookings bookingSource,
	channel chatChannel,
	api chat.API,
	user func() entity.User,
	clock clockwork.Clock,
	typingTimeout time.Duration,
) *conversations {
	return &conversations{
		bookings:      bookings,
		channel:       channel,
		api:           api,
		user:          user,
		clock:         clock,
		typingTimeout: typingTimeout,
		open:          make(map[string]*conversation),
		locks:         make(map[string]*sync.Mutex),
	}
}

func (c *conversations) lockFor(bookingID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.locks[bookingID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[bookingID] = l
	}
	return l
}

func (c *conversations) get(ctx context.Context, bookingID string) (*conversation, error) {
	l := c.lockFor(bookingID)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	conv, ok := c.open[bookingID]
	c.mu.Unlock()
	if ok {
		return conv, nil
	}

	b, ok := c.bookings.Get(bookingID)
	if !ok {
		var err error
		b, err = c.bookings.Load(ctx, bookingID)
		if err != nil {
			return nil, fmt.Errorf("loading booking %s: %w", bookingID, err)
		}
	}

	conv = &conversation{
		sync:    chat.NewSynchronizer(bookingID, c.channel, c.api),
		tracker: typing.NewTracker(bookingID, c.user(), c.channel, c.clock, c.typingTimeout),
	}

	// the synchronizer outlives the request that opened it
	if err := conv.sync.Start(context.WithoutCancel(ctx), b); err != nil {
		return nil, err
	}
	conv.tracker.Start()

	c.mu.Lock()
	c.open[bookingID] = conv
	c.mu.Unlock()

	log.FromContext(ctx).WithField("booking_id", bookingID).Info("Chat opened")

	return conv, nil
}

func (c *conversations) OpenChat(ctx context.Context, bookingID string) error {
	_, err := c.get(ctx, bookingID)
	return err
}

func (c *conversations) CloseChat(ctx context.Context, bookingID string) error {
	l := c.lockFor(bookingID)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	conv, ok := c.open[bookingID]
	delete(c.open, bookingID)
	c.mu.Unlock()

	if ok {
		conv.close()
		log.FromContext(ctx).WithField("booking_id", bookingID).Info("Chat closed")
	}

	return nil
}

func (c *conversations) CloseAll() {
	c.mu.Lock()
	open := c.open
	c.open = make(map[string]*conversation)
	c.mu.Unlock()

	for _, conv := range open {
		conv.close()
	}
}

func (c *conversations) Messages(ctx context.Context, bookingID string) ([]entity.Message, error) {
	conv, err := c.get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return conv.sync.Messages(), nil
}

// ensureAllowed closes the conversation of a booking that left the chat
// statuses before the close handler for its event ran.
func (c *conversations) ensureAllowed(ctx context.Context, bookingID string) error {
	b, ok := c.bookings.Get(bookingID)
	if !ok || b.Status.ChatAllowed() {
		return nil
	}

	if err := c.CloseChat(ctx, bookingID); err != nil {
		return err
	}
	return fmt.Errorf("booking %s is %s: %w", bookingID, b.Status, chat.ErrChatClosed)
}

// Send stops the local typing indicator before the message goes out.
func (c *conversations) Send(ctx context.Context, bookingID, content string) (chat.Route, error) {
	if err := c.ensureAllowed(ctx, bookingID); err != nil {
		return "", err
	}

	conv, err := c.get(ctx, bookingID)
	if err != nil {
		return "", err
	}

	conv.tracker.Stop()

	return conv.sync.Send(ctx, content)
}

func (c *conversations) InputChanged(ctx context.Context, bookingID, text string) error {
	if err := c.ensureAllowed(ctx, bookingID); err != nil {
		return err
	}

	conv, err := c.get(ctx, bookingID)
	if err != nil {
		return err
	}

	conv.tracker.InputChanged(text)
	return nil
}

func (c *conversations) Typing(ctx context.Context, bookingID string) ([]typing.RemoteTyper, error) {
	conv, err := c.get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return conv.tracker.Typing(), nil
}
