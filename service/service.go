package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigs/booking"
	"gigs/clients"
	"gigs/config"
	"gigs/entity"
	"gigs/event"
	"gigs/http"
	"gigs/message"
	"gigs/payment"
	"gigs/readmodel"
	"gigs/realtime"
	"gigs/scope"
	"gigs/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	httpAddr string

	session       *session.Session
	channel       *realtime.Channel
	reconciler    *payment.Reconciler
	conversations *conversations
	scope         *scope.Scope

	msgRouter  *message.Router
	httpRouter *echo.Echo
}

func New(
	cfg config.Config,
	logger watermill.LoggerAdapter,
	redisClient *redis.Client,
) (*Service, error) {
	user, err := cfg.User()
	if err != nil {
		return nil, err
	}

	sess := session.New(cfg.AuthToken, user)
	api := clients.New(cfg.APIURL, sess)
	clock := clockwork.NewRealClock()

	pubSub := message.NewGoChannelPubSub(logger)
	if redisClient != nil {
		pubSub, err = message.NewRedisPubSub(redisClient, logger)
		if err != nil {
			return nil, err
		}
	}

	eventBus, err := message.NewEventBus(pubSub.Publisher, logger)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}

	machine := booking.NewMachine(api, eventBus, clock)

	channel := realtime.NewChannel(realtime.Config{
		URL:     cfg.SocketURL,
		Session: sess,
		Clock:   clock,
	})

	conversations := newConversations(machine, channel, api, sess.User, clock, cfg.TypingTimeout)
	reconciler := payment.NewReconciler(api, machine, eventBus, clock, cfg.PollInterval)
	activity := readmodel.NewActivityFeed()

	msgRouter, err := message.NewRouter(message.RouterDeps{
		Logger:   logger,
		PubSub:   pubSub,
		Handler:  event.NewHandler(conversations),
		Activity: activity,
	})
	if err != nil {
		return nil, fmt.Errorf("creating message router: %w", err)
	}

	s := &Service{
		httpAddr:      cfg.HTTPAddr,
		session:       sess,
		channel:       channel,
		reconciler:    reconciler,
		conversations: conversations,
		scope:         scope.New(),
		msgRouter:     msgRouter,
	}

	s.httpRouter = http.NewRouter(http.Deps{
		Session:       sess,
		Bookings:      machine,
		Lister:        api,
		Payments:      s,
		Conversations: conversations,
		Connection:    channel,
		Activity:      activity,
	})

	s.scope.Add(sess.OnInvalidate(s.logout))

	return s, nil
}

// logout tears down everything that acts on behalf of the user once the
// session is no longer valid.
func (s *Service) logout() {
	s.channel.Disconnect()
	s.reconciler.Close()
	s.conversations.CloseAll()
}

// Pay starts a payment and keeps polling it after the request that started
// it has returned.
func (s *Service) Pay(ctx context.Context, bookingID string, method entity.PaymentMethod) (entity.PaymentAttempt, error) {
	attempt, release, err := s.reconciler.Create(context.WithoutCancel(ctx), bookingID, method)
	if err != nil {
		return entity.PaymentAttempt{}, err
	}
	s.scope.Add(release)

	return attempt, nil
}

func (s *Service) Polling(bookingID string) bool {
	return s.reconciler.Polling(bookingID)
}

func (s *Service) Run(ctx context.Context) error {
	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.msgRouter.Run(runCtx); err != nil {
			return fmt.Errorf("running messaging router: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		// Wait for message router
		<-s.msgRouter.Running()

		// chat falls back to REST while the channel is down
		if err := s.channel.Connect(runCtx); err != nil {
			logrus.WithError(err).Warn("Realtime channel unavailable")
		}

		return nil
	})

	g.Go(func() error {
		<-s.msgRouter.Running()

		logrus.Info("Starting HTTP server...")
		err := s.httpRouter.Start(s.httpAddr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logrus.Info("Shutting down HTTP server...")
		if err := s.httpRouter.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}

		s.scope.Close()
		s.logout()

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("waiting for shutdown: %w", err)
	}
	logrus.Info("Shutdown complete.")

	return nil
}
