package message

import (
	"fmt"

	"gigs/event"
	"gigs/readmodel"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
)

type RouterDeps struct {
	Logger   watermill.LoggerAdapter
	PubSub   PubSub
	Handler  event.Handler
	Activity *readmodel.ActivityFeed
}

type Router struct {
	*message.Router
}

func NewRouter(deps RouterDeps) (*Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	addMiddlewares(router, deps.Logger)

	config := cqrs.EventProcessorConfig{
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return deps.PubSub.Subscriber(params.HandlerName)
		},
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return params.EventName, nil
		},
		Marshaler: cqrs.JSONMarshaler{
			GenerateName: cqrs.StructName,
		},
		Logger: deps.Logger,
	}

	ep, err := cqrs.NewEventProcessorWithConfig(router, config)
	if err != nil {
		return nil, fmt.Errorf("creating event processor: %w", err)
	}

	a := deps.Activity
	handlers := []cqrs.EventHandler{
		cqrs.NewEventHandler("open-chat-on-confirmed", deps.Handler.OpenChat),
		cqrs.NewEventHandler("close-chat-on-cancelled", deps.Handler.CloseChatOnCancel),
		cqrs.NewEventHandler("close-chat-on-disputed", deps.Handler.CloseChatOnDispute),

		cqrs.NewEventHandler("activity-requested", a.OnBookingRequested),
		cqrs.NewEventHandler("activity-accepted", a.OnBookingAccepted),
		cqrs.NewEventHandler("activity-rejected", a.OnBookingRejected),
		cqrs.NewEventHandler("activity-counter-offer", a.OnCounterOfferMade),
		cqrs.NewEventHandler("activity-confirmed", a.OnBookingConfirmed),
		cqrs.NewEventHandler("activity-checked-in", a.OnArtistCheckedIn),
		cqrs.NewEventHandler("activity-checked-out", a.OnArtistCheckedOut),
		cqrs.NewEventHandler("activity-reviewed", a.OnReviewSubmitted),
		cqrs.NewEventHandler("activity-cancelled", a.OnBookingCancelled),
		cqrs.NewEventHandler("activity-disputed", a.OnDisputeRaised),
		cqrs.NewEventHandler("activity-payment-failed", a.OnPaymentFailed),
	}

	if err := ep.AddHandlers(handlers...); err != nil {
		return nil, fmt.Errorf("adding handlers: %w", err)
	}

	return &Router{router}, nil
}
