package message

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const consumerGroupPrefix = "gigs."

// PubSub carries lifecycle events. In-process delivery is enough for a single
// session; Redis streams are used when other services consume the events.
type PubSub struct {
	Publisher message.Publisher
	subscribe func(handlerName string) (message.Subscriber, error)
}

func (p PubSub) Subscriber(handlerName string) (message.Subscriber, error) {
	return p.subscribe(handlerName)
}

func NewGoChannelPubSub(logger watermill.LoggerAdapter) PubSub {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, logger)

	return PubSub{
		Publisher: pubSub,
		subscribe: func(string) (message.Subscriber, error) {
			return pubSub, nil
		},
	}
}

func NewRedisPubSub(rdb *redis.Client, logger watermill.LoggerAdapter) (PubSub, error) {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		return PubSub{}, fmt.Errorf("creating redis publisher: %w", err)
	}

	return PubSub{
		Publisher: publisher,
		subscribe: func(handlerName string) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        rdb,
				ConsumerGroup: consumerGroupPrefix + handlerName,
			}, logger)
		},
	}, nil
}
