package message

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"
)

func addMiddlewares(router *message.Router, logger watermill.LoggerAdapter) {
	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(bookingContextMiddleware)
	router.AddMiddleware(handlerLogMiddleware)
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      5,
		InitialInterval: time.Millisecond * 100,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Logger:          logger,
	}.Middleware)
}

// eventFields are the parts of every lifecycle event that identify it in logs.
type eventFields struct {
	Header struct {
		IdempotencyKey string `json:"idempotency_key"`
	} `json:"header"`
	BookingID string `json:"booking_id"`
}

// bookingContextMiddleware puts the correlation id and a logger scoped to the
// event's booking into the message context.
func bookingContextMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		correlationID := middleware.MessageCorrelationID(msg)
		if correlationID == "" {
			correlationID = "gen_" + shortuuid.New()
		}
		ctx := log.ContextWithCorrelationID(msg.Context(), correlationID)

		fields := logrus.Fields{
			"message_uuid":   msg.UUID,
			"correlation_id": correlationID,
			"event_name":     msg.Metadata.Get("name"),
			"handler":        message.HandlerNameFromCtx(ctx),
		}

		var e eventFields
		if err := json.Unmarshal(msg.Payload, &e); err == nil {
			if e.BookingID != "" {
				fields["booking_id"] = e.BookingID
			}
			if e.Header.IdempotencyKey != "" {
				fields["idempotency_key"] = e.Header.IdempotencyKey
			}
		}

		msg.SetContext(log.ToContext(ctx, logrus.WithFields(fields)))

		return next(msg)
	}
}

func handlerLogMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		logger := log.FromContext(msg.Context())
		start := time.Now()

		msgs, err := next(msg)

		logger = logger.WithField("duration", time.Since(start))
		if err != nil {
			logger.WithError(err).Error("Booking event handling failed")
			return msgs, err
		}
		logger.Debug("Booking event handled")

		return msgs, nil
	}
}
