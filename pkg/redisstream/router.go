package redisstream

import (
	"context"
	"fmt"
	"strings"

	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/go-go-golems/smartsql-chat/pkg/events"
	"github.com/rs/zerolog/log"
)

// BuildRouter returns an event router on Redis Streams when enabled, and an
// in-process router otherwise.
func BuildRouter(s Settings, verbose bool) (*events.EventRouter, error) {
	if !s.Enabled {
		return events.NewEventRouter(events.WithVerbose(verbose))
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := events.NewWatermillLogger(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "redis subscriber")
	}

	return events.NewEventRouter(
		events.WithPublisher(message.Publisher(pub)),
		events.WithSubscriber(message.Subscriber(sub)),
		events.WithLogger(logger),
		events.WithVerbose(verbose),
	)
}

// BuildGroupSubscriber returns a subscriber bound to its own consumer group,
// for use with events.WithHandlerSubscriber.
func BuildGroupSubscriber(addr, group, consumer string) (message.Subscriber, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := events.NewWatermillLogger(log.Logger)
	return rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: group,
		Consumer:      consumer,
	}, logger)
}

// HandlerGroup names the consumer group of one handler under the base group.
func HandlerGroup(base, handler string) string {
	return fmt.Sprintf("%s-%s", base, handler)
}

// HandlerOptions isolates handler in its own consumer group when redis is
// enabled, so every handler sees every entry. It returns nil otherwise.
func HandlerOptions(ctx context.Context, s Settings, topic, handler string) ([]events.HandlerOption, error) {
	if !s.Enabled {
		return nil, nil
	}
	group := HandlerGroup(s.Group, handler)
	if err := EnsureGroupAtTail(ctx, s.Addr, topic, group); err != nil {
		return nil, err
	}
	sub, err := BuildGroupSubscriber(s.Addr, group, s.Consumer)
	if err != nil {
		return nil, errors.Wrapf(err, "subscriber for %s", handler)
	}
	return []events.HandlerOption{events.WithHandlerSubscriber(sub)}, nil
}

// EnsureGroupAtTail creates the consumer group at the stream tail ($) if it
// does not exist yet, so a new session does not replay old entries.
func EnsureGroupAtTail(ctx context.Context, addr, stream, group string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create group %s on %s", group, stream)
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
