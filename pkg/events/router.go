package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TopicTranscript carries every appended transcript entry.
const TopicTranscript = "transcript"

// EventRouter wires a watermill publisher/subscriber pair to named handlers.
// Without explicit transports it runs on an in-process go channel.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	verbose    bool
}

type EventRouterOption func(*EventRouter)

func WithPublisher(p message.Publisher) EventRouterOption {
	return func(r *EventRouter) { r.Publisher = p }
}

func WithSubscriber(s message.Subscriber) EventRouterOption {
	return func(r *EventRouter) { r.Subscriber = s }
}

func WithLogger(l watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) { r.logger = l }
}

func WithVerbose(v bool) EventRouterOption {
	return func(r *EventRouter) { r.verbose = v }
}

func NewEventRouter(opts ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{}
	for _, o := range opts {
		o(ret)
	}
	if ret.logger == nil {
		ret.logger = NewWatermillLogger(log.Logger)
	}

	if ret.Publisher == nil || ret.Subscriber == nil {
		goPubSub := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, ret.logger)
		if ret.Publisher == nil {
			ret.Publisher = goPubSub
		}
		if ret.Subscriber == nil {
			ret.Subscriber = goPubSub
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "create watermill router")
	}
	ret.router = router
	return ret, nil
}

type handlerConfig struct {
	subscriber message.Subscriber
}

type HandlerOption func(*handlerConfig)

// WithHandlerSubscriber gives a handler its own subscriber, e.g. a separate
// redis consumer group so it sees every message instead of a share.
func WithHandlerSubscriber(s message.Subscriber) HandlerOption {
	return func(c *handlerConfig) { c.subscriber = s }
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.AddHandlerWithOptions(name, topic, f)
}

func (e *EventRouter) AddHandlerWithOptions(name string, topic string, f func(msg *message.Message) error, opts ...HandlerOption) {
	cfg := handlerConfig{subscriber: e.Subscriber}
	for _, o := range opts {
		o(&cfg)
	}
	if e.verbose {
		log.Debug().Str("handler", name).Str("topic", topic).Msg("adding handler")
	}
	e.router.AddNoPublisherHandler(name, topic, cfg.subscriber, f)
}

// Run blocks until ctx is done or the router is closed.
func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

// Close stops the router and the transports. Transport close errors are
// logged only.
func (e *EventRouter) Close() error {
	if err := e.router.Close(); err != nil {
		return errors.Wrap(err, "close router")
	}
	if err := e.Publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("close publisher")
	}
	if any(e.Subscriber) != any(e.Publisher) {
		if err := e.Subscriber.Close(); err != nil {
			log.Warn().Err(err).Msg("close subscriber")
		}
	}
	return nil
}

// DumpRawEvents logs every payload at debug level.
func (e *EventRouter) DumpRawEvents(msg *message.Message) error {
	defer msg.Ack()
	ev := log.Debug().Str("uuid", msg.UUID).Str("session_id", SessionOf(msg))
	if json.Valid(msg.Payload) {
		ev = ev.RawJSON("payload", msg.Payload)
	} else {
		ev = ev.Bytes("payload", msg.Payload)
	}
	ev.Msg("raw event")
	return nil
}
