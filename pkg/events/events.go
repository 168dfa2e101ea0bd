// Package events listens for upstream notifications that cached data for a
// route is out of date.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-redis/redis/v8"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// Channel is the pub/sub channel events are published on.
const Channel = "seo_events"

// Event types.
const (
	TypeContentChanged = "content_changed"
)

// Event is a decoded notification. Route and Routes may both be set.
type Event struct {
	Type   string   `mapstructure:"type" json:"type"`
	Route  string   `mapstructure:"route" json:"route,omitempty"`
	Routes []string `mapstructure:"routes" json:"routes,omitempty"`
}

// Targets returns every route the event names.
func (e Event) Targets() []string {
	var out []string
	if strings.TrimSpace(e.Route) != "" {
		out = append(out, e.Route)
	}
	for _, r := range e.Routes {
		if strings.TrimSpace(r) != "" {
			out = append(out, r)
		}
	}
	return out
}

// Invalidator drops cached state for a route.
type Invalidator interface {
	Invalidate(ctx context.Context, route string) error
}

// Subscriber applies content_changed events to a set of caches.
type Subscriber struct {
	client       *redis.Client
	channel      string
	invalidators []Invalidator
	logger       *logrus.Logger
}

func NewSubscriber(client *redis.Client, logger *logrus.Logger, invalidators ...Invalidator) *Subscriber {
	return &Subscriber{
		client:       client,
		channel:      Channel,
		invalidators: invalidators,
		logger:       logger,
	}
}

// Run consumes events until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Handle(ctx, msg.Payload); err != nil {
				s.logger.WithError(err).Error("Failed to handle event")
			}
		}
	}
}

// Handle decodes and applies a single message.
func (s *Subscriber) Handle(ctx context.Context, payload string) error {
	event, err := Decode(payload)
	if err != nil {
		return err
	}
	return s.Apply(ctx, event)
}

// Apply runs a decoded event against the invalidators. It needs no redis
// client, so single-process deployments call it directly.
func (s *Subscriber) Apply(ctx context.Context, event Event) error {
	if event.Type != TypeContentChanged {
		s.logger.WithField("type", event.Type).Debug("Ignoring event")
		return nil
	}

	var errs []error
	for _, route := range event.Targets() {
		for _, inv := range s.invalidators {
			if err := inv.Invalidate(ctx, route); err != nil {
				errs = append(errs, err)
			}
		}
		s.logger.WithField("route", route).Info("Invalidated cached suggestions")
	}
	return errors.Join(errs...)
}

// Decode parses an event message.
func Decode(payload string) (Event, error) {
	var raw map[string]interface{}
	if err := sonic.UnmarshalString(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	var event Event
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &event,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Event{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}

// Publish sends an event on the channel.
func Publish(ctx context.Context, client *redis.Client, event Event) error {
	payload, err := sonic.MarshalString(event)
	if err != nil {
		return err
	}
	return client.Publish(ctx, Channel, payload).Err()
}
