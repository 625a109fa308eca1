package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/marks/internal/model"
)

const (
	changeChannel = "marks:changes"
	authChannel   = "marks:auth"
)

// envelope wraps an event with the publishing instance's id so a bridge can
// ignore its own messages when they come back around.
type envelope struct {
	Origin string          `json:"origin"`
	Event  json.RawMessage `json:"event"`
}

// RedisBridge mirrors bus events across instances through Redis pub/sub, so
// a change made on one instance still reaches sessions connected elsewhere.
type RedisBridge struct {
	client *redis.Client
	bus    *Bus
	origin string
	logger *slog.Logger
}

// NewRedisBridge connects to Redis and attaches the bridge to the bus.
func NewRedisBridge(ctx context.Context, addr string, b *Bus, logger *slog.Logger) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	rb := &RedisBridge{
		client: client,
		bus:    b,
		origin: uuid.NewString(),
		logger: logger,
	}
	b.setForward(rb.forwardChange, rb.forwardAuth)
	return rb, nil
}

func (rb *RedisBridge) forwardChange(ev model.ChangeEvent) {
	rb.publish(changeChannel, ev)
}

func (rb *RedisBridge) forwardAuth(ev model.AuthEvent) {
	rb.publish(authChannel, ev)
}

func (rb *RedisBridge) publish(channel string, ev any) {
	raw, err := json.Marshal(ev)
	if err != nil {
		rb.logger.Error("marshal event", "error", err)
		return
	}
	payload, err := json.Marshal(envelope{Origin: rb.origin, Event: raw})
	if err != nil {
		rb.logger.Error("marshal envelope", "error", err)
		return
	}
	if err := rb.client.Publish(context.Background(), channel, payload).Err(); err != nil {
		rb.logger.Warn("publish to redis", "channel", channel, "error", err)
	}
}

// Run relays remote events into the local bus until ctx is cancelled.
func (rb *RedisBridge) Run(ctx context.Context) {
	sub := rb.client.Subscribe(ctx, changeChannel, authChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			rb.relay(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (rb *RedisBridge) relay(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		rb.logger.Warn("decode envelope", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == rb.origin {
		return
	}

	switch msg.Channel {
	case changeChannel:
		var ev model.ChangeEvent
		if err := json.Unmarshal(env.Event, &ev); err != nil {
			rb.logger.Warn("decode change event", "error", err)
			return
		}
		rb.bus.deliverChange(ev)
	case authChannel:
		var ev model.AuthEvent
		if err := json.Unmarshal(env.Event, &ev); err != nil {
			rb.logger.Warn("decode auth event", "error", err)
			return
		}
		rb.bus.deliverAuth(ev)
	}
}

// Close releases the Redis connection.
func (rb *RedisBridge) Close() error {
	rb.bus.setForward(nil, nil)
	return rb.client.Close()
}
