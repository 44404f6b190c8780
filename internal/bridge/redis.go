// Package bridge links hub instances through Redis Pub/Sub so that clients
// connected to different replicas still see each other's events.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Pub/Sub channel used when none is configured.
const DefaultChannel = "relay:events"

// Deliverer receives payloads published by other instances.
type Deliverer interface {
	Deliver(payload []byte) int
}

// envelope wraps a payload with the instance that accepted it.
type envelope struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

// Redis forwards payloads to, and receives them from, a Redis channel.
type Redis struct {
	cli     *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// Connect parses redisURL, pings the server and returns a bridge on channel.
func Connect(ctx context.Context, redisURL, channel string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cli := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(cli, channel, logger), nil
}

// New creates a bridge from an existing client.
func New(cli *redis.Client, channel string, logger *slog.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{
		cli:     cli,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin returns the instance id stamped on forwarded payloads.
func (r *Redis) Origin() string {
	return r.origin
}

// Forward publishes a locally accepted payload for the other instances.
func (r *Redis) Forward(ctx context.Context, payload []byte) error {
	b, err := json.Marshal(envelope{Origin: r.origin, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := r.cli.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Start subscribes to the channel and delivers payloads from other
// instances to d until ctx is cancelled. It returns once the subscription
// is confirmed.
func (r *Redis) Start(ctx context.Context, d Deliverer) error {
	sub := r.cli.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.handle(d, msg)
			}
		}
	}()

	r.logger.Info("bridge subscribed", "channel", r.channel, "origin", r.origin)
	return nil
}

func (r *Redis) handle(d Deliverer, msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Error("failed to parse bridge envelope", "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	d.Deliver(env.Payload)
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.cli.Close()
}
