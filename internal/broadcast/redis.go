package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis publishes events on a Redis pub/sub topic so agents in other processes see them.
type Redis struct {
	client *redis.Client
	topic  string
	logger *slog.Logger
}

// NewRedis creates a channel on the topic derived from namespace.
func NewRedis(client *redis.Client, namespace string, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		topic:  "storefront:session:" + namespace,
		logger: logger,
	}
}

// Topic returns the Redis channel name.
func (r *Redis) Topic() string {
	return r.topic
}

func (r *Redis) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("broadcast: encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.topic, payload).Err(); err != nil {
		return fmt.Errorf("broadcast: publish: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := r.client.Subscribe(ctx, r.topic)
	// Wait for the subscription confirmation so no event published after Subscribe
	// returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("broadcast: subscribe %s: %w", r.topic, err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.logger.Warn("broadcast: dropping malformed event", "topic", r.topic, "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op: the Redis client is owned by the caller.
func (r *Redis) Close() error {
	return nil
}
