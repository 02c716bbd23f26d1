package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"simplepaes/internal/config"
	"simplepaes/pkg/types"
)

// Bus relays session events between server instances
type Bus interface {
	// Publish sends event to every subscribed instance, this one included
	Publish(ctx context.Context, event types.Event) error

	// Subscribe delivers received events to handler until ctx is done
	Subscribe(ctx context.Context, handler func(types.Event)) error

	Close() error
}

// RedisBus is a Bus on top of a redis pub/sub channel
// ARCHITECTURAL DISCOVERY: Redis only carries notifications. Every instance still reads
// session state from the shared store, so a dropped message costs one poll interval.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewRedisBus connects to redis and verifies the connection
func NewRedisBus(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*RedisBus, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisBus{
		client:  client,
		channel: cfg.Channel,
		logger:  logger.Named("events"),
	}, nil
}

// Publish implements Bus
func (b *RedisBus) Publish(ctx context.Context, event types.Event) error {
	if b.isClosed() {
		return ErrBusClosed
	}
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// Subscribe implements Bus. Undecodable messages are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(types.Event)) error {
	if b.isClosed() {
		return ErrBusClosed
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so no event published after
	// Subscribe returns its first message is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("subscribed to event channel", zap.String("channel", b.channel))

	messages := pubsub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return ErrBusClosed
			}
			event, err := Decode([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping event", zap.Error(err))
				continue
			}
			handler(event)
		case <-ctx.Done():
			return nil
		}
	}
}

// Close releases the redis connection pool
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

func (b *RedisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Encode serializes an event for the wire
func Encode(event types.Event) ([]byte, error) {
	if event.Type == "" || event.SessionID == "" {
		return nil, ErrInvalidEvent
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return data, nil
}

// Decode parses a wire event
func Decode(data []byte) (types.Event, error) {
	var event types.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return types.Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if event.Type == "" || event.SessionID == "" {
		return types.Event{}, ErrInvalidEvent
	}
	return event, nil
}
