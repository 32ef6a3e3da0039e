package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/KeightAI/infra-ai-forge/internal/domain"
)

const publishTimeout = 2 * time.Second

// Event announces a job reaching a terminal status.
type Event struct {
	JobID        string                  `json:"job_id"`
	Status       domain.DeploymentStatus `json:"status"`
	Mode         domain.Mode             `json:"mode"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	OccurredAt   time.Time               `json:"occurred_at"`
}

// Notifier delivers job events to interested listeners.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  publisher
	channel string
	timeout time.Duration
	now     func() time.Time
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(addr, password string, db int, channel string) (*RedisPublisher, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis address required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisPublisher(client, channel), nil
}

func newRedisPublisher(client publisher, channel string) *RedisPublisher {
	if strings.TrimSpace(channel) == "" {
		channel = "deployments:events"
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: publishTimeout,
		now:     time.Now,
	}
}

// Notify publishes the JSON encoded event.
func (p *RedisPublisher) Notify(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
