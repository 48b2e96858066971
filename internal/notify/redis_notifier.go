package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultQueue = "notifications:queue"

type queuedNotification struct {
	RecipientID uuid.UUID         `json:"recipient_id"`
	Template    string            `json:"template"`
	Vars        map[string]string `json:"vars,omitempty"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
}

// RedisNotifier pushes notification requests onto a Redis list that the
// delivery service drains.
type RedisNotifier struct {
	client *redis.Client
	queue  string
}

func NewRedisNotifier(client *redis.Client, queue string) *RedisNotifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RedisNotifier{client: client, queue: queue}
}

func (n *RedisNotifier) Enqueue(ctx context.Context, recipientID uuid.UUID, template string, vars map[string]string) error {
	payload, err := json.Marshal(queuedNotification{
		RecipientID: recipientID,
		Template:    template,
		Vars:        vars,
		EnqueuedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := n.client.LPush(ctx, n.queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}
