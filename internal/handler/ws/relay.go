package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
)

const channelPrefix = "chat:conv:"

// envelope is what travels over Redis between instances
type envelope struct {
	Origin         string          `json:"origin"`
	Event          string          `json:"event"`
	ConversationID int64           `json:"conversation_id"`
	Seq            int64           `json:"seq,omitempty"`
	Frame          json.RawMessage `json:"frame"`
}

// RedisRelay publishes hub events to Redis and feeds events from other
// instances back into the local hub
type RedisRelay struct {
	client     *redis.Client
	instanceID string
}

// NewRedisRelay creates a relay. instanceID must be unique per process.
func NewRedisRelay(client *redis.Client, instanceID string) *RedisRelay {
	return &RedisRelay{client: client, instanceID: instanceID}
}

// Channel returns the pub/sub channel of a conversation
func Channel(conversationID int64) string {
	return fmt.Sprintf("%s%d", channelPrefix, conversationID)
}

// Publish implements Relay
func (r *RedisRelay) Publish(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(envelope{
		Origin:         r.instanceID,
		Event:          ev.Name,
		ConversationID: ev.ConversationID,
		Seq:            ev.Seq,
		Frame:          ev.Frame,
	})
	if err != nil {
		return fmt.Errorf("encoding relay envelope: %w", err)
	}

	if err := r.client.Publish(ctx, Channel(ev.ConversationID), payload).Err(); err != nil {
		metrics.ChatRedisPublishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("publishing to redis: %w", err)
	}
	metrics.ChatRedisPublishTotal.WithLabelValues("ok").Inc()
	return nil
}

// Run subscribes to every conversation channel and delivers foreign events to
// hub until ctx is cancelled
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s*: %w", channelPrefix, err)
	}
	metrics.ChatRedisSubscriptionActive.Set(1)
	defer metrics.ChatRedisSubscriptionActive.Set(0)

	logger.Info("Realtime relay subscribed", zap.String("pattern", channelPrefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := r.decode(msg)
			if err != nil {
				logger.Warn("Dropping malformed relay message",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			if ev == nil {
				continue
			}
			if err := hub.Deliver(ev); err != nil {
				logger.Warn("Failed to deliver relayed event", zap.Error(err))
			}
		}
	}
}

// decode returns nil for events published by this instance
func (r *RedisRelay) decode(msg *redis.Message) (*Event, error) {
	if !strings.HasPrefix(msg.Channel, channelPrefix) {
		return nil, fmt.Errorf("unexpected channel %q", msg.Channel)
	}
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		return nil, err
	}
	if env.Origin == r.instanceID {
		return nil, nil
	}
	return &Event{
		Name:           env.Event,
		ConversationID: env.ConversationID,
		Seq:            env.Seq,
		Frame:          env.Frame,
	}, nil
}
