package collab

import (
	"context"
	"encoding/json"

	"github.com/collabdocs/collabdocs/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Bus message kinds.
const (
	KindBroadcast = "broadcast"
	KindEvict     = "evict"
	KindRevoke    = "revoke"
)

// BusMessage carries an encoded frame for the local members of DocID on
// every instance except Origin.
type BusMessage struct {
	Origin string `json:"origin"`
	Kind   string `json:"kind"`
	DocID  string `json:"docId"`
	Frame  []byte `json:"frame"`
}

// RedisBus fans room traffic out over Redis Pub/Sub, one channel per document.
type RedisBus struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb, prefix: "collab:doc:"}
}

func (b *RedisBus) channel(docID string) string { return b.prefix + docID }

// Publish sends a message to the channel of its document.
func (b *RedisBus) Publish(ctx context.Context, m BusMessage) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel(m.DocID), raw).Err()
}

// Subscribe listens on every document channel and calls fn for each message
// until ctx is done. ready, when non-nil, is closed once the subscription is
// confirmed by Redis.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(BusMessage), ready chan<- struct{}) error {
	pubsub := b.rdb.PSubscribe(ctx, b.channel("*"))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
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
			var bm BusMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil || bm.DocID == "" {
				logger.Warnw("dropping malformed bus message", "channel", msg.Channel)
				continue
			}
			fn(bm)
		}
	}
}
