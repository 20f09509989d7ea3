// Package notify fans newly created entries out to subscriber channels.
// Updates to existing entries do not notify; only genuinely new entries
// do.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"reedy/reader/internal/database"
	"reedy/reader/internal/models"
)

// Publisher delivers one serialized message to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Renderer produces the display markup for one entry. Rendering is
// owned by the web layer; this core treats it as opaque.
type Renderer interface {
	Render(entry *models.Entry) (string, error)
}

// Message is the payload published per subscription when a feed gains
// new entries.
type Message struct {
	User         int64    `json:"user"`
	Feed         int64    `json:"feed"`
	Subscription int64    `json:"subscription"`
	Entries      []string `json:"entries"`
}

// Notifier renders new entries and publishes one message per
// subscription to the feed.
type Notifier struct {
	store    *database.DB
	pub      Publisher
	renderer Renderer
	prefix   string
}

// NewNotifier creates a notifier. prefix namespaces the pub/sub
// channels.
func NewNotifier(store *database.DB, pub Publisher, renderer Renderer, prefix string) *Notifier {
	return &Notifier{store: store, pub: pub, renderer: renderer, prefix: prefix}
}

// FeedUpdated publishes the given newly created entries to every
// subscription of the feed: always to the subscription-scoped channel,
// and to the user-scoped channel unless the subscription opts out.
func (n *Notifier) FeedUpdated(ctx context.Context, feed *models.Feed, entryIDs []int64) {
	if len(entryIDs) == 0 {
		return
	}

	entries, err := n.store.GetEntriesByIDs(ctx, entryIDs)
	if err != nil {
		log.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to load entries for notification")
		return
	}

	rendered := make([]string, 0, len(entries))
	for i := range entries {
		markup, err := n.renderer.Render(&entries[i])
		if err != nil {
			log.Error().Err(err).Int64("entry_id", entries[i].ID).Msg("Failed to render entry")
			continue
		}
		rendered = append(rendered, markup)
	}
	if len(rendered) == 0 {
		return
	}

	subs, err := n.store.ListSubscriptions(ctx, feed.ID)
	if err != nil {
		log.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to load subscriptions for notification")
		return
	}

	for _, sub := range subs {
		payload, err := json.Marshal(Message{
			User:         sub.UserID,
			Feed:         feed.ID,
			Subscription: sub.ID,
			Entries:      rendered,
		})
		if err != nil {
			log.Error().Err(err).Int64("subscription_id", sub.ID).Msg("Failed to marshal notification")
			continue
		}

		channels := []string{fmt.Sprintf("sub:%d", sub.ID)}
		if !sub.Exclude {
			channels = append(channels, fmt.Sprintf("user:%d", sub.UserID))
		}

		for _, channel := range channels {
			if err := n.pub.Publish(ctx, n.prefix+channel, payload); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("Failed to publish notification")
			}
		}
	}

	log.Debug().
		Int64("feed_id", feed.ID).
		Int("entries", len(rendered)).
		Int("subscriptions", len(subs)).
		Msg("Published feed notifications")
}

// RedisPublisher publishes messages over redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects a publisher to the given redis address.
func NewRedisPublisher(addr string) *RedisPublisher {
	return &RedisPublisher{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// Close releases the underlying redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
