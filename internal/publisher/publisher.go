// Package publisher feeds the Redis-stream work queue and the best-effort
// notification fan-out.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/guarzo/killfeed-indexer/internal/alert"
	"github.com/guarzo/killfeed-indexer/internal/metrics"
)

// Topics carried on the Redis streams.
type Topics struct {
	Raw      string // work queue consumed by the pipeline worker
	Enriched string // notification fan-out: enriched killmails
	Alerts   string // notification fan-out: generated alerts
}

// DefaultTopics returns the stream names used when config leaves them unset.
func DefaultTopics() Topics {
	return Topics{
		Raw:      "killmails-raw",
		Enriched: "killmails-enriched",
		Alerts:   "killmail-alerts",
	}
}

// Publisher publishes killmail payloads and notifications to Redis Streams.
type Publisher struct {
	pub         message.Publisher
	redisClient redis.UniversalClient
	topics      Topics
}

// New creates a new Publisher.
func New(redisClient redis.UniversalClient, topics Topics) (*Publisher, error) {
	logger := watermill.NewSlogLogger(nil)

	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		pub:         pub,
		redisClient: redisClient,
		topics:      topics,
	}, nil
}

// PublishRaw enqueues a raw killmail payload for the pipeline worker. Unlike
// the notification topics, a failure here matters: the queue is the unit of
// durable intake.
func (p *Publisher) PublishRaw(ctx context.Context, payload []byte) error {
	start := time.Now()
	msgUUID := watermill.NewUUID()
	msg := message.NewMessage(msgUUID, payload)

	err := p.pub.Publish(p.topics.Raw, msg)
	duration := time.Since(start)

	if err != nil {
		slog.Error("raw publish failed",
			"msg_uuid", msgUUID,
			"duration_ms", duration.Milliseconds(),
			"err", err,
		)
		return err
	}

	slog.Debug("raw publish ok",
		"msg_uuid", msgUUID,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// PublishEnriched fans out an enriched killmail. Best-effort: a failure is
// logged and counted, never propagated. Persistence is the durability
// boundary, this is a notification convenience.
func (p *Publisher) PublishEnriched(v any) {
	p.publishJSON(p.topics.Enriched, v)
}

// PublishAlert fans out a generated alert, best-effort.
func (p *Publisher) PublishAlert(a *alert.Alert) {
	p.publishJSON(p.topics.Alerts, a)
}

func (p *Publisher) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		metrics.PublishFailures.Inc()
		slog.Warn("fan-out marshal failed", "topic", topic, "err", err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pub.Publish(topic, msg); err != nil {
		metrics.PublishFailures.Inc()
		slog.Warn("fan-out publish failed", "topic", topic, "err", err)
	}
}

// QueueLength returns the number of messages in the raw work queue.
func (p *Publisher) QueueLength(ctx context.Context) (int64, error) {
	return p.redisClient.XLen(ctx, p.topics.Raw).Result()
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}
