// Package worker consumes raw killmail payloads from the Redis-stream work
// queue and drives them through the ingestion pipeline.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/guarzo/killfeed-indexer/internal/pipeline"
)

// Config configures the worker.
type Config struct {
	RedisClient   redis.UniversalClient
	Pipeline      *pipeline.Pipeline
	Topic         string
	ConsumerGroup string
}

// QueueStats holds queue statistics.
type QueueStats struct {
	StreamLength int64
	Pending      int64
	Consumers    int64
}

// Worker consumes killmail payloads from Redis Streams and processes them.
type Worker struct {
	router        *message.Router
	pipeline      *pipeline.Pipeline
	redisClient   redis.UniversalClient
	topic         string
	consumerGroup string
}

// New creates a new Worker.
func New(cfg Config) (*Worker, error) {
	logger := watermill.NewSlogLogger(nil)

	sub, err := redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client:        cfg.RedisClient,
			ConsumerGroup: cfg.ConsumerGroup,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		router:        router,
		pipeline:      cfg.Pipeline,
		redisClient:   cfg.RedisClient,
		topic:         cfg.Topic,
		consumerGroup: cfg.ConsumerGroup,
	}

	router.AddNoPublisherHandler(
		"process-killmail",
		cfg.Topic,
		sub,
		w.handleKillmail,
	)

	return w, nil
}

// handleKillmail processes a single killmail message. Poison and invalid
// payloads are acked so they are never redelivered; storage failures are
// nacked for redelivery.
func (w *Worker) handleKillmail(msg *message.Message) error {
	start := time.Now()
	msgUUID := msg.UUID

	outcome := w.pipeline.Process(context.Background(), msg.Payload)
	duration := time.Since(start)

	switch outcome.Status {
	case pipeline.StatusPoison, pipeline.StatusInvalid:
		slog.Warn("worker dropped killmail",
			"msg_uuid", msgUUID,
			"status", outcome.Status,
			"err", outcome.Err,
		)
		return nil // ack: retrying cannot fix these
	case pipeline.StatusFailed:
		slog.Error("worker processing failed",
			"killmail_id", outcome.KillmailID,
			"msg_uuid", msgUUID,
			"duration_ms", duration.Milliseconds(),
			"err", outcome.Err,
		)
		// Delay before retry to avoid hammering on errors
		time.Sleep(5 * time.Second)
		return outcome.Err // will be redelivered
	}

	slog.Info("worker killmail done",
		"killmail_id", outcome.KillmailID,
		"msg_uuid", msgUUID,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// Run starts the worker. It blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Close closes the worker.
func (w *Worker) Close() error {
	return w.router.Close()
}

// QueueStats returns current queue statistics.
func (w *Worker) QueueStats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats

	length, err := w.redisClient.XLen(ctx, w.topic).Result()
	if err != nil {
		return stats, err
	}
	stats.StreamLength = length

	groups, err := w.redisClient.XInfoGroups(ctx, w.topic).Result()
	if err != nil {
		// Stream might not exist yet
		return stats, nil
	}

	for _, g := range groups {
		if g.Name == w.consumerGroup {
			stats.Pending = g.Pending
			stats.Consumers = g.Consumers
			break
		}
	}

	return stats, nil
}

// LogQueueStats logs current queue statistics.
func (w *Worker) LogQueueStats(ctx context.Context) {
	stats, err := w.QueueStats(ctx)
	if err != nil {
		slog.Warn("worker queue stats error", "err", err)
		return
	}

	slog.Info("worker queue stats",
		"stream_length", stats.StreamLength,
		"pending", stats.Pending,
		"consumers", stats.Consumers,
	)
}
