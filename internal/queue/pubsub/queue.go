// Package pubsub implements the thumbnail job queue on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
)

// Config names the topic jobs are published to and the subscription workers
// receive from.
type Config struct {
	TopicName      string
	Subscription   string
	MaxOutstanding int
}

// Queue publishes jobs to a topic and hands received messages to Dequeue.
// Nacked messages are redelivered by Pub/Sub.
type Queue struct {
	topic      *pubsub.Topic
	sub        *pubsub.Subscription
	logger     *zap.Logger
	deliveries chan linkpreview.Delivery
	stopped    chan struct{}
	runErr     error
}

// New builds a Queue from an existing client.
func New(client *pubsub.Client, cfg Config, logger *zap.Logger) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if cfg.TopicName == "" || cfg.Subscription == "" {
		return nil, fmt.Errorf("topic and subscription are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sub := client.Subscription(cfg.Subscription)
	if cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	}
	return &Queue{
		topic:      client.Topic(cfg.TopicName),
		sub:        sub,
		logger:     logger.Named("pubsub_queue"),
		deliveries: make(chan linkpreview.Delivery),
		stopped:    make(chan struct{}),
	}, nil
}

// Enqueue publishes the job and waits for the server to accept it.
func (q *Queue) Enqueue(ctx context.Context, job linkpreview.ThumbnailJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"link_id": job.LinkID},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Run receives messages until ctx ends. Dequeue only yields deliveries while
// Run is active.
func (q *Queue) Run(ctx context.Context) error {
	defer close(q.stopped)
	err := q.sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		var job linkpreview.ThumbnailJob
		if err := json.Unmarshal(msg.Data, &job); err != nil || job.LinkID == "" {
			q.logger.Warn("discarding malformed job message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			msg.Ack()
			return
		}
		job.Attempt = 1
		if msg.DeliveryAttempt != nil {
			job.Attempt = *msg.DeliveryAttempt
		}
		delivery := linkpreview.Delivery{Job: job, Ack: msg.Ack, Nack: msg.Nack}
		select {
		case q.deliveries <- delivery:
		case <-msgCtx.Done():
			msg.Nack()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		q.runErr = err
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// Dequeue waits for the next received message.
func (q *Queue) Dequeue(ctx context.Context) (linkpreview.Delivery, error) {
	select {
	case <-ctx.Done():
		return linkpreview.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.stopped:
		if q.runErr != nil {
			return linkpreview.Delivery{}, fmt.Errorf("receiver stopped: %w", q.runErr)
		}
		return linkpreview.Delivery{}, errors.New("receiver stopped")
	case d := <-q.deliveries:
		return d, nil
	}
}

// Close flushes pending publishes.
func (q *Queue) Close() {
	q.topic.Stop()
}
