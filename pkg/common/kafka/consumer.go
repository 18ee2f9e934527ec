package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/synaptica-ai/triage/pkg/common/logger"
	"github.com/synaptica-ai/triage/pkg/common/models"
)

const (
	defaultMinBackoff = 200 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

type Consumer struct {
	reader     *kafka.Reader
	minBackoff time.Duration
	maxBackoff time.Duration
}

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})

	return &Consumer{reader: reader, minBackoff: defaultMinBackoff, maxBackoff: defaultMaxBackoff}
}

// Consume runs handler for every event until ctx is cancelled. Undecodable
// messages are committed and skipped. A failing handler is retried with
// backoff until it succeeds: the reader hands out the next offset on the
// following fetch, and committing that one would cover the failed message
// too. If ctx ends mid-retry the message stays uncommitted and is delivered
// again after a restart.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	fetchDelay := c.minBackoff
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			logger.Log.WithError(err).WithField("retry_in", fetchDelay.String()).Error("Failed to fetch message")
			if err := sleep(ctx, fetchDelay); err != nil {
				return err
			}
			fetchDelay = nextBackoff(fetchDelay, c.maxBackoff)
			continue
		}
		fetchDelay = c.minBackoff

		event, err := Decode(message)
		if err != nil {
			logger.Log.WithError(err).WithField("offset", message.Offset).Error("Failed to unmarshal event")
			c.reader.CommitMessages(ctx, message)
			continue
		}

		if err := c.handle(ctx, event, handler); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			logger.Log.WithError(err).Error("Failed to commit message")
		}
	}
}

// handle calls handler until it succeeds. It only returns an error when ctx
// is done.
func (c *Consumer) handle(ctx context.Context, event models.Event, handler EventHandler) error {
	delay := c.minBackoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, event)
		if err == nil {
			return nil
		}
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
			"attempt":    attempt,
		}).Error("Failed to process event")

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = nextBackoff(delay, c.maxBackoff)
	}
}

func nextBackoff(d, limit time.Duration) time.Duration {
	d *= 2
	if d > limit {
		return limit
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Decode parses a message value into an event.
func Decode(message kafka.Message) (models.Event, error) {
	var event models.Event
	err := json.Unmarshal(message.Value, &event)
	return event, err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
