package reconciler

import (
	"context"
	"encoding/json"

	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// OutcomePublisher receives the terminal event of every sync run so that
// downstream consumers (CRM activity feeds, alerting) can react to sync
// outcomes without polling.
type OutcomePublisher interface {
	PublishSyncOutcome(ctx context.Context, event domain.ProgressEvent)
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaOutcomePublisher writes terminal sync events to a kafka topic, keyed
// by connection id so per-connection ordering is preserved.  Publishing is
// fire-and-forget: a broker outage must never fail a sync that otherwise
// succeeded.
type KafkaOutcomePublisher struct {
	writer kafkaWriter
}

func NewKafkaOutcomePublisher(writer *kafka.Writer) *KafkaOutcomePublisher {
	return &KafkaOutcomePublisher{writer: writer}
}

func (kop *KafkaOutcomePublisher) PublishSyncOutcome(ctx context.Context, event domain.ProgressEvent) {

	message, err := json.Marshal(event)
	if err != nil {
		logger.LogErrorWithConnectionID("Unable to marshal sync outcome event", err, event.ConnectionID)
		metrics.syncOutcomePublishErrs.Inc()
		return
	}

	err = kop.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ConnectionID),
		Value: message,
	})
	if err != nil {
		logger.LogErrorWithConnectionID("Unable to publish sync outcome event", err, event.ConnectionID)
		metrics.syncOutcomePublishErrs.Inc()
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"connection_id": event.ConnectionID,
		"state":         event.State}).Debug("Published sync outcome event")
}

// NoopOutcomePublisher stands in when no kafka brokers are configured.
type NoopOutcomePublisher struct {
}

func (nop *NoopOutcomePublisher) PublishSyncOutcome(ctx context.Context, event domain.ProgressEvent) {
}
