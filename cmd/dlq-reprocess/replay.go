package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
	"github.com/vladislavdragonenkov/meenava/internal/messaging/kafka"
)

var errNotDeadLetter = errors.New("message is not an outbox dead letter")

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// dlqEnvelope — внешняя обёртка сообщения в DLQ topic.
type dlqEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// deadLetter — запись, которую outbox worker кладёт в payload.
type deadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

type replayer struct {
	cfg       config
	client    offsetClient
	source    partitionSource
	publisher domain.OutboxPublisher
	logger    *log.Entry
}

// Run просматривает партиции DLQ по возрастанию номера, пока не исчерпан лимит.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.client == nil || r.source == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if r.cfg.execute && r.publisher == nil {
		return total, fmt.Errorf("publisher is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		budget := r.cfg.limit - total.scanned
		if budget <= 0 {
			break
		}
		stats, err := r.drainPartition(ctx, partition, budget)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *replayer) drainPartition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.fromNewest {
		start = max(newest-int64(budget), oldest)
	}

	pc, err := r.source.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)
			stats.scanned++

			switch err := r.handle(msg); {
			case errors.Is(err, errPublish):
				return stats, err
			case err != nil:
				stats.skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip dlq message")
			default:
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

var errPublish = errors.New("publish replay")

func (r *replayer) handle(msg *sarama.ConsumerMessage) error {
	event, err := decodeDeadLetter(msg.Value)
	if err != nil {
		return err
	}

	entry := r.logger.WithFields(log.Fields{
		"partition":    msg.Partition,
		"offset":       msg.Offset,
		"outbox_id":    event.ID,
		"session_id":   event.AggregateID,
		"event_type":   event.EventType,
		"target_topic": r.cfg.targetTopic,
	})
	if !r.cfg.execute {
		entry.Info("dlq replay candidate")
		return nil
	}
	if err := r.publisher.Publish(event); err != nil {
		return fmt.Errorf("%w %s: %v", errPublish, event.ID, err)
	}
	entry.Info("dlq message replayed")
	return nil
}

// decodeDeadLetter восстанавливает исходное outbox-сообщение из записи DLQ.
func decodeDeadLetter(value []byte) (domain.OutboxMessage, error) {
	var envelope dlqEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return domain.OutboxMessage{}, errNotDeadLetter
	}

	var record deadLetter
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(record.Payload) == 0 {
		return domain.OutboxMessage{}, fmt.Errorf("dead letter has no original payload")
	}

	event := domain.OutboxMessage{
		ID:            firstNonEmpty(record.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(record.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(record.EventType, envelope.EventType),
		Payload:       record.Payload,
	}
	if event.AggregateType == kafka.AggregateTypeCart {
		var cartEvent kafka.CartEvent
		if err := json.Unmarshal(record.Payload, &cartEvent); err != nil {
			return domain.OutboxMessage{}, fmt.Errorf("decode cart event: %w", err)
		}
		if cartEvent.SessionID == "" {
			return domain.OutboxMessage{}, fmt.Errorf("cart event without session id")
		}
		event.AggregateID = firstNonEmpty(event.AggregateID, cartEvent.SessionID)
	}
	return event, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
