package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope outboxEnvelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if envelope.AggregateID != "sess-42" || envelope.EventType != string(EventTypeCartItemAdded) {
			t.Errorf("unexpected envelope %+v", envelope)
		}
		if string(envelope.Payload) != `{"item_count":1}` {
			t.Errorf("payload must be embedded as raw json, got %s", envelope.Payload)
		}
		return nil
	})

	producer := NewProducerWithClient(mockProducer, log.WithField("component", "kafka-outbox-publisher-test"))
	publisher := NewOutboxPublisher(producer, "")
	if publisher.Topic() != TopicCartEvents {
		t.Fatalf("expected default topic %s, got %s", TopicCartEvents, publisher.Topic())
	}

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: AggregateTypeCart,
		AggregateID:   "sess-42",
		EventType:     string(EventTypeCartItemAdded),
		Payload:       []byte(`{"item_count":1}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewProducerWithClient(mockProducer, log.WithField("component", "kafka-outbox-publisher-test"))
	publisher := NewOutboxPublisher(producer, TopicDeadLetterQueue)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: AggregateTypeCart,
		EventType:     string(EventTypeCartCleared),
		Payload:       []byte(`{}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicCartEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
