package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

func cartMessage(id, sessionID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "cart",
		AggregateID:   sessionID,
		EventType:     "cart.item_added",
		Payload:       []byte(`{"session_id":"` + sessionID + `","item_count":1}`),
	}
}

func TestWorker_ProcessOnce(t *testing.T) {
	testCases := []struct {
		name         string
		errs         []error
		wantSent     int
		wantAttempts int
		wantFailed   bool
	}{
		{name: "first attempt", errs: nil, wantSent: 1, wantAttempts: 1},
		{name: "succeeds after retries", errs: []error{errors.New("attempt 1"), errors.New("attempt 2")}, wantSent: 1, wantAttempts: 3},
		{name: "dead letter after max attempts", errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}, wantAttempts: 3, wantFailed: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := &stubOutboxRepo{pending: []domain.OutboxMessage{cartMessage("msg-1", "sess-1")}}
			publisher := &stubPublisher{sequenceErrors: tc.errs}
			dlq := &capturingPublisher{}
			worker := NewWorker(repo, publisher,
				WithDLQPublisher(dlq),
				WithRetryBaseDelay(0),
				WithMaxAttempts(3),
			)

			assert.Equal(t, tc.wantSent, worker.ProcessOnce(context.Background()))
			assert.Equal(t, tc.wantAttempts, publisher.calls())
			if tc.wantFailed {
				assert.Empty(t, repo.sentIDs)
				assert.Equal(t, []string{"msg-1"}, repo.failedIDs)
				assert.Len(t, dlq.messages, 1)
				return
			}
			assert.Equal(t, []string{"msg-1"}, repo.sentIDs)
			assert.Empty(t, repo.failedIDs)
			assert.Empty(t, dlq.messages)
		})
	}
}

func TestWorker_ProcessOnce_CanceledContextKeepsPending(t *testing.T) {
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{cartMessage("msg-1", "sess-1")}}
	publisher := &stubPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Zero(t, NewWorker(repo, publisher).ProcessOnce(ctx))
	assert.Zero(t, publisher.calls())
	assert.Empty(t, repo.failedIDs)
}

type stubOutboxRepo struct {
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{
		PendingCount: len(s.pending),
	}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
}

func (s *stubPublisher) Publish(_ domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}

	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)

func TestWorker_Run_PublishesUntilCanceled(t *testing.T) {
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{cartMessage("msg-1", "sess-1")}}
	publisher := &stubPublisher{}
	worker := NewWorker(repo, publisher, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	require.Eventually(t, func() bool { return publisher.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_ProcessOnce_DLQRecordFormat(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{{
			ID:            "msg-4",
			AggregateType: "cart",
			AggregateID:   "sess-4",
			EventType:     "cart.cleared",
			Payload:       []byte(`{"item_count":0}`),
		}},
	}
	dlq := &capturingPublisher{}
	worker := NewWorker(repo, &stubPublisher{err: errors.New("broker down")},
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(1),
	)

	if sent := worker.ProcessOnce(context.Background()); sent != 0 {
		t.Fatalf("expected 0 sent, got %d", sent)
	}
	if len(dlq.messages) != 1 {
		t.Fatalf("expected 1 DLQ message, got %d", len(dlq.messages))
	}

	var record deadLetterRecord
	if err := json.Unmarshal(dlq.messages[0].Payload, &record); err != nil {
		t.Fatalf("decode dlq payload: %v", err)
	}
	if record.OutboxID != "msg-4" || record.AggregateID != "sess-4" {
		t.Fatalf("unexpected dlq record %+v", record)
	}
	if record.PublishError == "" || string(record.Payload) != `{"item_count":0}` {
		t.Fatalf("dlq record must carry error and original payload, got %+v", record)
	}
}

func TestWorker_Backoff(t *testing.T) {
	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(100*time.Millisecond))

	if got := worker.backoff(1); got != 100*time.Millisecond {
		t.Fatalf("attempt 1: got %s", got)
	}
	if got := worker.backoff(3); got != 400*time.Millisecond {
		t.Fatalf("attempt 3: got %s", got)
	}
	if got := worker.backoff(30); got != maxRetryDelay {
		t.Fatalf("attempt 30: got %s", got)
	}
}

type capturingPublisher struct {
	messages []domain.OutboxMessage
}

func (c *capturingPublisher) Publish(msg domain.OutboxMessage) error {
	c.messages = append(c.messages, msg)
	return nil
}
