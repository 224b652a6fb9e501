package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	repo := NewOutboxRepository()

	saved, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "cart",
		AggregateID:   "sess-1",
		EventType:     "cart.item_added",
		Payload:       []byte(`{"item_count":1}`),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != saved.ID {
		t.Fatalf("expected the saved message, got %+v", pending)
	}
}

func TestOutboxRepository_PullPreservesOrder(t *testing.T) {
	repo := NewOutboxRepository()

	for i := 0; i < 20; i++ {
		if _, err := repo.Enqueue(domain.OutboxMessage{ID: fmt.Sprintf("msg-%02d", i), AggregateID: "sess-1"}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	pending, err := repo.PullPending(5)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	for i, msg := range pending {
		if want := fmt.Sprintf("msg-%02d", i); msg.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, msg.ID)
		}
	}
}

func TestOutboxRepository_StatsAndCompaction(t *testing.T) {
	repo := NewOutboxRepository()
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	clock := start
	repo.now = func() time.Time { return clock }

	first, _ := repo.Enqueue(domain.OutboxMessage{AggregateID: "sess-1"})
	clock = clock.Add(time.Minute)
	second, _ := repo.Enqueue(domain.OutboxMessage{AggregateID: "sess-1"})

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || !stats.OldestPendingAt.Equal(start) {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := repo.MarkSent(first.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	stats, _ = repo.Stats()
	if stats.PendingCount != 1 || !stats.OldestPendingAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("unexpected stats after send %+v", stats)
	}

	if _, err := repo.Enqueue(domain.OutboxMessage{AggregateID: "sess-2"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if len(repo.records) != 2 {
		t.Fatalf("expected sent prefix to be compacted, got %d records", len(repo.records))
	}
	if err := repo.MarkSent(first.ID); err == nil {
		t.Fatal("expected compacted record to be gone")
	}
	if err := repo.MarkFailed(second.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
}

func TestOutboxRepository_MarkMissing(t *testing.T) {
	repo := NewOutboxRepository()

	if err := repo.MarkFailed("missing"); err == nil {
		t.Fatal("expected error for missing record")
	}
}
