package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

type outboxStatus string

const (
	outboxPending outboxStatus = "pending"
	outboxSent    outboxStatus = "sent"
	outboxFailed  outboxStatus = "failed"
)

type outboxRecord struct {
	msg       domain.OutboxMessage
	status    outboxStatus
	attempts  int
	createdAt time.Time
	updatedAt time.Time
}

// OutboxRepository — in-memory outbox. Сообщения выдаются в порядке постановки,
// чтобы события одной корзины публиковались последовательно.
type OutboxRepository struct {
	mu      sync.RWMutex
	records []*outboxRecord
	byID    map[string]*outboxRecord
	now     func() time.Time
}

// NewOutboxRepository создаёт in-memory outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		byID: make(map[string]*outboxRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue сохраняет сообщение в статусе pending.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	record := &outboxRecord{msg: msg, status: outboxPending, createdAt: now, updatedAt: now}
	r.records = append(r.records, record)
	r.byID[msg.ID] = record
	r.compactLocked()
	return msg, nil
}

// PullPending возвращает до limit pending-сообщений в порядке постановки.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0, min(limit, len(r.records)))
	for _, rec := range r.records {
		if rec.status != outboxPending {
			continue
		}
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, rec := range r.records {
		if rec.status != outboxPending {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = rec.createdAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

// MarkSent фиксирует успешную публикацию.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.mark(id, outboxSent)
}

// MarkFailed фиксирует окончательную ошибку публикации.
func (r *OutboxRepository) MarkFailed(id string) error {
	return r.mark(id, outboxFailed)
}

func (r *OutboxRepository) mark(id string, status outboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.byID[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attempts++
	record.updatedAt = r.now()
	return nil
}

// compactLocked отбрасывает обработанный префикс очереди.
func (r *OutboxRepository) compactLocked() {
	done := 0
	for done < len(r.records) && r.records[done].status != outboxPending {
		delete(r.byID, r.records[done].msg.ID)
		done++
	}
	if done > 0 {
		r.records = append(r.records[:0:0], r.records[done:]...)
	}
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
