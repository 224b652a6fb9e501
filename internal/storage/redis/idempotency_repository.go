package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

const idempotencyKeyPrefix = "meenava-idem:"

// IdempotencyRepository хранит ключи идемпотентности в Redis.
// Истечение обеспечивает TTL самого Redis, поэтому DeleteExpired ничего не делает.
type IdempotencyRepository struct {
	client    *Client
	opTimeout time.Duration
	now       func() time.Time
}

// NewIdempotencyRepository создаёт репозиторий поверх клиента.
func NewIdempotencyRepository(client *Client) *IdempotencyRepository {
	return &IdempotencyRepository{
		client:    client,
		opTimeout: defaultOpTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type idempotencyDocument struct {
	RequestHash  string                   `json:"request_hash"`
	Status       domain.IdempotencyStatus `json:"status"`
	ResponseBody []byte                   `json:"response_body,omitempty"`
	HTTPStatus   int                      `json:"http_status,omitempty"`
	TTLAt        time.Time                `json:"ttl_at"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

func (d idempotencyDocument) record(key string) domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:          key,
		RequestHash:  d.RequestHash,
		ResponseBody: d.ResponseBody,
		HTTPStatus:   d.HTTPStatus,
		Status:       d.Status,
		TTLAt:        d.TTLAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// CreateProcessing атомарно регистрирует ключ через SET NX.
func (r *IdempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}
	ttl := ttlAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Second
	}

	doc := idempotencyDocument{
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("marshal idempotency record: %w", err)
	}

	ctx, cancel := r.ctx()
	defer cancel()

	created, err := r.client.store.SetNX(ctx, idempotencyKeyPrefix+key, payload, ttl).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("redis setnx: %w", err)
	}
	if created {
		return doc.record(key), nil
	}

	existing, err := r.Get(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

// Get читает запись по ключу.
func (r *IdempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	doc, err := r.load(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return doc.record(key), nil
}

// MarkDone сохраняет успешный ответ, сохраняя исходный TTL.
func (r *IdempotencyRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

// MarkFailed сохраняет ответ с ошибкой, сохраняя исходный TTL.
func (r *IdempotencyRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired не требуется: Redis удаляет ключи сам.
func (r *IdempotencyRepository) DeleteExpired(time.Time, int) (int, error) {
	return 0, nil
}

func (r *IdempotencyRepository) finish(key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	doc, err := r.load(key)
	if err != nil {
		return err
	}
	doc.Status = status
	doc.ResponseBody = append([]byte(nil), body...)
	doc.HTTPStatus = httpStatus
	doc.UpdatedAt = r.now()

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}

	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.client.store.SetArgs(ctx, idempotencyKeyPrefix+key, payload, goredis.SetArgs{KeepTTL: true}).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) load(key string) (idempotencyDocument, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	raw, err := r.client.store.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return idempotencyDocument{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return idempotencyDocument{}, fmt.Errorf("redis get: %w", err)
	}

	var doc idempotencyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return idempotencyDocument{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	return doc, nil
}

func (r *IdempotencyRepository) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.opTimeout)
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
