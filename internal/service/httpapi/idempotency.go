package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
	"github.com/vladislavdragonenkov/meenava/internal/service/session"
)

const (
	// IdempotencyKeyHeader — заголовок ключа идемпотентности.
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotencyReplayed  = "Idempotent-Replayed"

	defaultIdempotencyTTL = 24 * time.Hour
	maxIdempotencyKey     = 128
)

// responseCapture запоминает ответ обработчика для последующего повтора.
type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *responseCapture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *responseCapture) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// idempotency повторяет сохранённый ответ для запроса с тем же ключом в рамках сессии.
// Без заголовка Idempotency-Key запрос обрабатывается как обычно.
func (h *Handler) idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if rawKey == "" || h.idem == nil {
			next.ServeHTTP(w, r)
			return
		}
		logger := h.requestLogger(r)

		if len(rawKey) > maxIdempotencyKey {
			writeError(w, logger, newAPIError(http.StatusBadRequest, codeInvalidArgument, "idempotency key is too long"))
			return
		}
		sessionID, err := session.NormalizeID(r.Header.Get(SessionHeader))
		if err != nil {
			writeError(w, logger, err)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			writeError(w, logger, newAPIError(http.StatusBadRequest, codeInvalidArgument, "failed to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		key := sessionID + ":" + rawKey
		record, err := h.idem.CreateProcessing(key, requestHash(r, body), h.now().Add(h.idemTTL))
		if err != nil {
			h.replay(w, logger.WithField("idempotency_key", rawKey), record, err)
			return
		}

		capture := &responseCapture{ResponseWriter: w}
		next.ServeHTTP(capture, r)

		status := capture.status
		if status == 0 {
			status = http.StatusOK
		}
		if status < http.StatusBadRequest {
			err = h.idem.MarkDone(key, capture.body.Bytes(), status)
		} else {
			err = h.idem.MarkFailed(key, capture.body.Bytes(), status)
		}
		if err != nil {
			logger.WithError(err).WithField("idempotency_key", rawKey).Warn("failed to store idempotent response")
		}
	})
}

func (h *Handler) replay(w http.ResponseWriter, logger *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeError(w, logger, newAPIError(http.StatusUnprocessableEntity, codeIdempotencyReused,
			"idempotency key is already used with different request payload"))
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			status := record.HTTPStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(idempotencyReplayed, "true")
			w.WriteHeader(status)
			_, _ = w.Write(record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			writeError(w, logger, newAPIError(http.StatusConflict, codeIdempotencyInProgress,
				"request with the same idempotency key is already processing"))
		default:
			writeError(w, logger, errors.New("unknown idempotency record status"))
		}
	default:
		writeError(w, logger, createErr)
	}
}

func requestHash(r *http.Request, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.Method))
	sum.Write([]byte{0})
	sum.Write([]byte(r.URL.Path))
	sum.Write([]byte{0})
	sum.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(sum.Sum(nil))
}
