package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

// Коды ошибок в теле ответа.
const (
	codeInvalidArgument       = "invalid_argument"
	codeSessionRequired       = "session_required"
	codeProductNotFound       = "product_not_found"
	codeVariantNotFound       = "variant_not_found"
	codeOutOfStock            = "out_of_stock"
	codeCartEmpty             = "cart_empty"
	codeIdempotencyInProgress = "idempotency_in_progress"
	codeIdempotencyReused     = "idempotency_key_reused"
	codeUnavailable           = "unavailable"
	codeInternal              = "internal"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// apiError — ошибка с уже выбранным HTTP-статусом.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.message }

func newAPIError(status int, code, message string) *apiError {
	return &apiError{status: status, code: code, message: message}
}

// classify сопоставляет ошибку статусу и коду ответа.
func classify(err error) (int, string) {
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.status, apiErr.code
	case errors.Is(err, domain.ErrSessionRequired):
		return http.StatusBadRequest, codeSessionRequired
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest, codeInvalidArgument
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, codeInvalidArgument
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, codeProductNotFound
	case errors.Is(err, domain.ErrVariantNotFound):
		return http.StatusNotFound, codeVariantNotFound
	case errors.Is(err, domain.ErrProductOutOfStock):
		return http.StatusConflict, codeOutOfStock
	case errors.Is(err, domain.ErrCartEmpty):
		return http.StatusUnprocessableEntity, codeCartEmpty
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusUnprocessableEntity, codeIdempotencyReused
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// invalidArgumentMessage — единое сообщение для нарушений контракта; подробности пишутся в лог.
const invalidArgumentMessage = "invalid request"

func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	status, code := classify(err)
	message := err.Error()
	if code == codeInvalidArgument {
		logger.WithError(err).Warn("invalid request")
		message = invalidArgumentMessage
	}
	if status >= http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
