package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
	"github.com/vladislavdragonenkov/meenava/internal/service/storefront"
)

// SessionHeader — заголовок с идентификатором сессии покупателя.
const SessionHeader = "X-Session-ID"

// Storefront — операции витрины, которые обслуживает HTTP API.
type Storefront interface {
	Products(ctx context.Context, category domain.ProductCategory) ([]domain.Product, error)
	Product(ctx context.Context, id string) (domain.Product, error)
	Cart(ctx context.Context, sessionID string) (storefront.CartView, error)
	AddItem(ctx context.Context, sessionID, productID, variant string) (storefront.CartView, error)
	RemoveItem(ctx context.Context, sessionID, productID, variant string) (storefront.CartView, error)
	SetQuantity(ctx context.Context, sessionID, productID, variant string, quantity int) (storefront.CartView, error)
	Clear(ctx context.Context, sessionID string) (storefront.CartView, error)
	OrderMessage(ctx context.Context, sessionID string) (storefront.OrderMessage, error)
	EndSession(ctx context.Context, sessionID string) (bool, error)
}

// HandlerOptions — настройки HTTP API.
type HandlerOptions struct {
	Logger         *log.Entry
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

// Option изменяет HandlerOptions.
type Option func(*HandlerOptions)

// WithLogger задаёт логгер запросов.
func WithLogger(logger *log.Entry) Option {
	return func(o *HandlerOptions) { o.Logger = logger }
}

// WithIdempotency включает обработку Idempotency-Key для добавления в корзину.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(o *HandlerOptions) {
		o.Idempotency = repo
		o.IdempotencyTTL = ttl
	}
}

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(o *HandlerOptions) { o.Now = now }
}

// Handler обслуживает REST API витрины и корзины.
type Handler struct {
	svc     Storefront
	idem    domain.IdempotencyRepository
	idemTTL time.Duration
	logger  *log.Entry
	now     func() time.Time
}

// NewHandler создаёт обработчик API.
func NewHandler(svc Storefront, options ...Option) *Handler {
	opts := HandlerOptions{IdempotencyTTL: defaultIdempotencyTTL}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "http")
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Handler{
		svc:     svc,
		idem:    opts.Idempotency,
		idemTTL: opts.IdempotencyTTL,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Routes собирает chi-роутер с middleware и маршрутами /api/v1.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, h.requestLogger(r), newAPIError(http.StatusNotFound, "route_not_found", "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, h.requestLogger(r), newAPIError(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.With(h.idempotency).Post("/items", h.addItem)
			r.Put("/items/{productID}/{variant}", h.setQuantity)
			r.Delete("/items/{productID}/{variant}", h.removeItem)
			r.Get("/order-message", h.orderMessage)
		})

		r.Delete("/session", h.endSession)
	})
	return r
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	category := domain.ProductCategory(strings.TrimSpace(r.URL.Query().Get("category")))
	products, err := h.svc.Products(r.Context(), category)
	if err != nil {
		writeError(w, h.requestLogger(r), err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": resp})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.Product(r.Context(), pathParam(r, "productID"))
	if err != nil {
		writeError(w, h.requestLogger(r), err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Cart(r.Context(), sessionID(r))
	h.writeCart(w, r, http.StatusOK, view, err)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, h.requestLogger(r), err)
		return
	}
	view, err := h.svc.AddItem(r.Context(), sessionID(r), strings.TrimSpace(req.ProductID), strings.TrimSpace(req.Variant))
	h.writeCart(w, r, http.StatusOK, view, err)
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, h.requestLogger(r), err)
		return
	}
	view, err := h.svc.SetQuantity(r.Context(), sessionID(r), pathParam(r, "productID"), pathParam(r, "variant"), *req.Quantity)
	h.writeCart(w, r, http.StatusOK, view, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.RemoveItem(r.Context(), sessionID(r), pathParam(r, "productID"), pathParam(r, "variant"))
	h.writeCart(w, r, http.StatusOK, view, err)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Clear(r.Context(), sessionID(r))
	h.writeCart(w, r, http.StatusOK, view, err)
}

func (h *Handler) orderMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.OrderMessage(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, h.requestLogger(r), err)
		return
	}
	writeJSON(w, http.StatusOK, orderMessageResponse{Text: msg.Text, Link: msg.Link})
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	closed, err := h.svc.EndSession(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, h.requestLogger(r), err)
		return
	}
	writeJSON(w, http.StatusOK, sessionEndResponse{Closed: closed})
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, status int, view storefront.CartView, err error) {
	if err != nil {
		writeError(w, h.requestLogger(r), err)
		return
	}
	writeJSON(w, status, toCartResponse(view))
}

// accessLog пишет строку лога на каждый запрос.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		entry := h.requestLogger(r).WithFields(log.Fields{
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("request completed")
			return
		}
		entry.Debug("request completed")
	})
}

func (h *Handler) requestLogger(r *http.Request) *log.Entry {
	return h.logger.WithFields(log.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
}

func sessionID(r *http.Request) string {
	return r.Header.Get(SessionHeader)
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if value, err := url.PathUnescape(raw); err == nil {
		return value
	}
	return raw
}
