package storefront

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
	"github.com/vladislavdragonenkov/meenava/internal/service/cart"
	"github.com/vladislavdragonenkov/meenava/internal/service/session"
)

// CartView — снимок корзины вместе с расчётом доставки.
type CartView struct {
	Cart     domain.CartSnapshot
	Delivery domain.DeliveryQuote
}

// OrderMessage — текст заказа и ссылка для отправки в WhatsApp.
type OrderMessage struct {
	Text string
	Link string
}

// Flusher дожидается записи отложенных снимков корзин.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Config задаёт параметры витрины.
type Config struct {
	Delivery      domain.DeliveryPolicy
	WhatsAppPhone string
	// Flusher вызывается при завершении сессии; nil — без ожидания записи.
	Flusher Flusher
}

// Service связывает каталог и корзины сессий.
type Service struct {
	catalog  domain.ProductCatalog
	sessions *session.Manager
	cfg      Config
	logger   *log.Entry
}

// NewService создаёт сервис витрины.
func NewService(catalog domain.ProductCatalog, sessions *session.Manager, cfg Config, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "storefront")
	}
	if cfg.Delivery.FreeThresholdMinor == 0 && cfg.Delivery.ChargeMinor == 0 {
		cfg.Delivery = domain.DefaultDeliveryPolicy()
	}
	return &Service{
		catalog:  catalog,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// Products возвращает товары категории или весь каталог.
func (s *Service) Products(ctx context.Context, category domain.ProductCategory) ([]domain.Product, error) {
	if category != "" && !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidArgument, category)
	}
	return s.catalog.List(ctx, category)
}

// Product возвращает карточку товара.
func (s *Service) Product(ctx context.Context, id string) (domain.Product, error) {
	return s.catalog.Get(ctx, id)
}

// Cart возвращает текущую корзину сессии.
func (s *Service) Cart(ctx context.Context, sessionID string) (CartView, error) {
	snapshot, err := s.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		return CartView{}, err
	}
	return s.view(snapshot), nil
}

// AddItem добавляет единицу товара по цене варианта из каталога.
func (s *Service) AddItem(ctx context.Context, sessionID, productID, variant string) (CartView, error) {
	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return CartView{}, err
	}
	if !product.InStock {
		return CartView{}, fmt.Errorf("%w: %s", domain.ErrProductOutOfStock, product.ID)
	}
	price, ok := product.Variant(variant)
	if !ok {
		return CartView{}, fmt.Errorf("%w: %s %s", domain.ErrVariantNotFound, product.ID, variant)
	}

	return s.do(ctx, sessionID, func(e *cart.Engine) error {
		_, err := e.AddItem(product.Ref(), price.Weight, price.PriceMinor)
		return err
	})
}

// RemoveItem удаляет позицию.
func (s *Service) RemoveItem(ctx context.Context, sessionID, productID, variant string) (CartView, error) {
	return s.do(ctx, sessionID, func(e *cart.Engine) error {
		_, err := e.RemoveItem(productID, variant)
		return err
	})
}

// SetQuantity задаёт количество позиции.
func (s *Service) SetQuantity(ctx context.Context, sessionID, productID, variant string, quantity int) (CartView, error) {
	return s.do(ctx, sessionID, func(e *cart.Engine) error {
		_, err := e.SetQuantity(productID, variant, quantity)
		return err
	})
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context, sessionID string) (CartView, error) {
	return s.do(ctx, sessionID, func(e *cart.Engine) error {
		e.Clear()
		return nil
	})
}

// OrderMessage формирует текст заказа для непустой корзины.
func (s *Service) OrderMessage(ctx context.Context, sessionID string) (OrderMessage, error) {
	view, err := s.Cart(ctx, sessionID)
	if err != nil {
		return OrderMessage{}, err
	}
	if view.Cart.IsEmpty() {
		return OrderMessage{}, domain.ErrCartEmpty
	}

	text := domain.FormatOrderMessage(view.Cart, view.Delivery)
	msg := OrderMessage{Text: text}
	if s.cfg.WhatsAppPhone != "" {
		msg.Link = domain.WhatsAppOrderLink(s.cfg.WhatsAppPhone, text)
	}
	return msg, nil
}

// EndSession выгружает корзину сессии из памяти и дожидается записи снимка.
// Возвращает false, если сессия не была открыта.
func (s *Service) EndSession(ctx context.Context, sessionID string) (bool, error) {
	id, err := session.NormalizeID(sessionID)
	if err != nil {
		return false, err
	}
	closed := s.sessions.Close(id)
	if closed && s.cfg.Flusher != nil {
		if err := s.cfg.Flusher.Flush(ctx); err != nil {
			s.logger.WithError(err).WithField("session_id", id).Warn("flush on session end failed")
			return true, fmt.Errorf("flush cart snapshot: %w", err)
		}
	}
	return closed, nil
}

func (s *Service) do(ctx context.Context, sessionID string, fn func(*cart.Engine) error) (CartView, error) {
	snapshot, err := s.sessions.Do(ctx, sessionID, fn)
	if err != nil {
		return CartView{}, err
	}
	return s.view(snapshot), nil
}

func (s *Service) view(snapshot domain.CartSnapshot) CartView {
	return CartView{
		Cart:     snapshot,
		Delivery: s.cfg.Delivery.Quote(snapshot),
	}
}
