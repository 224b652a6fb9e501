package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
	"github.com/vladislavdragonenkov/meenava/internal/service/storefront"
)

const maxRequestBody = 16 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Variant   string `json:"variant" validate:"required,max=32"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=99"`
}

// decodeJSONBody читает тело строго: неизвестные поля и хвост после объекта отклоняются.
func decodeJSONBody(r *http.Request, dest any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidArgument, err)
	}
	if decoder.More() {
		return fmt.Errorf("%w: request body must contain a single object", domain.ErrInvalidArgument)
	}
	if err := validate.Struct(dest); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fe.Field()+" "+validationMessage(fe))
	}
	sort.Strings(parts)
	return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, strings.Join(parts, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}

type priceResponse struct {
	Weight             string `json:"weight"`
	PriceMinor         int64  `json:"price_minor"`
	Price              string `json:"price"`
	OriginalPriceMinor int64  `json:"original_price_minor,omitempty"`
	OriginalPrice      string `json:"original_price,omitempty"`
}

type productResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	NameTamil   string          `json:"name_tamil,omitempty"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	Image       string          `json:"image,omitempty"`
	Prices      []priceResponse `json:"prices"`
	InStock     bool            `json:"in_stock"`
	IsFresh     bool            `json:"is_fresh"`
	IsPopular   bool            `json:"is_popular"`
	Rating      float64         `json:"rating"`
	Reviews     int             `json:"reviews"`
}

func toProductResponse(p domain.Product) productResponse {
	prices := make([]priceResponse, 0, len(p.Prices))
	for _, v := range p.Prices {
		price := priceResponse{
			Weight:     v.Weight,
			PriceMinor: v.PriceMinor,
			Price:      domain.FormatRupees(v.PriceMinor),
		}
		if v.OriginalPriceMinor > 0 {
			price.OriginalPriceMinor = v.OriginalPriceMinor
			price.OriginalPrice = domain.FormatRupees(v.OriginalPriceMinor)
		}
		prices = append(prices, price)
	}
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		NameTamil:   p.NameTamil,
		Description: p.Description,
		Category:    string(p.Category),
		Image:       p.Image,
		Prices:      prices,
		InStock:     p.InStock,
		IsFresh:     p.IsFresh,
		IsPopular:   p.IsPopular,
		Rating:      p.Rating,
		Reviews:     p.Reviews,
	}
}

type lineResponse struct {
	Product        domain.ProductRef `json:"product"`
	Variant        string            `json:"variant"`
	Quantity       int               `json:"quantity"`
	UnitPriceMinor int64             `json:"unit_price_minor"`
	LineTotalMinor int64             `json:"line_total_minor"`
}

type deliveryResponse struct {
	ChargeMinor    int64  `json:"charge_minor"`
	Charge         string `json:"charge"`
	Free           bool   `json:"free"`
	ShortfallMinor int64  `json:"shortfall_minor"`
}

type cartResponse struct {
	Items         []lineResponse   `json:"items"`
	ItemCount     int              `json:"item_count"`
	SubtotalMinor int64            `json:"subtotal_minor"`
	Subtotal      string           `json:"subtotal"`
	Delivery      deliveryResponse `json:"delivery"`
	TotalMinor    int64            `json:"total_minor"`
	Total         string           `json:"total"`
}

func toCartResponse(view storefront.CartView) cartResponse {
	items := make([]lineResponse, 0, len(view.Cart.Items))
	for _, item := range view.Cart.Items {
		items = append(items, lineResponse{
			Product:        item.Product,
			Variant:        item.Variant,
			Quantity:       item.Quantity,
			UnitPriceMinor: item.UnitPriceMinor,
			LineTotalMinor: item.LineTotalMinor(),
		})
	}
	return cartResponse{
		Items:         items,
		ItemCount:     view.Cart.ItemCount,
		SubtotalMinor: view.Cart.SubtotalMinor,
		Subtotal:      domain.FormatRupees(view.Cart.SubtotalMinor),
		Delivery: deliveryResponse{
			ChargeMinor:    view.Delivery.ChargeMinor,
			Charge:         domain.FormatRupees(view.Delivery.ChargeMinor),
			Free:           view.Delivery.Free,
			ShortfallMinor: view.Delivery.ShortfallMinor,
		},
		TotalMinor: view.Delivery.TotalMinor,
		Total:      domain.FormatRupees(view.Delivery.TotalMinor),
	}
}

type orderMessageResponse struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

type sessionEndResponse struct {
	Closed bool `json:"closed"`
}
