package domain

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// DefaultFreeDeliveryThresholdMinor — ₹500: от этой суммы доставка бесплатная.
	DefaultFreeDeliveryThresholdMinor int64 = 50000
	// DefaultDeliveryChargeMinor — ₹50 фиксированной доставки.
	DefaultDeliveryChargeMinor int64 = 5000
)

// DeliveryPolicy задаёт правила расчёта доставки.
type DeliveryPolicy struct {
	FreeThresholdMinor int64
	ChargeMinor        int64
}

// DefaultDeliveryPolicy возвращает правила витрины по умолчанию.
func DefaultDeliveryPolicy() DeliveryPolicy {
	return DeliveryPolicy{
		FreeThresholdMinor: DefaultFreeDeliveryThresholdMinor,
		ChargeMinor:        DefaultDeliveryChargeMinor,
	}
}

// DeliveryQuote — расчёт доставки и итоговой суммы для снимка корзины.
type DeliveryQuote struct {
	SubtotalMinor int64
	ChargeMinor   int64
	TotalMinor    int64
	Free          bool
	// ShortfallMinor — сколько не хватает до бесплатной доставки.
	ShortfallMinor int64
}

// Quote считает доставку. Для пустой корзины доставка не начисляется.
func (p DeliveryPolicy) Quote(cart CartSnapshot) DeliveryQuote {
	quote := DeliveryQuote{SubtotalMinor: cart.SubtotalMinor}
	if cart.IsEmpty() {
		quote.Free = true
		return quote
	}

	if cart.SubtotalMinor >= p.FreeThresholdMinor {
		quote.Free = true
	} else {
		quote.ChargeMinor = p.ChargeMinor
		quote.ShortfallMinor = p.FreeThresholdMinor - cart.SubtotalMinor
	}
	quote.TotalMinor = quote.SubtotalMinor + quote.ChargeMinor
	return quote
}

// FormatRupees форматирует сумму в пайсах для покупателя: ₹399 или ₹399.50.
func FormatRupees(minor int64) string {
	amount := decimal.New(minor, -2)
	if amount.IsInteger() {
		return "₹" + amount.String()
	}
	return "₹" + amount.StringFixed(2)
}

// FormatOrderMessage собирает текст заказа для отправки в мессенджер.
func FormatOrderMessage(cart CartSnapshot, quote DeliveryQuote) string {
	var b strings.Builder
	b.WriteString("Hi! I'd like to order:\n")
	for _, item := range cart.Items {
		fmt.Fprintf(&b, "- %s (%s) x%d\n", item.Product.DisplayName(), item.Variant, item.Quantity)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Subtotal: %s\n", FormatRupees(quote.SubtotalMinor))
	if quote.Free {
		b.WriteString("Delivery: FREE\n")
	} else {
		fmt.Fprintf(&b, "Delivery: %s\n", FormatRupees(quote.ChargeMinor))
	}
	fmt.Fprintf(&b, "Total: %s", FormatRupees(quote.TotalMinor))
	return b.String()
}

// WhatsAppOrderLink строит ссылку wa.me с предзаполненным текстом.
func WhatsAppOrderLink(phone, message string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "+")
	return "https://wa.me/" + phone + "?" + url.Values{"text": {message}}.Encode()
}
