// Package webhook verifies and filters inbound order-paid notifications
// before they reach the queue engine.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Header names used by the order-paid webhook sender.
const (
	HeaderSignature  = "X-Shopify-Hmac-Sha256"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
)

// VerifySignature checks the HMAC-SHA256 of the exact raw request bytes
// against the base64 header value using a constant-time comparison.
func VerifySignature(rawBody []byte, signatureHeader, secret string) bool {
	if signatureHeader == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	digest := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	a := []byte(digest)
	b := []byte(signatureHeader)
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

type ShippingLine struct {
	Title *string `json:"title"`
}

type Address struct {
	FirstName *string `json:"first_name"`
	Name      *string `json:"name"`
}

type Customer struct {
	FirstName *string `json:"first_name"`
}

// Order is the subset of an order-paid payload the filter cares about.
type Order struct {
	ID              json.Number    `json:"id"`
	OrderNumber     json.Number    `json:"order_number"`
	Name            *string        `json:"name"`
	ShippingLines   []ShippingLine `json:"shipping_lines"`
	Customer        *Customer      `json:"customer"`
	ShippingAddress *Address       `json:"shipping_address"`
	BillingAddress  *Address       `json:"billing_address"`
}

// ParseOrder decodes the raw webhook body.
func ParseOrder(rawBody []byte) (*Order, error) {
	var order Order
	if err := json.Unmarshal(rawBody, &order); err != nil {
		return nil, fmt.Errorf("invalid order payload: %w", err)
	}
	return &order, nil
}

// ShippingTitles returns the trimmed, non-empty shipping line titles.
func (o *Order) ShippingTitles() []string {
	titles := make([]string, 0, len(o.ShippingLines))
	for _, line := range o.ShippingLines {
		if line.Title == nil {
			continue
		}
		if t := strings.TrimSpace(*line.Title); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

// SourceOrderID returns the order's external dedup key, empty when absent.
func (o *Order) SourceOrderID() string {
	return o.ID.String()
}

// DisplayOrderNumber prefers the numeric order number, then the order name.
func (o *Order) DisplayOrderNumber() string {
	if n := o.OrderNumber.String(); n != "" {
		return n
	}
	if o.Name != nil {
		return strings.TrimSpace(*o.Name)
	}
	return ""
}

// FirstName walks the fallback chain: customer, shipping address, billing
// address, first word of the shipping contact name, then an order label.
func (o *Order) FirstName() string {
	if o.Customer != nil && o.Customer.FirstName != nil {
		if name := strings.TrimSpace(*o.Customer.FirstName); name != "" {
			return name
		}
	}
	for _, addr := range []*Address{o.ShippingAddress, o.BillingAddress} {
		if addr == nil || addr.FirstName == nil {
			continue
		}
		if name := strings.TrimSpace(*addr.FirstName); name != "" {
			return name
		}
	}
	if o.ShippingAddress != nil && o.ShippingAddress.Name != nil {
		full := strings.TrimSpace(*o.ShippingAddress.Name)
		if first, _, _ := strings.Cut(full, " "); first != "" {
			return first
		}
	}

	number := o.DisplayOrderNumber()
	if number == "" {
		number = "?"
	}
	return fmt.Sprintf("Order #%s", number)
}
