package pricing

import (
	"errors"
	"strconv"
	"strings"

	"sartarosh/internal/models"
)

var (
	ErrBadDiscountFormat       = errors.New("discount is not a number or percentage")
	ErrNegativeDiscount        = errors.New("discount cannot be negative")
	ErrDiscountExceedsSubtotal = errors.New("discount exceeds subtotal")
)

// Subtotal sums the snapshot prices of the request's line items.
func Subtotal(items []models.LineItem) int64 {
	var total int64
	for _, li := range items {
		total += li.Price
	}
	return total
}

// ResolveDiscount turns raw user input into an absolute discount amount.
// Accepted forms: "15000" (absolute) or "10%" (percentage of subtotal,
// floored). Blank input resolves to zero. The amount is never clamped:
// anything above the subtotal is an error.
func ResolveDiscount(subtotal int64, raw string) (int64, error) {
	t := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if t == "" {
		return 0, nil
	}

	var amount int64
	if strings.HasSuffix(t, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(t, "%"), 64)
		if err != nil {
			return 0, ErrBadDiscountFormat
		}
		if pct < 0 {
			return 0, ErrNegativeDiscount
		}
		amount = int64(float64(subtotal) * pct / 100)
	} else {
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, ErrBadDiscountFormat
		}
		if n < 0 {
			return 0, ErrNegativeDiscount
		}
		amount = n
	}

	if amount > subtotal {
		return 0, ErrDiscountExceedsSubtotal
	}
	return amount, nil
}

// FinalPrice is subtotal minus discount, never below zero.
func FinalPrice(subtotal, discount int64) int64 {
	final := subtotal - discount
	if final < 0 {
		return 0
	}
	return final
}

// RequestTotal computes the payable amount of a request from its line
// item snapshots and stored discount.
func RequestTotal(r *models.BookingRequest) int64 {
	return FinalPrice(Subtotal(r.Services), r.Discount)
}
