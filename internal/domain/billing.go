package domain

import "math"

// GSTRate is the flat tax applied to the discounted subtotal.
// Fixed business constant, not configuration.
const GSTRate = 0.18

// RoundCents rounds a currency amount to two decimals, half away
// from zero.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// ValidateDiscount rejects negative or non-finite discount values.
func ValidateDiscount(d Discount) error {
	if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) || d.Value < 0 {
		return ErrValidation
	}
	switch d.Type {
	case DiscountFixed, DiscountPercentage:
		return nil
	}
	return ErrValidation
}

// Subtotal is the sum of cart entry prices before discount and tax.
func Subtotal(t Transaction) float64 {
	var sum float64
	for _, e := range t.Cart {
		sum += e.Price
	}
	return RoundCents(sum)
}

// DiscountAmount is the effective discount, clamped so the bill can
// never go negative or below zero pre-tax.
func DiscountAmount(t Transaction) float64 {
	subtotal := Subtotal(t)
	raw := t.Discount.Value
	if t.Discount.Type == DiscountPercentage {
		raw = subtotal * t.Discount.Value / 100
	}
	if raw < 0 {
		raw = 0
	}
	if raw > subtotal {
		raw = subtotal
	}
	return RoundCents(raw)
}

// TaxAmount is GST over the discounted subtotal.
func TaxAmount(t Transaction) float64 {
	return RoundCents((Subtotal(t) - DiscountAmount(t)) * GSTRate)
}

// GrandTotal is subtotal - discount + tax, recomputed on every read.
func GrandTotal(t Transaction) float64 {
	return RoundCents(Subtotal(t) - DiscountAmount(t) + TaxAmount(t))
}
