package domain

import (
	"time"

	"github.com/google/uuid"
)

// Sale is the immutable snapshot of a checked-out transaction. Money
// figures are computed once here and never recomputed afterwards.
type Sale struct {
	ID             uuid.UUID
	CustomerID     uuid.UUID
	CustomerName   string
	Items          []CartEntry
	Subtotal       float64
	DiscountAmount float64
	GSTAmount      float64
	Total          float64
	Date           time.Time
	PaymentMethod  PaymentMethod
}

// primaryGuest picks the sale's customer of record: the first guest,
// in guest-list order, that holds a ticket/membership assignment, else
// the transaction's first guest.
func primaryGuest(t Transaction) Guest {
	assigned := t.assignedGuestIDs()
	for _, g := range t.Guests {
		if assigned[g.ID] {
			return g
		}
	}
	return t.Guests[0]
}

// NewSale finalizes a transaction into a Sale. The transaction must be
// checkout-eligible at now and the payment method recognised.
func NewSale(t Transaction, method PaymentMethod, now time.Time) (Sale, error) {
	if !ValidPaymentMethod(method) {
		return Sale{}, ErrValidation
	}
	if !t.CheckoutEligible(now) {
		return Sale{}, ErrValidation
	}

	primary := primaryGuest(t)
	name := primary.Name
	if len(t.Guests) > 1 {
		name += " & group"
	}

	items := make([]CartEntry, len(t.Cart))
	copy(items, t.Cart)

	return Sale{
		ID:             uuid.New(),
		CustomerID:     primary.ID,
		CustomerName:   name,
		Items:          items,
		Subtotal:       Subtotal(t),
		DiscountAmount: DiscountAmount(t),
		GSTAmount:      TaxAmount(t),
		Total:          GrandTotal(t),
		Date:           now,
		PaymentMethod:  method,
	}, nil
}
