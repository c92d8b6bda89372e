package domain

import "github.com/google/uuid"

// ItemCategory tags a cart entry with its catalog category.
type ItemCategory string

const (
	CategoryTicket     ItemCategory = "ticket"
	CategoryAddon      ItemCategory = "addon"
	CategoryMembership ItemCategory = "membership"
)

// NeedsAssignment reports whether entries of this category carry a
// guest assignment. Only tickets and memberships bind to a jumper.
func (c ItemCategory) NeedsAssignment() bool {
	return c == CategoryTicket || c == CategoryMembership
}

// CartEntry is one line of a pending transaction's cart. AssignedGuestName
// is a display cache; AssignedGuestID is authoritative.
type CartEntry struct {
	ItemID            string
	Name              string
	Price             float64
	Category          ItemCategory
	AssignedGuestID   *uuid.UUID
	AssignedGuestName string
}

func (e *CartEntry) clearAssignment() {
	e.AssignedGuestID = nil
	e.AssignedGuestName = ""
}

type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

type Discount struct {
	Type  DiscountType
	Value float64
}

// PaymentMethod is a tender type accepted at the counter.
type PaymentMethod string

const (
	PayCash    PaymentMethod = "Cash"
	PayCard    PaymentMethod = "Card"
	PayGPay    PaymentMethod = "GPay"
	PayPhonePe PaymentMethod = "PhonePe"
	PayPaytm   PaymentMethod = "Paytm"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PayCash, PayCard, PayGPay, PayPhonePe, PayPaytm:
		return true
	}
	return false
}
