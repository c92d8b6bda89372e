package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jumpindia/funzone-pos/internal/domain"
)

func TestNewSale(t *testing.T) {
	g1 := validGuest("Aarav", "100")
	g2 := validGuest("Priya", "100")
	tx := domain.NewTransaction("100", []domain.Guest{g1, g2})
	tx.AddEntry(ticketEntry(), testNow)
	tx.Discount = domain.Discount{Type: domain.DiscountPercentage, Value: 10}

	sale, err := domain.NewSale(tx, domain.PayCash, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if sale.CustomerID != g1.ID {
		t.Fatal("primary customer should be the first assigned guest")
	}
	if sale.CustomerName != "Aarav & group" {
		t.Fatalf("customer name = %q, want group suffix for multi-guest parties", sale.CustomerName)
	}
	if sale.Subtotal != 500 || sale.DiscountAmount != 50 || sale.GSTAmount != 81 || sale.Total != 531 {
		t.Fatalf("snapshot figures = %v/%v/%v/%v", sale.Subtotal, sale.DiscountAmount, sale.GSTAmount, sale.Total)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(sale.Items))
	}

	// Mutating the transaction afterwards must not touch the snapshot.
	tx.Cart[0].Price = 9999
	if sale.Items[0].Price != 500 {
		t.Fatal("sale items must be an independent copy")
	}
}

func TestNewSale_PrimaryGuestFollowsAssignment(t *testing.T) {
	g1 := validGuest("Aarav", "100")
	g2 := validGuest("Priya", "100")
	tx := domain.NewTransaction("100", []domain.Guest{g1, g2})
	tx.AddEntry(ticketEntry(), testNow)
	// Reassign the only ticket to the second guest: the sale's
	// customer of record follows the assignment, not list position.
	tx.BulkAssign(map[int]uuid.UUID{0: g2.ID})

	sale, err := domain.NewSale(tx, domain.PayCard, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if sale.CustomerID != g2.ID {
		t.Fatal("primary customer should be the first guest holding an assignment")
	}
}

func TestNewSale_Rejections(t *testing.T) {
	g1 := validGuest("Aarav", "100")
	tx := domain.NewTransaction("100", []domain.Guest{g1})
	tx.AddEntry(ticketEntry(), testNow)

	if _, err := domain.NewSale(tx, "Cheque", testNow); err != domain.ErrValidation {
		t.Fatalf("unknown payment method: got %v, want ErrValidation", err)
	}

	tx.Unassign(g1.ID)
	if _, err := domain.NewSale(tx, domain.PayCash, testNow); err != domain.ErrValidation {
		t.Fatalf("ineligible transaction: got %v, want ErrValidation", err)
	}
}
