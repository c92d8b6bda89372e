package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PhoneSeparator joins the display phones of merged transactions.
const PhoneSeparator = " & "

// Transaction is an open order at the counter: the party's guests, the
// cart being built for them, and an optional discount. Phone is a
// display string; after merges it holds several numbers joined by
// PhoneSeparator.
type Transaction struct {
	ID       uuid.UUID
	Phone    string
	Guests   []Guest
	Cart     []CartEntry
	Discount Discount
}

func NewTransaction(phone string, guests []Guest) Transaction {
	return Transaction{
		ID:     uuid.New(),
		Phone:  phone,
		Guests: guests,
	}
}

// Phones returns the transaction's phone set in display order.
func (t Transaction) Phones() []string {
	if t.Phone == "" {
		return nil
	}
	return strings.Split(t.Phone, PhoneSeparator)
}

// HasPhone reports whether the phone set contains the given number.
func (t Transaction) HasPhone(phone string) bool {
	for _, p := range t.Phones() {
		if p == phone {
			return true
		}
	}
	return false
}

// Repurpose reuses an empty-cart transaction in place for a new party.
func (t *Transaction) Repurpose(phone string, guests []Guest) {
	t.Phone = phone
	t.Guests = guests
	t.Cart = nil
	t.Discount = Discount{}
}

func (t Transaction) guestByID(id uuid.UUID) (Guest, bool) {
	for _, g := range t.Guests {
		if g.ID == id {
			return g, true
		}
	}
	return Guest{}, false
}

// assignedGuestIDs collects guests currently bound to a
// ticket/membership entry.
func (t Transaction) assignedGuestIDs() map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool)
	for _, e := range t.Cart {
		if e.Category.NeedsAssignment() && e.AssignedGuestID != nil {
			ids[*e.AssignedGuestID] = true
		}
	}
	return ids
}

// AddEntry appends a cart entry. Ticket and membership entries are
// auto-assigned to the first guest, in guest-list order, whose waiver
// is valid and who holds no assignment yet. Having no candidate is a
// normal state, not an error: the entry stays unassigned.
func (t *Transaction) AddEntry(entry CartEntry, now time.Time) {
	if entry.Category.NeedsAssignment() {
		taken := t.assignedGuestIDs()
		for _, g := range t.Guests {
			if GetWaiverStatus(g, now) == WaiverValid && !taken[g.ID] {
				id := g.ID
				entry.AssignedGuestID = &id
				entry.AssignedGuestName = g.Name
				break
			}
		}
	}
	t.Cart = append(t.Cart, entry)
}

// RemoveItem deletes the first cart entry matching the item id.
func (t *Transaction) RemoveItem(itemID string) error {
	for i, e := range t.Cart {
		if e.ItemID == itemID {
			t.Cart = append(t.Cart[:i:i], t.Cart[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// BulkAssign replaces all ticket/membership assignments with the given
// entry-index to guest-id mapping. Indexes not mentioned become
// unassigned. Unknown guest ids and out-of-range indexes are skipped
// silently. When the same guest appears for several indexes only the
// lowest index keeps it, so a guest never holds two assignments.
func (t *Transaction) BulkAssign(assignments map[int]uuid.UUID) {
	for i := range t.Cart {
		if t.Cart[i].Category.NeedsAssignment() {
			t.Cart[i].clearAssignment()
		}
	}

	indexes := make([]int, 0, len(assignments))
	for idx := range assignments {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	used := make(map[uuid.UUID]bool)
	for _, idx := range indexes {
		if idx < 0 || idx >= len(t.Cart) || !t.Cart[idx].Category.NeedsAssignment() {
			continue
		}
		guestID := assignments[idx]
		guest, ok := t.guestByID(guestID)
		if !ok || used[guestID] {
			continue
		}
		id := guest.ID
		t.Cart[idx].AssignedGuestID = &id
		t.Cart[idx].AssignedGuestName = guest.Name
		used[guestID] = true
	}
}

// Unassign clears the guest's single assignment. No-op when the guest
// holds none.
func (t *Transaction) Unassign(guestID uuid.UUID) {
	for i := range t.Cart {
		e := &t.Cart[i]
		if e.AssignedGuestID != nil && *e.AssignedGuestID == guestID {
			e.clearAssignment()
			return
		}
	}
}

// CheckoutEligible re-evaluates waiver validity at call time: a waiver
// that expired between assignment and checkout makes the transaction
// ineligible again.
func (t Transaction) CheckoutEligible(now time.Time) bool {
	if len(t.Cart) == 0 || len(t.Guests) == 0 {
		return false
	}
	for _, e := range t.Cart {
		if !e.Category.NeedsAssignment() {
			continue
		}
		if e.AssignedGuestID == nil {
			return false
		}
		guest, ok := t.guestByID(*e.AssignedGuestID)
		if !ok || GetWaiverStatus(guest, now) != WaiverValid {
			return false
		}
	}
	return true
}

// Merge folds the source transactions into the receiver: carts are
// concatenated after the receiver's own entries, guest lists are
// unioned by id (first occurrence wins) and phone sets are unioned in
// first-appearance order. Carried entries keep their assignments
// verbatim.
func (t *Transaction) Merge(sources []Transaction) {
	seen := make(map[uuid.UUID]bool, len(t.Guests))
	for _, g := range t.Guests {
		seen[g.ID] = true
	}
	phones := t.Phones()
	havePhone := make(map[string]bool, len(phones))
	for _, p := range phones {
		havePhone[p] = true
	}

	for _, src := range sources {
		t.Cart = append(t.Cart, src.Cart...)
		for _, g := range src.Guests {
			if !seen[g.ID] {
				t.Guests = append(t.Guests, g)
				seen[g.ID] = true
			}
		}
		for _, p := range src.Phones() {
			if !havePhone[p] {
				phones = append(phones, p)
				havePhone[p] = true
			}
		}
	}
	t.Phone = strings.Join(phones, PhoneSeparator)
}
