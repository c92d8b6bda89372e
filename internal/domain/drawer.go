package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type DrawerStatus string

const (
	DrawerOpen   DrawerStatus = "OPEN"
	DrawerClosed DrawerStatus = "CLOSED"
)

// Deposit is an append-only cash removal from the drawer (safe drop,
// bank run) recorded within a session.
type Deposit struct {
	ID         uuid.UUID
	Amount     float64
	Timestamp  time.Time
	RecordedBy string // user code
	Notes      string
}

// Attachment is supporting evidence for a discrepancy (photo, slip).
type Attachment struct {
	Name string
	Type string
	Data string // base64 data URL
}

// CashDrawerSession tracks one register shift from float to count.
type CashDrawerSession struct {
	ID                    uuid.UUID
	OpeningTime           time.Time
	ClosingTime           *time.Time
	OpeningBalance        float64
	ClosingBalance        *float64
	OpenedBy              string // user code
	ClosedBy              string
	Status                DrawerStatus
	Deposits              []Deposit
	OpeningReason         string
	DiscrepancyReason     string
	DiscrepancyAttachment *Attachment
}

// OpenDrawer starts a session. A reason is the caller's business when
// the float differs from the suggested figure; the engine only rejects
// negative or non-finite balances.
func OpenDrawer(openingBalance float64, openedBy string, reason string, now time.Time) (CashDrawerSession, error) {
	if math.IsNaN(openingBalance) || math.IsInf(openingBalance, 0) || openingBalance < 0 {
		return CashDrawerSession{}, ErrValidation
	}
	return CashDrawerSession{
		ID:             uuid.New(),
		OpeningTime:    now,
		OpeningBalance: openingBalance,
		OpenedBy:       openedBy,
		Status:         DrawerOpen,
		OpeningReason:  reason,
	}, nil
}

// InWindow reports whether an instant falls inside the session's sales
// window: from opening until closing, or until now while still open.
func (s CashDrawerSession) InWindow(at time.Time) bool {
	if at.Before(s.OpeningTime) {
		return false
	}
	if s.ClosingTime != nil && at.After(*s.ClosingTime) {
		return false
	}
	return true
}

// CashSalesTotal sums cash-tender sale totals inside the session window.
func (s CashDrawerSession) CashSalesTotal(sales []Sale) float64 {
	var sum float64
	for _, sale := range sales {
		if sale.PaymentMethod == PayCash && s.InWindow(sale.Date) {
			sum += sale.Total
		}
	}
	return RoundCents(sum)
}

func (s CashDrawerSession) depositsTotal() float64 {
	var sum float64
	for _, d := range s.Deposits {
		sum += d.Amount
	}
	return RoundCents(sum)
}

// ExpectedCash is what the drawer should hold right now: float plus
// cash sales in the window minus prior deposits.
func (s CashDrawerSession) ExpectedCash(sales []Sale) float64 {
	return RoundCents(s.OpeningBalance + s.CashSalesTotal(sales) - s.depositsTotal())
}

// RecordDeposit appends a deposit after validating it against the
// expected cash on hand. No state changes on error.
func (s *CashDrawerSession) RecordDeposit(amount float64, recordedBy, notes string, sales []Sale, now time.Time) (Deposit, error) {
	if s.Status != DrawerOpen {
		return Deposit{}, ErrValidation
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return Deposit{}, ErrValidation
	}
	if amount > s.ExpectedCash(sales) {
		return Deposit{}, ErrValidation
	}
	dep := Deposit{
		ID:         uuid.New(),
		Amount:     amount,
		Timestamp:  now,
		RecordedBy: recordedBy,
		Notes:      notes,
	}
	s.Deposits = append(s.Deposits, dep)
	return dep, nil
}

// Discrepancy is counted minus expected, rounded to cents.
func (s CashDrawerSession) Discrepancy(countedBalance float64, sales []Sale) float64 {
	return RoundCents(countedBalance - s.ExpectedCash(sales))
}

// CanClose is the authorization precondition for closing: the opener
// may always close their own session; anyone else needs the
// close-any grant decided by the caller's permission gate.
func (s CashDrawerSession) CanClose(userCode string, hasCloseAny bool) bool {
	return s.OpenedBy == userCode || hasCloseAny
}

// Close finalizes the session. The session remains OPEN when the
// counted balance is invalid or the closer lacks authorization.
func (s *CashDrawerSession) Close(countedBalance float64, closedBy string, hasCloseAny bool, reason string, attachment *Attachment, sales []Sale, now time.Time) error {
	if s.Status != DrawerOpen {
		return ErrValidation
	}
	if !s.CanClose(closedBy, hasCloseAny) {
		return ErrPermission
	}
	if math.IsNaN(countedBalance) || math.IsInf(countedBalance, 0) || countedBalance < 0 {
		return ErrValidation
	}
	closing := now
	s.ClosingTime = &closing
	s.ClosingBalance = &countedBalance
	s.ClosedBy = closedBy
	s.Status = DrawerClosed
	s.DiscrepancyReason = reason
	s.DiscrepancyAttachment = attachment
	return nil
}
