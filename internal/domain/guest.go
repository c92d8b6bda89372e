package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// WaiverStatus is the validity state of a guest's liability waiver.
type WaiverStatus string

const (
	WaiverValid   WaiverStatus = "VALID"
	WaiverExpired WaiverStatus = "EXPIRED"
	WaiverNone    WaiverStatus = "NONE"
)

// AdultAge is the age from which a guest signs for themselves.
const AdultAge = 18

type Guest struct {
	ID              uuid.UUID
	Name            string
	DOB             time.Time
	Email           string
	Phone           string
	WaiverSignedOn  *time.Time
	WaiverSignature string // base64 data URL
	GuardianName    string
	GroupCode       string
	GroupWaiverDate *time.Time
}

// GetWaiverStatus evaluates a guest's waiver at the given instant.
// A waiver is valid for one calendar year from signing.
func GetWaiverStatus(g Guest, now time.Time) WaiverStatus {
	if g.WaiverSignedOn == nil {
		return WaiverNone
	}
	expiry := g.WaiverSignedOn.AddDate(1, 0, 0)
	if now.Before(expiry) {
		return WaiverValid
	}
	return WaiverExpired
}

// Age returns the guest's age in whole years at the given instant.
func (g Guest) Age(now time.Time) int {
	years := now.Year() - g.DOB.Year()
	anniversary := g.DOB.AddDate(years, 0, 0)
	if now.Before(anniversary) {
		years--
	}
	return years
}

// IsMinor reports whether the guest needs a guardian signature.
func (g Guest) IsMinor(now time.Time) bool {
	return g.Age(now) < AdultAge
}

// SignWaiver validates a waiver submission and stamps the guest.
// Minors must name a guardian; adults have theirs cleared.
func (g *Guest) SignWaiver(signature string, now time.Time) error {
	if strings.TrimSpace(g.Name) == "" || strings.TrimSpace(g.Phone) == "" {
		return ErrValidation
	}
	if signature == "" {
		return ErrValidation
	}
	if g.IsMinor(now) {
		if strings.TrimSpace(g.GuardianName) == "" {
			return ErrValidation
		}
	} else {
		g.GuardianName = ""
	}
	signed := now
	g.WaiverSignedOn = &signed
	g.WaiverSignature = signature
	return nil
}

func NewGuest(name string, dob time.Time, email, phone string) Guest {
	return Guest{
		ID:    uuid.New(),
		Name:  name,
		DOB:   dob,
		Email: email,
		Phone: phone,
	}
}
