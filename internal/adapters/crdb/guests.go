package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jumpindia/funzone-pos/internal/domain"
)

const guestColumns = `id, name, dob, email, phone, waiver_signed_on, waiver_signature, guardian_name, group_code, group_waiver_date`

func scanGuest(row pgx.Row) (domain.Guest, error) {
	var g domain.Guest
	err := row.Scan(&g.ID, &g.Name, &g.DOB, &g.Email, &g.Phone,
		&g.WaiverSignedOn, &g.WaiverSignature, &g.GuardianName, &g.GroupCode, &g.GroupWaiverDate)
	return g, err
}

// UpsertGuest creates the guest or replaces them whole, which is how a
// re-signed waiver lands: guests are never hard-deleted.
func (r *Repository) UpsertGuest(ctx context.Context, g domain.Guest) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO guests (`+guestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, dob = EXCLUDED.dob,
			email = EXCLUDED.email, phone = EXCLUDED.phone,
			waiver_signed_on = EXCLUDED.waiver_signed_on,
			waiver_signature = EXCLUDED.waiver_signature,
			guardian_name = EXCLUDED.guardian_name,
			group_code = EXCLUDED.group_code,
			group_waiver_date = EXCLUDED.group_waiver_date
	`, g.ID, g.Name, g.DOB, g.Email, g.Phone,
		g.WaiverSignedOn, g.WaiverSignature, g.GuardianName, g.GroupCode, g.GroupWaiverDate)
	return err
}

func (r *Repository) GetGuest(ctx context.Context, id uuid.UUID) (domain.Guest, error) {
	g, err := scanGuest(r.pool.QueryRow(ctx, `
		SELECT `+guestColumns+` FROM guests WHERE id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return domain.Guest{}, domain.ErrNotFound
	}
	return g, err
}

func (r *Repository) collectGuests(ctx context.Context, query string, args ...interface{}) ([]domain.Guest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guests []domain.Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, err
		}
		guests = append(guests, g)
	}
	return guests, rows.Err()
}

// GuestsByPhone returns every guest registered under the number, in
// creation order, the party a counter search resolves to.
func (r *Repository) GuestsByPhone(ctx context.Context, phone string) ([]domain.Guest, error) {
	return r.collectGuests(ctx, `
		SELECT `+guestColumns+` FROM guests WHERE phone = $1 ORDER BY name
	`, phone)
}

// GuestsByGroupCode resolves a shared-waiver signing group.
func (r *Repository) GuestsByGroupCode(ctx context.Context, code string) ([]domain.Guest, error) {
	return r.collectGuests(ctx, `
		SELECT `+guestColumns+` FROM guests WHERE group_code = $1 ORDER BY name
	`, code)
}

// SearchGuestsByName matches a case-insensitive name fragment.
func (r *Repository) SearchGuestsByName(ctx context.Context, fragment string) ([]domain.Guest, error) {
	return r.collectGuests(ctx, `
		SELECT `+guestColumns+` FROM guests WHERE name ILIKE '%' || $1 || '%' ORDER BY name
	`, fragment)
}

func (r *Repository) ListGuests(ctx context.Context) ([]domain.Guest, error) {
	return r.collectGuests(ctx, `
		SELECT `+guestColumns+` FROM guests ORDER BY name
	`)
}

// GuestsWithWaiverSignedBetween feeds the waiver-expiry sweep: guests
// whose waiver anniversary falls inside the window are about to flip
// to EXPIRED.
func (r *Repository) GuestsWithWaiverSignedBetween(ctx context.Context, from, to time.Time) ([]domain.Guest, error) {
	return r.collectGuests(ctx, `
		SELECT `+guestColumns+` FROM guests
		WHERE waiver_signed_on IS NOT NULL AND waiver_signed_on >= $1 AND waiver_signed_on < $2
	`, from, to)
}
