package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jumpindia/funzone-pos/internal/domain"
)

// SaveDrawerSession upserts the session head and appends any deposits
// not yet stored. Deposits are append-only: existing rows are left
// untouched.
func (r *Repository) SaveDrawerSession(ctx context.Context, tx pgx.Tx, s domain.CashDrawerSession) error {
	var attName, attType, attData *string
	if s.DiscrepancyAttachment != nil {
		attName, attType, attData = &s.DiscrepancyAttachment.Name, &s.DiscrepancyAttachment.Type, &s.DiscrepancyAttachment.Data
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO drawer_sessions (id, opening_time, closing_time, opening_balance, closing_balance,
			opened_by, closed_by, status, opening_reason, discrepancy_reason,
			attachment_name, attachment_type, attachment_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			closing_time = EXCLUDED.closing_time,
			closing_balance = EXCLUDED.closing_balance,
			closed_by = EXCLUDED.closed_by,
			status = EXCLUDED.status,
			discrepancy_reason = EXCLUDED.discrepancy_reason,
			attachment_name = EXCLUDED.attachment_name,
			attachment_type = EXCLUDED.attachment_type,
			attachment_data = EXCLUDED.attachment_data
	`, s.ID, s.OpeningTime, s.ClosingTime, s.OpeningBalance, s.ClosingBalance,
		s.OpenedBy, s.ClosedBy, string(s.Status), s.OpeningReason, s.DiscrepancyReason,
		attName, attType, attData)
	if err != nil {
		return err
	}

	for _, d := range s.Deposits {
		_, err := tx.Exec(ctx, `
			INSERT INTO drawer_deposits (id, session_id, amount, recorded_at, recorded_by, notes)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, d.ID, s.ID, d.Amount, d.Timestamp, d.RecordedBy, d.Notes)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) loadDeposits(ctx context.Context, s *domain.CashDrawerSession) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, amount, recorded_at, recorded_by, notes
		FROM drawer_deposits WHERE session_id = $1 ORDER BY recorded_at
	`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var d domain.Deposit
		if err := rows.Scan(&d.ID, &d.Amount, &d.Timestamp, &d.RecordedBy, &d.Notes); err != nil {
			return err
		}
		s.Deposits = append(s.Deposits, d)
	}
	return rows.Err()
}

const drawerColumns = `id, opening_time, closing_time, opening_balance, closing_balance,
	opened_by, closed_by, status, opening_reason, discrepancy_reason,
	attachment_name, attachment_type, attachment_data`

func scanDrawerSession(row pgx.Row) (domain.CashDrawerSession, error) {
	var s domain.CashDrawerSession
	var status string
	var attName, attType, attData *string
	err := row.Scan(&s.ID, &s.OpeningTime, &s.ClosingTime, &s.OpeningBalance, &s.ClosingBalance,
		&s.OpenedBy, &s.ClosedBy, &status, &s.OpeningReason, &s.DiscrepancyReason,
		&attName, &attType, &attData)
	if err != nil {
		return s, err
	}
	s.Status = domain.DrawerStatus(status)
	if attName != nil {
		s.DiscrepancyAttachment = &domain.Attachment{Name: *attName, Type: *attType, Data: *attData}
	}
	return s, nil
}

func (r *Repository) GetDrawerSession(ctx context.Context, id uuid.UUID) (domain.CashDrawerSession, error) {
	s, err := scanDrawerSession(r.pool.QueryRow(ctx, `
		SELECT `+drawerColumns+` FROM drawer_sessions WHERE id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return domain.CashDrawerSession{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CashDrawerSession{}, err
	}
	if err := r.loadDeposits(ctx, &s); err != nil {
		return domain.CashDrawerSession{}, err
	}
	return s, nil
}

// GetOpenDrawerSession returns the single OPEN session, or ErrNotFound
// when the register is closed.
func (r *Repository) GetOpenDrawerSession(ctx context.Context) (domain.CashDrawerSession, error) {
	s, err := scanDrawerSession(r.pool.QueryRow(ctx, `
		SELECT `+drawerColumns+` FROM drawer_sessions WHERE status = 'OPEN' ORDER BY opening_time DESC LIMIT 1
	`))
	if err == pgx.ErrNoRows {
		return domain.CashDrawerSession{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CashDrawerSession{}, err
	}
	if err := r.loadDeposits(ctx, &s); err != nil {
		return domain.CashDrawerSession{}, err
	}
	return s, nil
}

// ListDrawerSessions returns session history, newest first.
func (r *Repository) ListDrawerSessions(ctx context.Context) ([]domain.CashDrawerSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+drawerColumns+` FROM drawer_sessions ORDER BY opening_time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.CashDrawerSession
	for rows.Next() {
		s, err := scanDrawerSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range sessions {
		if err := r.loadDeposits(ctx, &sessions[i]); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}
