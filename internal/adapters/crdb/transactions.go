package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jumpindia/funzone-pos/internal/domain"
	"golang.org/x/sync/errgroup"
)

// SaveTransaction replaces the pending transaction whole: head row
// upserted, guest list and cart entries rewritten. Child rows carry a
// position column so load order matches the order the cashier built.
func (r *Repository) SaveTransaction(ctx context.Context, tx pgx.Tx, t domain.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, phone, discount_type, discount_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			phone = EXCLUDED.phone,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value
	`, t.ID, t.Phone, string(t.Discount.Type), t.Discount.Value)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM transaction_guests WHERE transaction_id = $1`, t.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_entries WHERE transaction_id = $1`, t.ID); err != nil {
		return err
	}

	for i, g := range t.Guests {
		_, err := tx.Exec(ctx, `
			INSERT INTO transaction_guests (transaction_id, position, guest_id)
			VALUES ($1, $2, $3)
		`, t.ID, i, g.ID)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range t.Cart {
		i, entry := i, entry
		g.Go(func() error {
			_, err := tx.Exec(gctx, `
				INSERT INTO cart_entries (transaction_id, position, item_id, name, price, category, assigned_guest_id, assigned_guest_name)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, t.ID, i, entry.ItemID, entry.Name, entry.Price, string(entry.Category), entry.AssignedGuestID, entry.AssignedGuestName)
			return err
		})
	}
	return g.Wait()
}

func (r *Repository) loadTransactionChildren(ctx context.Context, t *domain.Transaction) error {
	rows, err := r.pool.Query(ctx, `
		SELECT g.id, g.name, g.dob, g.email, g.phone, g.waiver_signed_on,
		       g.waiver_signature, g.guardian_name, g.group_code, g.group_waiver_date
		FROM transaction_guests tg
		JOIN guests g ON g.id = tg.guest_id
		WHERE tg.transaction_id = $1
		ORDER BY tg.position
	`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return err
		}
		t.Guests = append(t.Guests, g)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	entryRows, err := r.pool.Query(ctx, `
		SELECT item_id, name, price, category, assigned_guest_id, assigned_guest_name
		FROM cart_entries WHERE transaction_id = $1 ORDER BY position
	`, t.ID)
	if err != nil {
		return err
	}
	defer entryRows.Close()
	for entryRows.Next() {
		var e domain.CartEntry
		var category string
		if err := entryRows.Scan(&e.ItemID, &e.Name, &e.Price, &category, &e.AssignedGuestID, &e.AssignedGuestName); err != nil {
			return err
		}
		e.Category = domain.ItemCategory(category)
		t.Cart = append(t.Cart, e)
	}
	return entryRows.Err()
}

func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	var t domain.Transaction
	var discountType string
	err := r.pool.QueryRow(ctx, `
		SELECT id, phone, discount_type, discount_value FROM transactions WHERE id = $1
	`, id).Scan(&t.ID, &t.Phone, &discountType, &t.Discount.Value)
	if err == pgx.ErrNoRows {
		return domain.Transaction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, err
	}
	t.Discount.Type = domain.DiscountType(discountType)
	if err := r.loadTransactionChildren(ctx, &t); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// ListTransactions returns the whole pending pool, oldest first.
func (r *Repository) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, phone, discount_type, discount_value FROM transactions ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var heads []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var discountType string
		if err := rows.Scan(&t.ID, &t.Phone, &discountType, &t.Discount.Value); err != nil {
			return nil, err
		}
		t.Discount.Type = domain.DiscountType(discountType)
		heads = append(heads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range heads {
		if err := r.loadTransactionChildren(ctx, &heads[i]); err != nil {
			return nil, err
		}
	}
	return heads, nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM transaction_guests WHERE transaction_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_entries WHERE transaction_id = $1`, id); err != nil {
		return err
	}
	result, err := tx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
