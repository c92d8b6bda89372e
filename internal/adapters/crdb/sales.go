package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jumpindia/funzone-pos/internal/domain"
	"golang.org/x/sync/errgroup"
)

// InsertSale writes the immutable sale snapshot. Sale rows are never
// updated afterwards.
func (r *Repository) InsertSale(ctx context.Context, tx pgx.Tx, sale domain.Sale) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO sales (id, customer_id, customer_name, subtotal, discount_amount, gst_amount, total, sale_date, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sale.ID, sale.CustomerID, sale.CustomerName, sale.Subtotal, sale.DiscountAmount, sale.GSTAmount, sale.Total, sale.Date, string(sale.PaymentMethod))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range sale.Items {
		i, item := i, item
		g.Go(func() error {
			_, err := tx.Exec(gctx, `
				INSERT INTO sale_items (sale_id, position, item_id, name, price, category, assigned_guest_id, assigned_guest_name)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, sale.ID, i, item.ItemID, item.Name, item.Price, string(item.Category), item.AssignedGuestID, item.AssignedGuestName)
			return err
		})
	}
	return g.Wait()
}

func (r *Repository) scanSales(rows pgx.Rows) ([]domain.Sale, error) {
	defer rows.Close()
	var sales []domain.Sale
	for rows.Next() {
		var s domain.Sale
		var method string
		if err := rows.Scan(&s.ID, &s.CustomerID, &s.CustomerName, &s.Subtotal, &s.DiscountAmount, &s.GSTAmount, &s.Total, &s.Date, &method); err != nil {
			return nil, err
		}
		s.PaymentMethod = domain.PaymentMethod(method)
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

const saleColumns = `id, customer_id, customer_name, subtotal, discount_amount, gst_amount, total, sale_date, payment_method`

func (r *Repository) GetSale(ctx context.Context, id uuid.UUID) (domain.Sale, error) {
	var s domain.Sale
	var method string
	err := r.pool.QueryRow(ctx, `
		SELECT `+saleColumns+` FROM sales WHERE id = $1
	`, id).Scan(&s.ID, &s.CustomerID, &s.CustomerName, &s.Subtotal, &s.DiscountAmount, &s.GSTAmount, &s.Total, &s.Date, &method)
	if err == pgx.ErrNoRows {
		return domain.Sale{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Sale{}, err
	}
	s.PaymentMethod = domain.PaymentMethod(method)

	rows, err := r.pool.Query(ctx, `
		SELECT item_id, name, price, category, assigned_guest_id, assigned_guest_name
		FROM sale_items WHERE sale_id = $1 ORDER BY position
	`, id)
	if err != nil {
		return domain.Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.CartEntry
		var category string
		if err := rows.Scan(&item.ItemID, &item.Name, &item.Price, &category, &item.AssignedGuestID, &item.AssignedGuestName); err != nil {
			return domain.Sale{}, err
		}
		item.Category = domain.ItemCategory(category)
		s.Items = append(s.Items, item)
	}
	return s, rows.Err()
}

func (r *Repository) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+saleColumns+` FROM sales ORDER BY sale_date DESC
	`)
	if err != nil {
		return nil, err
	}
	return r.scanSales(rows)
}

// ListSalesBetween feeds the drawer reconciliation window and the
// daily history view.
func (r *Repository) ListSalesBetween(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+saleColumns+` FROM sales WHERE sale_date >= $1 AND sale_date <= $2 ORDER BY sale_date
	`, from, to)
	if err != nil {
		return nil, err
	}
	return r.scanSales(rows)
}

// LastSaleDateForGuests powers the "last visit" lookup used by the
// suggestion prompt: the newest sale whose customer of record is any
// of the given guests.
func (r *Repository) LastSaleDateForGuests(ctx context.Context, guestIDs []uuid.UUID) (*time.Time, int, error) {
	if len(guestIDs) == 0 {
		return nil, 0, nil
	}
	var last *time.Time
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT max(sale_date), count(*) FROM sales WHERE customer_id = ANY($1)
	`, guestIDs).Scan(&last, &count)
	if err != nil {
		return nil, 0, err
	}
	return last, count, nil
}
