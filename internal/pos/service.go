package pos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jumpindia/funzone-pos/internal/adapters/crdb"
	"github.com/jumpindia/funzone-pos/internal/adapters/mongo"
	"github.com/jumpindia/funzone-pos/internal/auth"
	"github.com/jumpindia/funzone-pos/internal/domain"
	"github.com/jumpindia/funzone-pos/internal/observability"
)

// Store is the persistence surface the sale lifecycle needs.
type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	GetTransaction(ctx context.Context, id uuid.UUID) (domain.Transaction, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	SaveTransaction(ctx context.Context, tx pgx.Tx, t domain.Transaction) error
	DeleteTransaction(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	GetGuest(ctx context.Context, id uuid.UUID) (domain.Guest, error)
	UpsertGuest(ctx context.Context, g domain.Guest) error
	InsertSale(ctx context.Context, tx pgx.Tx, sale domain.Sale) error
	InsertOutbox(ctx context.Context, tx pgx.Tx, rec crdb.OutboxRecord) error
}

// ActiveCache tracks which open transaction a register is working on.
type ActiveCache interface {
	SetActiveTransaction(ctx context.Context, id uuid.UUID) error
	ActiveTransaction(ctx context.Context) (uuid.UUID, bool, error)
	ClearActiveTransaction(ctx context.Context) error
}

// Catalog resolves sellable products by id.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*mongo.ProductDoc, error)
}

// Permissions answers feature-gate questions for a user code.
type Permissions interface {
	HasPermission(userCode string, perm auth.Permission) bool
}

// Audit records business events out of band. Failures are logged, not
// surfaced to the customer flow.
type Audit interface {
	LogSale(ctx context.Context, userCode string, sale domain.Sale) error
	LogWaiverSigned(ctx context.Context, guest domain.Guest) error
}

// Service runs the open-transaction lifecycle: start or resume, build
// the cart, assign jumpers, merge parties, and check out into a sale.
type Service struct {
	store   Store
	cache   ActiveCache
	catalog Catalog
	perms   Permissions
	audit   Audit
	logger  observability.Logger
}

func NewService(store Store, cache ActiveCache, catalog Catalog, perms Permissions, audit Audit, logger observability.Logger) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		catalog: catalog,
		perms:   perms,
		audit:   audit,
		logger:  logger,
	}
}

// StartOrResume returns the open transaction holding the given phone,
// or creates a fresh one. Either way the result becomes the register's
// active transaction. New guests are folded into a resumed party.
func (s *Service) StartOrResume(ctx context.Context, phone string, guests []domain.Guest) (domain.Transaction, error) {
	if phone == "" {
		return domain.Transaction{}, domain.ErrValidation
	}

	open, err := s.store.ListTransactions(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	for _, t := range open {
		if !t.HasPhone(phone) {
			continue
		}
		changed := false
		for _, g := range guests {
			known := false
			for _, existing := range t.Guests {
				if existing.ID == g.ID {
					known = true
					break
				}
			}
			if !known {
				t.Guests = append(t.Guests, g)
				changed = true
			}
		}
		if changed {
			if err := s.save(ctx, t); err != nil {
				return domain.Transaction{}, err
			}
		}
		if err := s.cache.SetActiveTransaction(ctx, t.ID); err != nil {
			s.logger.Error("failed to set active transaction", err)
		}
		return t, nil
	}

	// An active transaction with an empty cart is reused in place
	// instead of leaving an abandoned shell in the pending pool.
	if activeID, ok, err := s.cache.ActiveTransaction(ctx); err == nil && ok {
		if active, err := s.store.GetTransaction(ctx, activeID); err == nil && len(active.Cart) == 0 {
			active.Repurpose(phone, guests)
			if err := s.save(ctx, active); err != nil {
				return domain.Transaction{}, err
			}
			return active, nil
		}
	}

	t := domain.NewTransaction(phone, guests)
	if err := s.save(ctx, t); err != nil {
		return domain.Transaction{}, err
	}
	if err := s.cache.SetActiveTransaction(ctx, t.ID); err != nil {
		s.logger.Error("failed to set active transaction", err)
	}
	return t, nil
}

// Active returns the register's current transaction, if any.
func (s *Service) Active(ctx context.Context) (domain.Transaction, error) {
	id, ok, err := s.cache.ActiveTransaction(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return s.store.GetTransaction(ctx, id)
}

// AddItem resolves a catalog product and appends it to the cart.
// Tickets and memberships auto-assign to the first waiver-valid guest
// without one.
func (s *Service) AddItem(ctx context.Context, transactionID uuid.UUID, productID string) (domain.Transaction, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Transaction{}, err
	}
	t, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.AddEntry(product.Entry(), time.Now())
	if err := s.save(ctx, t); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

func (s *Service) RemoveItem(ctx context.Context, transactionID uuid.UUID, itemID string) (domain.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := t.RemoveItem(itemID); err != nil {
		return domain.Transaction{}, err
	}
	if err := s.save(ctx, t); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// SetDiscount applies a discount to the transaction; the user needs
// the apply-discount grant. A zero-value discount clears it.
func (s *Service) SetDiscount(ctx context.Context, transactionID uuid.UUID, d domain.Discount, userCode string) (domain.Transaction, error) {
	if !s.perms.HasPermission(userCode, auth.PermApplyDiscount) {
		return domain.Transaction{}, domain.ErrPermission
	}
	if d.Value != 0 {
		if err := domain.ValidateDiscount(d); err != nil {
			return domain.Transaction{}, err
		}
	}
	t, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if d.Value == 0 {
		t.Discount = domain.Discount{}
	} else {
		t.Discount = d
	}
	if err := s.save(ctx, t); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

func (s *Service) BulkAssign(ctx context.Context, transactionID uuid.UUID, assignments map[int]uuid.UUID) (domain.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.BulkAssign(assignments)
	if err := s.save(ctx, t); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

func (s *Service) Unassign(ctx context.Context, transactionID, guestID uuid.UUID) (domain.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.Unassign(guestID)
	if err := s.save(ctx, t); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// Merge folds the source transactions into the target and deletes the
// sources. The target keeps its identity; carts concatenate, guest
// lists union, phone strings join.
func (s *Service) Merge(ctx context.Context, targetID uuid.UUID, sourceIDs []uuid.UUID) (domain.Transaction, error) {
	target, err := s.store.GetTransaction(ctx, targetID)
	if err != nil {
		return domain.Transaction{}, err
	}
	sources := make([]domain.Transaction, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if id == targetID {
			return domain.Transaction{}, domain.ErrValidation
		}
		src, err := s.store.GetTransaction(ctx, id)
		if err != nil {
			return domain.Transaction{}, err
		}
		sources = append(sources, src)
	}

	target.Merge(sources)

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.SaveTransaction(ctx, tx, target); err != nil {
			return err
		}
		for _, src := range sources {
			if err := s.store.DeleteTransaction(ctx, tx, src.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if activeID, ok, _ := s.cache.ActiveTransaction(ctx); ok {
		for _, src := range sources {
			if src.ID == activeID {
				if err := s.cache.SetActiveTransaction(ctx, target.ID); err != nil {
					s.logger.Error("failed to repoint active transaction", err)
				}
				break
			}
		}
	}
	return target, nil
}

// Delete abandons an open transaction without producing a sale.
func (s *Service) Delete(ctx context.Context, transactionID uuid.UUID) error {
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		return s.store.DeleteTransaction(ctx, tx, transactionID)
	})
	if err != nil {
		return err
	}
	if activeID, ok, _ := s.cache.ActiveTransaction(ctx); ok && activeID == transactionID {
		if err := s.cache.ClearActiveTransaction(ctx); err != nil {
			s.logger.Error("failed to clear active transaction", err)
		}
	}
	return nil
}

type saleCompletedEvent struct {
	SaleID        uuid.UUID `json:"sale_id"`
	CustomerName  string    `json:"customer_name"`
	Total         float64   `json:"total"`
	PaymentMethod string    `json:"payment_method"`
	Date          time.Time `json:"date"`
}

// Checkout finalizes the transaction into an immutable sale. Waiver
// validity is re-evaluated at this instant, not at assignment time.
// The sale insert, transaction delete, and event record commit in one
// transaction.
func (s *Service) Checkout(ctx context.Context, transactionID uuid.UUID, method domain.PaymentMethod, userCode string) (domain.Sale, error) {
	t, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := domain.NewSale(t, method, time.Now())
	if err != nil {
		return domain.Sale{}, err
	}

	payload, err := json.Marshal(saleCompletedEvent{
		SaleID:        sale.ID,
		CustomerName:  sale.CustomerName,
		Total:         sale.Total,
		PaymentMethod: string(sale.PaymentMethod),
		Date:          sale.Date,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.InsertSale(ctx, tx, sale); err != nil {
			return err
		}
		if err := s.store.DeleteTransaction(ctx, tx, t.ID); err != nil {
			return err
		}
		return s.store.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("sale", sale.ID, "sale.completed", payload))
	})
	if err != nil {
		return domain.Sale{}, err
	}

	observability.SalesTotal.WithLabelValues(string(method)).Inc()

	if activeID, ok, _ := s.cache.ActiveTransaction(ctx); ok && activeID == t.ID {
		if err := s.cache.ClearActiveTransaction(ctx); err != nil {
			s.logger.Error("failed to clear active transaction", err)
		}
	}
	if err := s.audit.LogSale(ctx, userCode, sale); err != nil {
		s.logger.Error("failed to audit sale", err)
	}
	return sale, nil
}

type waiverSignedEvent struct {
	GuestID  uuid.UUID `json:"guest_id"`
	Name     string    `json:"name"`
	SignedOn time.Time `json:"signed_on"`
}

// SignWaiver records a waiver signature for a guest, making them
// eligible for assignment for one year.
func (s *Service) SignWaiver(ctx context.Context, guestID uuid.UUID, signature, guardianName string) (domain.Guest, error) {
	g, err := s.store.GetGuest(ctx, guestID)
	if err != nil {
		return domain.Guest{}, err
	}
	if guardianName != "" {
		g.GuardianName = guardianName
	}
	if err := g.SignWaiver(signature, time.Now()); err != nil {
		return domain.Guest{}, err
	}
	if err := s.store.UpsertGuest(ctx, g); err != nil {
		return domain.Guest{}, err
	}

	payload, err := json.Marshal(waiverSignedEvent{
		GuestID:  g.ID,
		Name:     g.Name,
		SignedOn: *g.WaiverSignedOn,
	})
	if err == nil {
		err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
			return s.store.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("guest", g.ID, "waiver.signed", payload))
		})
	}
	if err != nil {
		s.logger.Error("failed to record waiver event", err)
	}
	if err := s.audit.LogWaiverSigned(ctx, g); err != nil {
		s.logger.Error("failed to audit waiver", err)
	}
	return g, nil
}

// RegisterGuest creates or updates a guest profile.
func (s *Service) RegisterGuest(ctx context.Context, g domain.Guest) (domain.Guest, error) {
	if g.Name == "" || g.Phone == "" {
		return domain.Guest{}, domain.ErrValidation
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if err := s.store.UpsertGuest(ctx, g); err != nil {
		return domain.Guest{}, err
	}
	return g, nil
}

func (s *Service) save(ctx context.Context, t domain.Transaction) error {
	return s.store.WithTx(ctx, func(tx pgx.Tx) error {
		return s.store.SaveTransaction(ctx, tx, t)
	})
}
