package drawer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jumpindia/funzone-pos/internal/adapters/crdb"
	"github.com/jumpindia/funzone-pos/internal/auth"
	"github.com/jumpindia/funzone-pos/internal/domain"
	"github.com/jumpindia/funzone-pos/internal/observability"
)

// lockTTL bounds how long a crashed register can hold the drawer lock.
const lockTTL = 14 * time.Hour

// Store is the persistence surface for drawer sessions.
type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	SaveDrawerSession(ctx context.Context, tx pgx.Tx, s domain.CashDrawerSession) error
	GetDrawerSession(ctx context.Context, id uuid.UUID) (domain.CashDrawerSession, error)
	GetOpenDrawerSession(ctx context.Context) (domain.CashDrawerSession, error)
	ListDrawerSessions(ctx context.Context) ([]domain.CashDrawerSession, error)
	ListSalesBetween(ctx context.Context, from, to time.Time) ([]domain.Sale, error)
	InsertOutbox(ctx context.Context, tx pgx.Tx, rec crdb.OutboxRecord) error
}

// Lock serializes drawer opens across registers.
type Lock interface {
	AcquireDrawerLock(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	ReleaseDrawerLock(ctx context.Context) error
}

type Permissions interface {
	HasPermission(userCode string, perm auth.Permission) bool
}

type Audit interface {
	LogDrawerOpen(ctx context.Context, userCode string, session domain.CashDrawerSession) error
	LogDrawerDeposit(ctx context.Context, userCode string, sessionID uuid.UUID, dep domain.Deposit) error
	LogDrawerClose(ctx context.Context, userCode string, session domain.CashDrawerSession, discrepancy float64) error
}

// Service manages cash drawer sessions: one open session at a time,
// deposits bounded by expected cash, and a reconciled close.
type Service struct {
	store  Store
	lock   Lock
	perms  Permissions
	audit  Audit
	logger observability.Logger
}

func NewService(store Store, lock Lock, perms Permissions, audit Audit, logger observability.Logger) *Service {
	return &Service{
		store:  store,
		lock:   lock,
		perms:  perms,
		audit:  audit,
		logger: logger,
	}
}

// Open starts a drawer session. At most one session may be open; a
// second open attempt fails with ErrConflict.
func (s *Service) Open(ctx context.Context, openingBalance float64, userCode, reason string) (domain.CashDrawerSession, error) {
	session, err := domain.OpenDrawer(openingBalance, userCode, reason, time.Now())
	if err != nil {
		return domain.CashDrawerSession{}, err
	}

	ok, err := s.lock.AcquireDrawerLock(ctx, session.ID.String(), lockTTL)
	if err != nil {
		return domain.CashDrawerSession{}, err
	}
	if !ok {
		return domain.CashDrawerSession{}, domain.ErrConflict
	}

	if _, err := s.store.GetOpenDrawerSession(ctx); err == nil {
		s.releaseLock(ctx)
		return domain.CashDrawerSession{}, domain.ErrConflict
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.releaseLock(ctx)
		return domain.CashDrawerSession{}, err
	}

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		return s.store.SaveDrawerSession(ctx, tx, session)
	})
	if err != nil {
		s.releaseLock(ctx)
		return domain.CashDrawerSession{}, err
	}
	if err := s.audit.LogDrawerOpen(ctx, userCode, session); err != nil {
		s.logger.Error("failed to audit drawer open", err)
	}
	return session, nil
}

// Current returns the open session, or ErrNotFound.
func (s *Service) Current(ctx context.Context) (domain.CashDrawerSession, error) {
	return s.store.GetOpenDrawerSession(ctx)
}

// ExpectedCash reports what the open session's drawer should hold now.
func (s *Service) ExpectedCash(ctx context.Context) (float64, error) {
	session, err := s.store.GetOpenDrawerSession(ctx)
	if err != nil {
		return 0, err
	}
	sales, err := s.windowSales(ctx, session)
	if err != nil {
		return 0, err
	}
	return session.ExpectedCash(sales), nil
}

// Deposit removes cash from the open drawer into the safe. The user
// needs the make-deposit grant; the amount may not exceed expected
// cash on hand.
func (s *Service) Deposit(ctx context.Context, amount float64, userCode, notes string) (domain.Deposit, error) {
	if !s.perms.HasPermission(userCode, auth.PermMakeDeposit) {
		return domain.Deposit{}, domain.ErrPermission
	}
	session, err := s.store.GetOpenDrawerSession(ctx)
	if err != nil {
		return domain.Deposit{}, err
	}
	sales, err := s.windowSales(ctx, session)
	if err != nil {
		return domain.Deposit{}, err
	}
	dep, err := session.RecordDeposit(amount, userCode, notes, sales, time.Now())
	if err != nil {
		return domain.Deposit{}, err
	}
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		return s.store.SaveDrawerSession(ctx, tx, session)
	})
	if err != nil {
		return domain.Deposit{}, err
	}
	if err := s.audit.LogDrawerDeposit(ctx, userCode, session.ID, dep); err != nil {
		s.logger.Error("failed to audit drawer deposit", err)
	}
	return dep, nil
}

type drawerClosedEvent struct {
	SessionID      uuid.UUID `json:"session_id"`
	OpeningBalance float64   `json:"opening_balance"`
	ClosingBalance float64   `json:"closing_balance"`
	ExpectedCash   float64   `json:"expected_cash"`
	Discrepancy    float64   `json:"discrepancy"`
	ClosedBy       string    `json:"closed_by"`
	ClosedAt       time.Time `json:"closed_at"`
}

// Close counts the drawer and finalizes the session, returning it with
// the computed discrepancy. Only the opener or a holder of the
// close-any grant may close. A non-zero discrepancy requires a reason;
// an attachment is optional evidence.
func (s *Service) Close(ctx context.Context, countedBalance float64, userCode, reason string, attachment *domain.Attachment) (domain.CashDrawerSession, float64, error) {
	session, err := s.store.GetOpenDrawerSession(ctx)
	if err != nil {
		return domain.CashDrawerSession{}, 0, err
	}
	sales, err := s.windowSales(ctx, session)
	if err != nil {
		return domain.CashDrawerSession{}, 0, err
	}

	discrepancy := session.Discrepancy(countedBalance, sales)
	if discrepancy != 0 && reason == "" {
		return domain.CashDrawerSession{}, 0, domain.ErrValidation
	}

	hasCloseAny := s.perms.HasPermission(userCode, auth.PermCloseAnyDrawer)
	if err := session.Close(countedBalance, userCode, hasCloseAny, reason, attachment, sales, time.Now()); err != nil {
		return domain.CashDrawerSession{}, 0, err
	}

	expected := session.ExpectedCash(sales)
	payload, err := json.Marshal(drawerClosedEvent{
		SessionID:      session.ID,
		OpeningBalance: session.OpeningBalance,
		ClosingBalance: countedBalance,
		ExpectedCash:   expected,
		Discrepancy:    discrepancy,
		ClosedBy:       userCode,
		ClosedAt:       *session.ClosingTime,
	})
	if err != nil {
		return domain.CashDrawerSession{}, 0, err
	}

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.SaveDrawerSession(ctx, tx, session); err != nil {
			return err
		}
		return s.store.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("drawer", session.ID, "drawer.closed", payload))
	})
	if err != nil {
		return domain.CashDrawerSession{}, 0, err
	}

	s.releaseLock(ctx)
	if err := s.audit.LogDrawerClose(ctx, userCode, session, discrepancy); err != nil {
		s.logger.Error("failed to audit drawer close", err)
	}
	return session, discrepancy, nil
}

// History lists past and present sessions, newest first per store order.
func (s *Service) History(ctx context.Context) ([]domain.CashDrawerSession, error) {
	return s.store.ListDrawerSessions(ctx)
}

// windowSales fetches the sales falling inside the session window; the
// window ends now while the session is open.
func (s *Service) windowSales(ctx context.Context, session domain.CashDrawerSession) ([]domain.Sale, error) {
	until := time.Now()
	if session.ClosingTime != nil {
		until = *session.ClosingTime
	}
	return s.store.ListSalesBetween(ctx, session.OpeningTime, until)
}

func (s *Service) releaseLock(ctx context.Context) {
	if err := s.lock.ReleaseDrawerLock(ctx); err != nil {
		s.logger.Error("failed to release drawer lock", err)
	}
}
