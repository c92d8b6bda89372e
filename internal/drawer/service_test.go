package drawer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jumpindia/funzone-pos/internal/adapters/crdb"
	"github.com/jumpindia/funzone-pos/internal/auth"
	"github.com/jumpindia/funzone-pos/internal/domain"
	"github.com/jumpindia/funzone-pos/internal/drawer"
	"github.com/jumpindia/funzone-pos/internal/observability"
)

type fakeStore struct {
	sessions map[uuid.UUID]domain.CashDrawerSession
	sales    []domain.Sale
	outbox   []crdb.OutboxRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[uuid.UUID]domain.CashDrawerSession)}
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (f *fakeStore) SaveDrawerSession(ctx context.Context, tx pgx.Tx, s domain.CashDrawerSession) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeStore) GetDrawerSession(ctx context.Context, id uuid.UUID) (domain.CashDrawerSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return domain.CashDrawerSession{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) GetOpenDrawerSession(ctx context.Context) (domain.CashDrawerSession, error) {
	for _, s := range f.sessions {
		if s.Status == domain.DrawerOpen {
			return s, nil
		}
	}
	return domain.CashDrawerSession{}, domain.ErrNotFound
}

func (f *fakeStore) ListDrawerSessions(ctx context.Context) ([]domain.CashDrawerSession, error) {
	out := make([]domain.CashDrawerSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) ListSalesBetween(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	var out []domain.Sale
	for _, s := range f.sales {
		if !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertOutbox(ctx context.Context, tx pgx.Tx, rec crdb.OutboxRecord) error {
	f.outbox = append(f.outbox, rec)
	return nil
}

type fakeLock struct {
	held bool
}

func (f *fakeLock) AcquireDrawerLock(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) ReleaseDrawerLock(ctx context.Context) error {
	f.held = false
	return nil
}

type fakePerms struct {
	granted map[string]map[auth.Permission]bool
}

func (f *fakePerms) HasPermission(userCode string, perm auth.Permission) bool {
	return f.granted[userCode][perm]
}

type fakeAudit struct {
	opens    int
	deposits int
	closes   int
}

func (f *fakeAudit) LogDrawerOpen(ctx context.Context, userCode string, session domain.CashDrawerSession) error {
	f.opens++
	return nil
}

func (f *fakeAudit) LogDrawerDeposit(ctx context.Context, userCode string, sessionID uuid.UUID, dep domain.Deposit) error {
	f.deposits++
	return nil
}

func (f *fakeAudit) LogDrawerClose(ctx context.Context, userCode string, session domain.CashDrawerSession, discrepancy float64) error {
	f.closes++
	return nil
}

type nopLogger struct{}

func (nopLogger) Info(args ...interface{})  {}
func (nopLogger) Error(args ...interface{}) {}
func (nopLogger) Debug(args ...interface{}) {}
func (nopLogger) Warn(args ...interface{})  {}
func (nopLogger) WithField(key string, value interface{}) observability.Logger {
	return nopLogger{}
}

func allGranted() *fakePerms {
	return &fakePerms{granted: map[string]map[auth.Permission]bool{
		"1111": {auth.PermMakeDeposit: true, auth.PermCloseAnyDrawer: true},
		"3333": {auth.PermMakeDeposit: true},
	}}
}

func newService(store *fakeStore, lock *fakeLock) (*drawer.Service, *fakeAudit) {
	audit := &fakeAudit{}
	return drawer.NewService(store, lock, allGranted(), audit, nopLogger{}), audit
}

func cashSale(total float64, at time.Time) domain.Sale {
	return domain.Sale{
		ID:            uuid.New(),
		Total:         total,
		Date:          at,
		PaymentMethod: domain.PayCash,
	}
}

func TestService_OpenOnlyOneSession(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _ := newService(store, &fakeLock{})

	session, err := svc.Open(ctx, 2500, "3333", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if session.Status != domain.DrawerOpen {
		t.Fatalf("expected OPEN, got %s", session.Status)
	}

	if _, err := svc.Open(ctx, 1000, "1111", ""); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on second open, got %v", err)
	}
}

func TestService_OpenRejectsNegativeFloat(t *testing.T) {
	svc, _ := newService(newFakeStore(), &fakeLock{})
	if _, err := svc.Open(context.Background(), -1, "3333", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestService_DepositBoundedByExpectedCash(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _ := newService(store, &fakeLock{})

	session, err := svc.Open(ctx, 2500, "3333", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.sales = append(store.sales, cashSale(850, time.Now()))

	expected, err := svc.ExpectedCash(ctx)
	if err != nil {
		t.Fatalf("ExpectedCash: %v", err)
	}
	if expected != 3350 {
		t.Fatalf("expected 3350 on hand, got %v", expected)
	}

	if _, err := svc.Deposit(ctx, 5000, "3333", "safe drop"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for over-deposit, got %v", err)
	}

	dep, err := svc.Deposit(ctx, 1000, "3333", "safe drop")
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if dep.Amount != 1000 {
		t.Fatalf("unexpected deposit %+v", dep)
	}

	expected, _ = svc.ExpectedCash(ctx)
	if expected != 2350 {
		t.Fatalf("expected 2350 after deposit, got %v", expected)
	}

	persisted := store.sessions[session.ID]
	if len(persisted.Deposits) != 1 {
		t.Fatalf("deposit not persisted: %+v", persisted.Deposits)
	}
}

func TestService_AuditsEveryDrawerAction(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, audit := newService(store, &fakeLock{})

	if _, err := svc.Open(ctx, 2500, "3333", ""); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if audit.opens != 1 {
		t.Fatalf("open not audited: %d entries", audit.opens)
	}

	store.sales = append(store.sales, cashSale(850, time.Now()))
	if _, err := svc.Deposit(ctx, 1000, "3333", "safe drop"); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if audit.deposits != 1 {
		t.Fatalf("deposit not audited: %d entries", audit.deposits)
	}

	if _, _, err := svc.Close(ctx, 2350, "3333", "", nil); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if audit.closes != 1 {
		t.Fatalf("close not audited: %d entries", audit.closes)
	}
}

func TestService_DepositRequiresPermission(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(newFakeStore(), &fakeLock{})
	if _, err := svc.Open(ctx, 500, "3333", ""); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := svc.Deposit(ctx, 100, "9999", ""); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

func TestService_CloseByOpener(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	lock := &fakeLock{}
	svc, audit := newService(store, lock)

	session, _ := svc.Open(ctx, 2500, "3333", "")
	store.sales = append(store.sales, cashSale(850, time.Now()))

	closed, discrepancy, err := svc.Close(ctx, 3350, "3333", "", nil)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if discrepancy != 0 {
		t.Fatalf("expected balanced close, got discrepancy %v", discrepancy)
	}
	if closed.Status != domain.DrawerClosed {
		t.Fatalf("expected CLOSED, got %s", closed.Status)
	}
	if closed.ClosingBalance == nil || *closed.ClosingBalance != 3350 {
		t.Fatalf("unexpected closing balance %+v", closed.ClosingBalance)
	}
	if lock.held {
		t.Fatal("drawer lock should be released after close")
	}
	if audit.closes != 1 {
		t.Fatalf("expected 1 audited close, got %d", audit.closes)
	}
	if len(store.outbox) != 1 || store.outbox[0].EventType != "drawer.closed" {
		t.Fatalf("expected drawer.closed outbox record, got %+v", store.outbox)
	}
	if store.sessions[session.ID].Status != domain.DrawerClosed {
		t.Fatal("close not persisted")
	}
}

func TestService_CloseByOtherUserNeedsCloseAny(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _ := newService(store, &fakeLock{})

	svc.Open(ctx, 1000, "3333", "")

	// 9999 is neither the opener nor a close-any holder.
	if _, _, err := svc.Close(ctx, 1000, "9999", "", nil); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
	if s, _ := store.GetOpenDrawerSession(ctx); s.Status != domain.DrawerOpen {
		t.Fatal("failed close must leave the session open")
	}

	// 1111 holds close-any.
	if _, _, err := svc.Close(ctx, 1000, "1111", "", nil); err != nil {
		t.Fatalf("Close by manager: %v", err)
	}
}

func TestService_CloseWithDiscrepancyRequiresReason(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _ := newService(store, &fakeLock{})

	svc.Open(ctx, 1000, "3333", "")

	if _, _, err := svc.Close(ctx, 900, "3333", "", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for unexplained shortfall, got %v", err)
	}

	closed, discrepancy, err := svc.Close(ctx, 900, "3333", "till miscount at shift change", nil)
	if err != nil {
		t.Fatalf("Close with reason: %v", err)
	}
	if discrepancy != -100 {
		t.Fatalf("expected -100 discrepancy, got %v", discrepancy)
	}
	if closed.DiscrepancyReason == "" {
		t.Fatal("discrepancy reason should be recorded")
	}
}

func TestService_CloseTwiceFails(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(newFakeStore(), &fakeLock{})

	svc.Open(ctx, 1000, "3333", "")
	if _, _, err := svc.Close(ctx, 1000, "3333", "", nil); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := svc.Close(ctx, 1000, "3333", "", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no open session, got %v", err)
	}
}
