package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jumpindia/funzone-pos/internal/adapters/crdb"
	"github.com/jumpindia/funzone-pos/internal/adapters/mongo"
	"github.com/jumpindia/funzone-pos/internal/auth"
	"github.com/jumpindia/funzone-pos/internal/config"
	"github.com/jumpindia/funzone-pos/internal/domain"
	"github.com/jumpindia/funzone-pos/internal/drawer"
	"github.com/jumpindia/funzone-pos/internal/idempotency"
	"github.com/jumpindia/funzone-pos/internal/notify"
	"github.com/jumpindia/funzone-pos/internal/pos"
	"github.com/jumpindia/funzone-pos/internal/suggest"
)

type Handlers struct {
	cfg     *config.Config
	pos     *pos.Service
	drawer  *drawer.Service
	repo    *crdb.Repository
	catalog *mongo.CatalogRepository
	suggest *suggest.Client
	auth    *auth.Store
	idemp   *idempotency.Idempotency
}

func NewHandlers(cfg *config.Config, posSvc *pos.Service, drawerSvc *drawer.Service, repo *crdb.Repository, catalog *mongo.CatalogRepository, suggestClient *suggest.Client, authStore *auth.Store, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		cfg:     cfg,
		pos:     posSvc,
		drawer:  drawerSvc,
		repo:    repo,
		catalog: catalog,
		suggest: suggestClient,
		auth:    authStore,
		idemp:   idemp,
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, domain.ErrPermission):
		http.Error(w, "not allowed", http.StatusForbidden)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, "conflict", http.StatusConflict)
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type transactionView struct {
	ID       uuid.UUID         `json:"id"`
	Phone    string            `json:"phone"`
	Guests   []guestView       `json:"guests"`
	Cart     []cartEntryView   `json:"cart"`
	Discount *domain.Discount  `json:"discount,omitempty"`
	Totals   transactionTotals `json:"totals"`
	Eligible bool              `json:"checkout_eligible"`
}

type transactionTotals struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	GST      float64 `json:"gst"`
	Total    float64 `json:"total"`
}

type guestView struct {
	ID           uuid.UUID           `json:"id"`
	Name         string              `json:"name"`
	Phone        string              `json:"phone"`
	Age          int                 `json:"age"`
	WaiverStatus domain.WaiverStatus `json:"waiver_status"`
}

type cartEntryView struct {
	ItemID            string              `json:"item_id"`
	Name              string              `json:"name"`
	Price             float64             `json:"price"`
	Category          domain.ItemCategory `json:"category"`
	AssignedGuestID   *uuid.UUID          `json:"assigned_guest_id,omitempty"`
	AssignedGuestName string              `json:"assigned_guest_name,omitempty"`
}

func viewTransaction(t domain.Transaction) transactionView {
	now := time.Now()
	guests := make([]guestView, len(t.Guests))
	for i, g := range t.Guests {
		guests[i] = guestView{
			ID:           g.ID,
			Name:         g.Name,
			Phone:        g.Phone,
			Age:          g.Age(now),
			WaiverStatus: domain.GetWaiverStatus(g, now),
		}
	}
	cart := make([]cartEntryView, len(t.Cart))
	for i, e := range t.Cart {
		cart[i] = cartEntryView{
			ItemID:            e.ItemID,
			Name:              e.Name,
			Price:             e.Price,
			Category:          e.Category,
			AssignedGuestID:   e.AssignedGuestID,
			AssignedGuestName: e.AssignedGuestName,
		}
	}
	var discount *domain.Discount
	if t.Discount.Value != 0 {
		d := t.Discount
		discount = &d
	}
	return transactionView{
		ID:       t.ID,
		Phone:    t.Phone,
		Guests:   guests,
		Cart:     cart,
		Discount: discount,
		Totals: transactionTotals{
			Subtotal: domain.Subtotal(t),
			Discount: domain.DiscountAmount(t),
			GST:      domain.TaxAmount(t),
			Total:    domain.GrandTotal(t),
		},
		Eligible: t.CheckoutEligible(now),
	}
}

// StartTransaction opens or resumes the transaction for a phone number
// and makes it the register's active transaction.
func (h *Handlers) StartTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone    string      `json:"phone"`
		GuestIDs []uuid.UUID `json:"guest_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	guests := make([]domain.Guest, 0, len(req.GuestIDs))
	for _, id := range req.GuestIDs {
		g, err := h.repo.GetGuest(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		guests = append(guests, g)
	}

	t, err := h.pos.StartOrResume(r.Context(), req.Phone, guests)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewTransaction(t))
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.ListTransactions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]transactionView, len(list))
	for i, t := range list {
		views[i] = viewTransaction(t)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handlers) ActiveTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := h.pos.Active(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTransaction(t))
}

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	t, err := h.repo.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTransaction(t))
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t, err := h.pos.AddItem(r.Context(), id, req.ProductID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTransaction(t))
}

func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	itemID := chi.URLParam(r, "itemID")
	t, err := h.pos.RemoveItem(r.Context(), id, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTransaction(t))
}

func (h *Handlers) SetDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Type  domain.DiscountType `json:"type"`
		Value float64             `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t, err := h.pos.SetDiscount(r.Context(), id, domain.Discount{Type: req.Type, Value: req.Value}, userCode(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTransaction(t))
}

// BulkAssign replaces all ticket and membership assignments in one
// shot. Cart entries are addressed by index.
func (h *Handlers) BulkAssign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Assignments []struct {
			CartIndex int       `json:"cart_index"`
			GuestID   uuid.UUID `json:"guest_id"`
		} `json:"assignments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	assignments := make(map[int]uuid.UUID, len(req.Assignments))
	for _, a := range req.Assignments {
		assignments[a.CartIndex] = a.GuestID
	}
	t, err := h.pos.BulkAssign(r.Context(), id, assignments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTransaction(t))
}

// AutoAssignJumpers fills the transaction's open ticket slots with
// waiver-valid guests, asking the suggestion model for the pairing.
// Existing assignments are kept.
func (h *Handlers) AutoAssignJumpers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	t, err := h.repo.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	assigned := make(map[uuid.UUID]bool)
	assignments := make(map[int]uuid.UUID)
	var slots []int
	for i, e := range t.Cart {
		if !e.Category.NeedsAssignment() {
			continue
		}
		if e.AssignedGuestID != nil {
			assigned[*e.AssignedGuestID] = true
			assignments[i] = *e.AssignedGuestID
			continue
		}
		slots = append(slots, i)
	}
	var eligible []domain.Guest
	for _, g := range t.Guests {
		if !assigned[g.ID] && domain.GetWaiverStatus(g, now) == domain.WaiverValid {
			eligible = append(eligible, g)
		}
	}

	ctx, cancel := h.suggestionContext(r)
	defer cancel()
	for slot, guestID := range h.suggest.AutoAssign(ctx, eligible, slots) {
		assignments[slot] = guestID
	}

	t, err = h.pos.BulkAssign(r.Context(), id, assignments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTransaction(t))
}

func (h *Handlers) Unassign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	guestID, err := uuid.Parse(chi.URLParam(r, "guestID"))
	if err != nil {
		http.Error(w, "invalid guest id", http.StatusBadRequest)
		return
	}
	t, err := h.pos.Unassign(r.Context(), id, guestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTransaction(t))
}

func (h *Handlers) MergeTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		SourceIDs []uuid.UUID `json:"source_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.SourceIDs) == 0 {
		http.Error(w, "no sources to merge", http.StatusBadRequest)
		return
	}
	t, err := h.pos.Merge(r.Context(), id, req.SourceIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTransaction(t))
}

func (h *Handlers) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.pos.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout finalizes a transaction into a sale. The Idempotency-Key
// header replays the stored response for retried requests.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		PaymentMethod domain.PaymentMethod `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sale, err := h.pos.Checkout(r.Context(), id, req.PaymentMethod, userCode(r))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"sale_id":         sale.ID,
		"receipt_no":      notify.ReceiptNo(sale),
		"customer_name":   sale.CustomerName,
		"subtotal":        sale.Subtotal,
		"discount_amount": sale.DiscountAmount,
		"gst_amount":      sale.GSTAmount,
		"total":           sale.Total,
		"payment_method":  sale.PaymentMethod,
		"date":            sale.Date.Format(time.RFC3339),
	}
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) RegisterGuest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		DOB          string `json:"dob"`
		Email        string `json:"email"`
		Phone        string `json:"phone"`
		GuardianName string `json:"guardian_name"`
		GroupCode    string `json:"group_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dob, err := time.Parse("2006-01-02", req.DOB)
	if err != nil {
		http.Error(w, "invalid dob", http.StatusBadRequest)
		return
	}

	g := domain.NewGuest(req.Name, dob, req.Email, req.Phone)
	g.GuardianName = req.GuardianName
	g.GroupCode = req.GroupCode

	g, err = h.pos.RegisterGuest(r.Context(), g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"guest_id": g.ID})
}

// SearchGuests looks customers up by phone, name fragment, or group
// code, in that order of precedence.
func (h *Handlers) SearchGuests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		guests []domain.Guest
		err    error
	)
	switch {
	case q.Get("phone") != "":
		guests, err = h.repo.GuestsByPhone(r.Context(), q.Get("phone"))
	case q.Get("name") != "":
		guests, err = h.repo.SearchGuestsByName(r.Context(), q.Get("name"))
	case q.Get("group") != "":
		guests, err = h.repo.GuestsByGroupCode(r.Context(), q.Get("group"))
	default:
		guests, err = h.repo.ListGuests(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	views := make([]guestView, len(guests))
	for i, g := range guests {
		views[i] = guestView{
			ID:           g.ID,
			Name:         g.Name,
			Phone:        g.Phone,
			Age:          g.Age(now),
			WaiverStatus: domain.GetWaiverStatus(g, now),
		}
	}
	writeJSON(w, http.StatusOK, views)
}

// SignWaiver records a signature. The Idempotency-Key header replays
// the stored response so a retried signing keeps its original
// timestamp.
func (h *Handlers) SignWaiver(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Signature    string `json:"signature"`
		GuardianName string `json:"guardian_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g, err := h.pos.SignWaiver(r.Context(), id, req.Signature, req.GuardianName)
	if err != nil {
		writeError(w, err)
		return
	}

	data, _ := json.Marshal(map[string]interface{}{
		"guest_id":      g.ID,
		"waiver_status": domain.GetWaiverStatus(g, time.Now()),
		"signed_on":     g.WaiverSignedOn.Format(time.RFC3339),
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusOK, Result: data})
}

// suggestionContext caps how long any advisory call may hold a request.
func (h *Handlers) suggestionContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.cfg.SuggestionTimeout)
}

func (h *Handlers) WaiverText(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.suggestionContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]string{"text": h.suggest.WaiverText(ctx)})
}

func (h *Handlers) SafetyTip(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.suggestionContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]string{"tip": h.suggest.SafetyTip(ctx)})
}

// TransactionSuggestion asks the model for a cashier tip about the
// party, grounded in their purchase history.
func (h *Handlers) TransactionSuggestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	t, err := h.repo.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	ids := make([]uuid.UUID, len(t.Guests))
	for i, g := range t.Guests {
		ids[i] = g.ID
	}
	lastVisit, count, err := h.repo.LastSaleDateForGuests(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := h.suggestionContext(r)
	defer cancel()
	tip := h.suggest.TransactionSuggestion(ctx, t, count, lastVisit)
	writeJSON(w, http.StatusOK, map[string]string{"suggestion": tip})
}

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handlers) ListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		sales []domain.Sale
		err   error
	)
	if q.Get("from") != "" && q.Get("to") != "" {
		var from, to time.Time
		from, err = time.Parse(time.RFC3339, q.Get("from"))
		if err == nil {
			to, err = time.Parse(time.RFC3339, q.Get("to"))
		}
		if err != nil {
			http.Error(w, "invalid time range", http.StatusBadRequest)
			return
		}
		sales, err = h.repo.ListSalesBetween(r.Context(), from, to)
	} else {
		sales, err = h.repo.ListSales(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (h *Handlers) GetSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	sale, err := h.repo.GetSale(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (h *Handlers) SaleReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	sale, err := h.repo.GetSale(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	html, err := notify.RenderReceipt(sale)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

func (h *Handlers) OpenDrawer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OpeningBalance float64 `json:"opening_balance"`
		Reason         string  `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	session, err := h.drawer.Open(r.Context(), req.OpeningBalance, userCode(r), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handlers) CurrentDrawer(w http.ResponseWriter, r *http.Request) {
	session, err := h.drawer.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	expected, err := h.drawer.ExpectedCash(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":       session,
		"expected_cash": expected,
	})
}

// DrawerDeposit moves cash into the safe. The Idempotency-Key header
// replays the stored response so a retried request cannot record the
// movement twice.
func (h *Handlers) DrawerDeposit(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
		Notes  string  `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dep, err := h.drawer.Deposit(r.Context(), req.Amount, userCode(r), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}

	data, _ := json.Marshal(dep)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

// CloseDrawer reconciles and finalizes the open session. A retried
// close replays the stored response instead of failing on the already
// closed session.
func (h *Handlers) CloseDrawer(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		CountedBalance float64            `json:"counted_balance"`
		Reason         string             `json:"reason"`
		Attachment     *domain.Attachment `json:"attachment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	session, discrepancy, err := h.drawer.Close(r.Context(), req.CountedBalance, userCode(r), req.Reason, req.Attachment)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]interface{}{
		"session":     session,
		"discrepancy": discrepancy,
	}
	if discrepancy != 0 {
		ctx, cancel := h.suggestionContext(r)
		defer cancel()
		resp["discrepancy_note"] = h.suggest.DiscrepancyNarrative(ctx, session, discrepancy)
	}

	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusOK, Result: data})
}

func (h *Handlers) DrawerHistory(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.drawer.History(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handlers) ListStaff(w http.ResponseWriter, r *http.Request) {
	users := h.auth.Users()
	views := make([]map[string]string, len(users))
	for i, u := range users {
		views[i] = map[string]string{"code": u.Code, "name": u.Name, "role": u.Role}
	}
	writeJSON(w, http.StatusOK, views)
}

// PutStaff adds or replaces a staff member. The role must already
// exist so a typo cannot create a user that holds nothing.
func (h *Handlers) PutStaff(w http.ResponseWriter, r *http.Request) {
	if !h.auth.HasPermission(userCode(r), auth.PermManageStaff) {
		http.Error(w, "not allowed", http.StatusForbidden)
		return
	}
	var req struct {
		Code string `json:"code"`
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.Name == "" {
		http.Error(w, "code and name are required", http.StatusBadRequest)
		return
	}
	if _, ok := h.auth.RolePermissions(req.Role); !ok {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}
	h.auth.PutUser(auth.User{Code: req.Code, Name: req.Name, Role: req.Role})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	perms, ok := h.auth.RolePermissions(role)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"role": role, "permissions": perms})
}

// SetRole replaces a role's permission set wholesale.
func (h *Handlers) SetRole(w http.ResponseWriter, r *http.Request) {
	if !h.auth.HasPermission(userCode(r), auth.PermManageRoles) {
		http.Error(w, "not allowed", http.StatusForbidden)
		return
	}
	role := chi.URLParam(r, "role")
	var req struct {
		Permissions []auth.Permission `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, p := range req.Permissions {
		if !auth.ValidPermission(p) {
			http.Error(w, "unknown permission "+string(p), http.StatusBadRequest)
			return
		}
	}
	h.auth.SetRole(role, req.Permissions)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
