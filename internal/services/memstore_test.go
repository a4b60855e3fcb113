package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/parkpass/ticketing-backend/internal/database"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// memStore is an in-memory implementation of every storage port. Slot and
// cart row locks are real mutexes held until the fake transaction ends, and
// rows written inside a transaction become visible to others only on commit.
type memStore struct {
	mu sync.Mutex

	slots     map[string]*models.Slot
	rowLocks  map[string]*sync.Mutex
	bookings  []*models.Booking
	carts     map[uuid.UUID]*models.Cart
	items     map[uuid.UUID][]models.CartItem
	catalog   map[uuid.UUID]*models.CatalogItem
	addons    map[uuid.UUID]*models.Addon
	rules     []models.OfferRule
	coupons   map[string]*models.Coupon
	holidays  []time.Time
	templates []models.SlotTemplate
	audits    []*models.PaymentAudit
	attempts  []*models.PaymentAttempt

	seq           int
	ticketsIssued int
}

func newMemStore() *memStore {
	return &memStore{
		slots:    map[string]*models.Slot{},
		rowLocks: map[string]*sync.Mutex{},
		carts:    map[uuid.UUID]*models.Cart{},
		items:    map[uuid.UUID][]models.CartItem{},
		catalog:  map[uuid.UUID]*models.CatalogItem{},
		addons:   map[uuid.UUID]*models.Addon{},
		coupons:  map[string]*models.Coupon{},
	}
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func slotKey(kind models.SlotKind, id uuid.UUID) string {
	return string(kind) + ":" + id.String()
}

var errUnique = &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

// ---------------------------------------------------------------------------
// transactions

type memTx struct {
	sqlx.ExtContext

	held            map[string]*sync.Mutex
	pendingBookings []*models.Booking
	pendingSlots    []*models.Slot
}

type memTxManager struct {
	store *memStore
}

func (m *memTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, tx database.Tx) error) error {
	tx := &memTx{held: map[string]*sync.Mutex{}}
	defer func() {
		for _, l := range tx.held {
			l.Unlock()
		}
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.store.commit(tx)
	return nil
}

func asMemTx(tx database.Tx) *memTx {
	if tx == nil {
		return nil
	}
	mt, _ := tx.(*memTx)
	return mt
}

func (s *memStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = append(s.bookings, tx.pendingBookings...)
	for _, slot := range tx.pendingSlots {
		s.slots[slotKey(slot.Kind, slot.ID)] = slot
	}
}

func (s *memStore) lockRow(tx database.Tx, key string) error {
	mt := asMemTx(tx)
	if mt == nil {
		return fmt.Errorf("row lock requires a transaction")
	}
	if _, ok := mt.held[key]; ok {
		return nil
	}
	s.mu.Lock()
	l, ok := s.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	mt.held[key] = l
	return nil
}

// ---------------------------------------------------------------------------
// seeding helpers

func (s *memStore) addCatalogItem(price string) *models.CatalogItem {
	item := &models.CatalogItem{ID: uuid.New(), Name: "Water Park", BasePrice: decimal.RequireFromString(price), Active: true}
	s.catalog[item.ID] = item
	return item
}

func (s *memStore) addSlot(kind models.SlotKind, ownerID uuid.UUID, date time.Time, capacity int) *models.Slot {
	slot, err := models.NewSlot(kind, ownerID, date, date, "10:00", "11:00", capacity, decimal.NullDecimal{})
	if err != nil {
		panic(err)
	}
	s.slots[slotKey(kind, slot.ID)] = slot
	return slot
}

func (s *memStore) seedBooked(slot *models.Slot, quantity int) {
	id := slot.ID
	b := &models.Booking{
		ID:            uuid.New(),
		Ref:           fmt.Sprintf("BK-SEED-%d", len(s.bookings)),
		Quantity:      quantity,
		PaymentStatus: models.PaymentStatusCompleted,
		BookingStatus: models.BookingStatusBooked,
	}
	if slot.Kind == models.SlotKindCombo {
		b.TargetType = models.TargetCombo
		b.ComboSlotID = &id
	} else {
		b.TargetType = models.TargetAttraction
		b.SlotID = &id
	}
	s.bookings = append(s.bookings, b)
}

func (s *memStore) bookedOn(slot *models.Slot) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumLocked(slot.Kind, slot.ID, nil)
}

func (s *memStore) slotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

func (s *memStore) auditsOf(event models.PaymentEventType) []*models.PaymentAudit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PaymentAudit
	for _, a := range s.audits {
		if a.EventType == event {
			out = append(out, a)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// SlotStore

func (s *memStore) GetSlot(_ context.Context, kind models.SlotKind, id uuid.UUID) (*models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotKey(kind, id)]
	if !ok {
		return nil, nil
	}
	c := *slot
	return &c, nil
}

func (s *memStore) LockSlot(ctx context.Context, tx database.Tx, kind models.SlotKind, id uuid.UUID) (*models.Slot, error) {
	if err := s.lockRow(tx, "slot:"+slotKey(kind, id)); err != nil {
		return nil, err
	}
	return s.GetSlot(ctx, kind, id)
}

func bookingOnSlot(b *models.Booking, kind models.SlotKind, id uuid.UUID) bool {
	k, ref := b.SlotRef()
	return ref != nil && k == kind && *ref == id
}

func (s *memStore) sumLocked(kind models.SlotKind, id uuid.UUID, mt *memTx) int {
	total := 0
	all := s.bookings
	if mt != nil {
		all = append(append([]*models.Booking{}, s.bookings...), mt.pendingBookings...)
	}
	for _, b := range all {
		if b.BookingStatus != models.BookingStatusCancelled && bookingOnSlot(b, kind, id) {
			total += b.Quantity
		}
	}
	return total
}

func (s *memStore) SumBookedQuantity(_ context.Context, tx database.Tx, kind models.SlotKind, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumLocked(kind, id, asMemTx(tx)), nil
}

func (s *memStore) CountOverlapping(_ context.Context, tx database.Tx, slot *models.Slot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, existing := range s.slots {
		if existing.ID != slot.ID && existing.Overlaps(slot) {
			n++
		}
	}
	if mt := asMemTx(tx); mt != nil {
		for _, pending := range mt.pendingSlots {
			if pending.ID != slot.ID && pending.Overlaps(slot) {
				n++
			}
		}
	}
	return n, nil
}

func (s *memStore) CreateSlot(_ context.Context, tx database.Tx, slot *models.Slot) error {
	if mt := asMemTx(tx); mt != nil {
		mt.pendingSlots = append(mt.pendingSlots, slot)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slotKey(slot.Kind, slot.ID)] = slot
	return nil
}

// ---------------------------------------------------------------------------
// readers

func (s *memStore) GetItem(_ context.Context, _ models.TargetType, id uuid.UUID) (*models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog[id], nil
}

func (s *memStore) GetAddon(_ context.Context, id uuid.UUID) (*models.Addon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addons[id], nil
}

func (s *memStore) ListActiveRules(_ context.Context, _ time.Time) ([]models.OfferRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OfferRule{}, s.rules...), nil
}

func (s *memStore) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[strings.ToUpper(code)], nil
}

func (s *memStore) ListBetween(_ context.Context, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, h := range s.holidays {
		if !h.Before(from) && !h.After(to) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *memStore) ListActive(_ context.Context) ([]models.SlotTemplate, error) {
	return s.templates, nil
}

func (s *memStore) Log(_ context.Context, a *models.PaymentAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, a)
	return nil
}

// ---------------------------------------------------------------------------
// BookingStore, exposed through memBookings to avoid method name clashes with the cart store

type memBookings struct{ *memStore }

func copyBooking(b *models.Booking) *models.Booking {
	c := *b
	return &c
}

func (s memBookings) GenerateBookingRef(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("BK-20250101-%06X", s.seq), nil
}

func (s memBookings) Create(_ context.Context, tx database.Tx, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mt := asMemTx(tx)
	all := s.bookings
	if mt != nil {
		all = append(append([]*models.Booking{}, s.bookings...), mt.pendingBookings...)
	}
	for _, existing := range all {
		if existing.Ref == b.Ref {
			return errUnique
		}
		if b.CartItemID != nil && existing.CartItemID != nil && *existing.CartItemID == *b.CartItemID {
			return errUnique
		}
	}
	b.CreatedAt, b.UpdatedAt = time.Now(), time.Now()
	stored := copyBooking(b)
	if mt != nil {
		mt.pendingBookings = append(mt.pendingBookings, stored)
	} else {
		s.bookings = append(s.bookings, stored)
	}
	return nil
}

func (s memBookings) find(match func(*models.Booking) bool) *models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if match(b) {
			return copyBooking(b)
		}
	}
	return nil
}

func (s memBookings) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.find(func(b *models.Booking) bool { return b.ID == id }), nil
}

func (s memBookings) GetByRef(_ context.Context, ref string) (*models.Booking, error) {
	return s.find(func(b *models.Booking) bool { return b.Ref == ref }), nil
}

func (s memBookings) ListByCartID(_ context.Context, tx database.Tx, cartID uuid.UUID) ([]*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.bookings
	if mt := asMemTx(tx); mt != nil {
		all = append(append([]*models.Booking{}, s.bookings...), mt.pendingBookings...)
	}
	var out []*models.Booking
	for _, b := range all {
		if b.CartID != nil && *b.CartID == cartID {
			out = append(out, copyBooking(b))
		}
	}
	return out, nil
}

func (s memBookings) update(id uuid.UUID, fn func(*models.Booking) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.ID == id {
			return fn(b)
		}
	}
	return false
}

func (s memBookings) SetPaymentAttempt(_ context.Context, id uuid.UUID, token, txnNo string, customer models.Customer) (bool, error) {
	return s.update(id, func(b *models.Booking) bool {
		if b.PaymentStatus != models.PaymentStatusPending {
			return false
		}
		b.PaymentRef, b.PaymentTxnNo = &token, &txnNo
		if customer.Email != "" {
			b.CustomerEmail = &customer.Email
		}
		if customer.Mobile != "" {
			b.CustomerMobile = &customer.Mobile
		}
		return true
	}), nil
}

func (s memBookings) MarkPaymentCompleted(_ context.Context, id uuid.UUID, token, txnNo string) (bool, error) {
	return s.update(id, func(b *models.Booking) bool {
		if b.PaymentStatus != models.PaymentStatusPending {
			return false
		}
		b.PaymentStatus = models.PaymentStatusCompleted
		b.PaymentRef, b.PaymentTxnNo = &token, &txnNo
		return true
	}), nil
}

func (s memBookings) Cancel(_ context.Context, id uuid.UUID) (bool, error) {
	return s.update(id, func(b *models.Booking) bool {
		if b.BookingStatus == models.BookingStatusCancelled {
			return false
		}
		b.BookingStatus = models.BookingStatusCancelled
		if b.PaymentStatus == models.PaymentStatusPending {
			b.PaymentStatus = models.PaymentStatusCancelled
		}
		return true
	}), nil
}

func (s memBookings) SetTicketArtifact(_ context.Context, id uuid.UUID, ref string) (bool, error) {
	ok := s.update(id, func(b *models.Booking) bool {
		if b.TicketArtifactRef != nil {
			return false
		}
		b.TicketArtifactRef = &ref
		s.ticketsIssued++
		return true
	})
	return ok, nil
}

func (s memBookings) TicketArtifactExists(_ context.Context, ref string) (bool, error) {
	return s.find(func(b *models.Booking) bool {
		return b.TicketArtifactRef != nil && *b.TicketArtifactRef == ref
	}) != nil, nil
}

// ---------------------------------------------------------------------------
// CartStore

type memCarts struct{ *memStore }

func copyCart(c *models.Cart) *models.Cart {
	cp := *c
	cp.Items = nil
	return &cp
}

func (s memCarts) GenerateCartRef(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("CT-20250101-%06X", s.seq), nil
}

func (s memCarts) GetOpenByOwner(_ context.Context, owner models.CartOwner) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.carts {
		if c.IsActive() && c.OwnedBy(owner) {
			return copyCart(c), nil
		}
	}
	return nil, nil
}

func (s memCarts) find(match func(*models.Cart) bool) *models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.carts {
		if match(c) {
			return copyCart(c)
		}
	}
	return nil
}

func (s memCarts) GetByID(_ context.Context, id uuid.UUID) (*models.Cart, error) {
	return s.find(func(c *models.Cart) bool { return c.ID == id }), nil
}

func (s memCarts) GetByRef(_ context.Context, ref string) (*models.Cart, error) {
	return s.find(func(c *models.Cart) bool { return c.Ref == ref }), nil
}

func (s memCarts) LockByID(ctx context.Context, tx database.Tx, id uuid.UUID) (*models.Cart, error) {
	if err := s.lockRow(tx, "cart:"+id.String()); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s memCarts) Create(_ context.Context, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := models.CartOwner{UserID: cart.UserID}
	if cart.SessionID != nil {
		owner.SessionID = *cart.SessionID
	}
	for _, c := range s.carts {
		if c.IsActive() && c.OwnedBy(owner) {
			return errUnique
		}
	}
	s.carts[cart.ID] = copyCart(cart)
	return nil
}

func (s memCarts) ListItems(_ context.Context, _ database.Tx, cartID uuid.UUID) ([]models.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := append([]models.CartItem{}, s.items[cartID]...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (s memCarts) GetItem(_ context.Context, _ database.Tx, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items[cartID] {
		if it.ID == itemID {
			c := it
			return &c, nil
		}
	}
	return nil, nil
}

func (s memCarts) InsertItem(_ context.Context, _ database.Tx, item *models.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.CreatedAt, item.UpdatedAt = time.Now(), time.Now()
	s.items[item.CartID] = append(s.items[item.CartID], *item)
	return nil
}

func (s memCarts) UpdateItem(_ context.Context, _ database.Tx, item *models.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items[item.CartID] {
		if it.ID == item.ID {
			s.items[item.CartID][i] = *item
			return nil
		}
	}
	return fmt.Errorf("cart item %s not found", item.ID)
}

func (s memCarts) DeleteItem(_ context.Context, _ database.Tx, cartID, itemID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[cartID]
	for i, it := range items {
		if it.ID == itemID {
			s.items[cartID] = append(items[:i:i], items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s memCarts) UpdateTotals(_ context.Context, _ database.Tx, cartID uuid.UUID, amounts models.Amounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[cartID]; ok {
		c.Amounts = amounts
	}
	return nil
}

func (s memCarts) update(id uuid.UUID, fn func(*models.Cart) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return false
	}
	return fn(c)
}

func (s memCarts) SetPaymentAttempt(_ context.Context, id uuid.UUID, token, txnNo string, amount decimal.Decimal, customer models.Customer) (bool, error) {
	return s.update(id, func(c *models.Cart) bool {
		if !c.IsActive() || c.PaymentStatus != models.PaymentStatusPending || !c.FinalAmount.Equal(amount) {
			return false
		}
		c.Status = models.CartStatusCheckout
		c.PaymentRef, c.PaymentTxnNo = &token, &txnNo
		c.CustomerEmail, c.CustomerMobile = &customer.Email, &customer.Mobile
		return true
	}), nil
}

func (s memCarts) MarkPaid(_ context.Context, id uuid.UUID, token, txnNo string) (bool, error) {
	return s.update(id, func(c *models.Cart) bool {
		if c.Status == models.CartStatusPaid || c.PaymentStatus == models.PaymentStatusCompleted {
			return false
		}
		c.Status, c.PaymentStatus = models.CartStatusPaid, models.PaymentStatusCompleted
		c.PaymentRef, c.PaymentTxnNo = &token, &txnNo
		return true
	}), nil
}

func (s memCarts) MarkAbandoned(_ context.Context, id uuid.UUID) (bool, error) {
	return s.update(id, func(c *models.Cart) bool {
		if !c.IsActive() {
			return false
		}
		c.Status = models.CartStatusAbandoned
		if c.PaymentStatus == models.PaymentStatusPending {
			c.PaymentStatus = models.PaymentStatusCancelled
		}
		return true
	}), nil
}

// ---------------------------------------------------------------------------
// PaymentAttemptStore

type memAttempts struct{ *memStore }

func (s memAttempts) Create(_ context.Context, a *models.PaymentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.Token == a.Token || existing.TxnNo == a.TxnNo {
			return errUnique
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	c := *a
	s.attempts = append(s.attempts, &c)
	return nil
}

func (s memAttempts) GetByToken(_ context.Context, token string) (*models.PaymentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.attempts) - 1; i >= 0; i-- {
		if a := s.attempts[i]; a.Token == token || a.TxnNo == token {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// collaborators

type fakeGateway struct {
	mu sync.Mutex

	initErr     error
	initiations []models.InitiateParams

	status      *models.GatewayResult
	statusErr   error
	statusCalls int

	refund      *models.GatewayResult
	refundErr   error
	refundCalls []string
}

func (g *fakeGateway) Initiate(_ context.Context, p models.InitiateParams) (*models.PaymentInitiation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.initiations = append(g.initiations, p)
	token := fmt.Sprintf("tranctx-%d", len(g.initiations))
	return &models.PaymentInitiation{
		CorrelationID: p.CorrelationID,
		Token:         token,
		RedirectURL:   "https://pay.example.com/checkout?tranCtx=" + token,
	}, nil
}

func (g *fakeGateway) Status(_ context.Context, _ string) (*models.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return g.status, nil
}

func (g *fakeGateway) Refund(_ context.Context, refundID, _ string, _ decimal.Decimal) (*models.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls = append(g.refundCalls, refundID)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return g.refund, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *recordingNotifier) Dispatch(_ context.Context, msg models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// flakyIssuer fails the first failures calls, then defers to the wrapped issuer
type flakyIssuer struct {
	TicketIssuer

	mu       sync.Mutex
	failures int
	calls    int
}

func (i *flakyIssuer) Issue(ctx context.Context, b *models.Booking) (string, bool, error) {
	i.mu.Lock()
	i.calls++
	fail := i.calls <= i.failures
	i.mu.Unlock()
	if fail {
		return "", false, fmt.Errorf("ticket storage unavailable")
	}
	return i.TicketIssuer.Issue(ctx, b)
}

func (i *flakyIssuer) callCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls
}

// ---------------------------------------------------------------------------
// wiring

type testEnv struct {
	store       *memStore
	gateway     *fakeGateway
	notifier    *recordingNotifier
	issuer      *flakyIssuer
	queue       *TaskQueue
	fulfillment *Fulfillment
	ledger      *CapacityLedger
	pricing     *PricingEngine
	scheduler   *SlotScheduler
	bookings    *BookingService
	carts       *CartService
	payments    *PaymentService
}

func newTestEnv() *testEnv {
	logger := testLogger()
	store := newMemStore()
	txm := &memTxManager{store: store}
	bookingStore := memBookings{store}
	cartStore := memCarts{store}
	attemptStore := memAttempts{store}

	env := &testEnv{
		store:    store,
		gateway:  &fakeGateway{status: &models.GatewayResult{Success: true, Code: "0000"}, refund: &models.GatewayResult{Success: true, Code: "0000"}},
		notifier: &recordingNotifier{},
		issuer:   &flakyIssuer{TicketIssuer: NewQRTicketIssuer(bookingStore, logger)},
		queue:    NewTaskQueue(2, 16, logger),
	}
	env.queue.retryBackoff = time.Millisecond
	env.ledger = NewCapacityLedger(store, logger)
	env.pricing = NewPricingEngine(store, store, store, store, logger)
	env.scheduler = NewSlotScheduler(store, env.ledger, store, store, txm, logger)
	env.bookings = NewBookingService(txm, env.ledger, env.pricing, bookingStore, nil, logger)
	env.carts = NewCartService(txm, env.ledger, env.pricing, cartStore, bookingStore, nil, logger)
	env.fulfillment = NewFulfillment(env.issuer, bookingStore, env.notifier, env.queue, nil, true, logger)
	env.payments = NewPaymentService(env.gateway, bookingStore, cartStore, attemptStore, env.carts, env.fulfillment, store, nil, logger)
	return env
}

func day(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
