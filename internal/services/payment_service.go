package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/parkpass/ticketing-backend/internal/cache"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentService initiates payments and reconciles gateway outcomes into
// booking and cart state. Both reconciliation channels use Reconcile.
type PaymentService struct {
	gateway     PaymentGateway
	bookings    BookingStore
	carts       CartStore
	attempts    PaymentAttemptStore
	cartService *CartService
	fulfillment *Fulfillment
	audit       AuditLogger
	cache       *cache.AvailabilityCache
	logger      *logrus.Logger

	newCorrelationID func(ref string) string
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	gateway PaymentGateway,
	bookings BookingStore,
	carts CartStore,
	attempts PaymentAttemptStore,
	cartService *CartService,
	fulfillment *Fulfillment,
	audit AuditLogger,
	availability *cache.AvailabilityCache,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		gateway:          gateway,
		bookings:         bookings,
		carts:            carts,
		attempts:         attempts,
		cartService:      cartService,
		fulfillment:      fulfillment,
		audit:            audit,
		cache:            availability,
		logger:           logger,
		newCorrelationID: NewCorrelationID,
	}
}

// logAudit writes an audit entry; failures never affect the payment flow
func (s *PaymentService) logAudit(ctx context.Context, a *models.PaymentAudit) {
	if err := s.audit.Log(ctx, a); err != nil {
		s.logger.WithError(err).WithField("event_type", a.EventType).Warn("Failed to write payment audit")
	}
}

// ============================================================================
// INITIATE
// ============================================================================

// InitiateBookingPayment starts a gateway sale for a pending booking
func (s *PaymentService) InitiateBookingPayment(ctx context.Context, ref string, userID *uuid.UUID, customer models.Customer, meta models.RequestMeta) (*models.InitiatePaymentResponse, error) {
	b, err := s.bookings.GetByRef(ctx, ref)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if b == nil || (userID != nil && !b.BelongsTo(*userID)) {
		return nil, apperr.NotFound("booking")
	}
	if b.IsPaid() {
		return nil, apperr.Conflict(apperr.ErrInvalidState, "booking %s is already paid", b.Ref)
	}
	if b.PaymentStatus != models.PaymentStatusPending || b.BookingStatus != models.BookingStatusBooked {
		return nil, apperr.Conflict(apperr.ErrInvalidState, "booking %s cannot be paid (payment: %s, booking: %s)", b.Ref, b.PaymentStatus, b.BookingStatus)
	}
	if !b.FinalAmount.IsPositive() {
		return nil, apperr.Validation("nothing to pay for booking %s", b.Ref)
	}

	startTime := time.Now()
	correlationID := s.newCorrelationID(b.Ref)
	init, err := s.gateway.Initiate(ctx, models.InitiateParams{
		CorrelationID: correlationID,
		Amount:        b.FinalAmount,
		Customer:      customer,
	})
	if err != nil {
		s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventInitiateFailed, models.PaymentSourceBackend).
			SetBooking(b).SetAmount(b.FinalAmount).SetError(err).SetMetadata(meta).SetProcessingTime(startTime))
		return nil, err
	}

	err = s.recordAttempt(ctx, &models.PaymentAttempt{
		Target:    models.PaymentTargetBooking,
		BookingID: &b.ID,
		Token:     init.Token,
		TxnNo:     correlationID,
		Amount:    b.FinalAmount,
	})
	if err != nil {
		return nil, err
	}
	ok, err := s.bookings.SetPaymentAttempt(ctx, b.ID, init.Token, correlationID, customer)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.Conflict(apperr.ErrInvalidState, "booking %s changed while initiating payment", b.Ref)
	}

	s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceBackend).
		SetBooking(b).SetCorrelationToken(init.Token).SetAmount(b.FinalAmount).
		SetRequestPayload(map[string]interface{}{"merchant_txn_no": correlationID}).
		SetMetadata(meta).SetProcessingTime(startTime))

	s.logger.WithFields(logrus.Fields{
		"booking_ref":    b.Ref,
		"correlation_id": correlationID,
		"token":          init.Token,
	}).Info("Booking payment initiated")

	return &models.InitiatePaymentResponse{
		Reference:        b.Ref,
		RedirectURL:      init.RedirectURL,
		CorrelationToken: init.Token,
		Amount:           b.FinalAmount,
	}, nil
}

// InitiateCartPayment starts a gateway sale for the owner's active cart and
// freezes its items. Retrying from CheckoutPending starts a new attempt for
// the same amount.
func (s *PaymentService) InitiateCartPayment(ctx context.Context, owner models.CartOwner, customer models.Customer, meta models.RequestMeta) (*models.InitiatePaymentResponse, error) {
	cart, err := s.cartService.requireActiveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	cart, err = s.cartService.withItems(ctx, cart)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, apperr.Validation("cart is empty")
	}
	if !cart.FinalAmount.IsPositive() {
		return nil, apperr.Validation("nothing to pay for cart %s", cart.Ref)
	}

	startTime := time.Now()
	correlationID := s.newCorrelationID(cart.Ref)
	init, err := s.gateway.Initiate(ctx, models.InitiateParams{
		CorrelationID: correlationID,
		Amount:        cart.FinalAmount,
		Customer:      customer,
	})
	if err != nil {
		s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventInitiateFailed, models.PaymentSourceBackend).
			SetCart(cart).SetAmount(cart.FinalAmount).SetError(err).SetMetadata(meta).SetProcessingTime(startTime))
		return nil, err
	}

	err = s.recordAttempt(ctx, &models.PaymentAttempt{
		Target: models.PaymentTargetCart,
		CartID: &cart.ID,
		Token:  init.Token,
		TxnNo:  correlationID,
		Amount: cart.FinalAmount,
	})
	if err != nil {
		return nil, err
	}
	ok, err := s.carts.SetPaymentAttempt(ctx, cart.ID, init.Token, correlationID, cart.FinalAmount, customer)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.Conflict(apperr.ErrInvalidState, "cart %s changed while initiating payment", cart.Ref)
	}

	s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceBackend).
		SetCart(cart).SetCorrelationToken(init.Token).SetAmount(cart.FinalAmount).
		SetRequestPayload(map[string]interface{}{"merchant_txn_no": correlationID, "items": len(cart.Items)}).
		SetMetadata(meta).SetProcessingTime(startTime))

	s.logger.WithFields(logrus.Fields{
		"cart_ref":       cart.Ref,
		"correlation_id": correlationID,
		"token":          init.Token,
	}).Info("Cart payment initiated")

	return &models.InitiatePaymentResponse{
		Reference:        cart.Ref,
		RedirectURL:      init.RedirectURL,
		CorrelationToken: init.Token,
		Amount:           cart.FinalAmount,
	}, nil
}

// ============================================================================
// RECONCILE
// ============================================================================

func (s *PaymentService) recordAttempt(ctx context.Context, a *models.PaymentAttempt) error {
	if err := s.attempts.Create(ctx, a); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Reconcile resolves token to the payment attempt that produced it, verifies
// that attempt with the gateway and marks its booking or cart paid. The
// inbound claim of the caller is never trusted.
//
// Only the caller whose conditional update moves Pending to Completed runs
// fulfillment, so concurrent webhook and browser-return calls produce one ticket.
// A gateway error leaves state untouched and is returned.
func (s *PaymentService) Reconcile(ctx context.Context, token string, channel models.ReconcileChannel, meta models.RequestMeta) (*models.ReconcileResult, error) {
	if token == "" {
		return nil, apperr.Validation("payment token is required")
	}

	attempt, err := s.attempts.GetByToken(ctx, token)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	switch {
	case attempt == nil:
	case attempt.BookingID != nil:
		b, err := s.bookings.GetByID(ctx, *attempt.BookingID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if b != nil {
			s.logAudit(ctx, receivedAudit(channel, meta).SetBooking(b).SetCorrelationToken(token))
			return s.reconcileBooking(ctx, b, attempt, token)
		}
	case attempt.CartID != nil:
		cart, err := s.carts.GetByID(ctx, *attempt.CartID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if cart != nil {
			s.logAudit(ctx, receivedAudit(channel, meta).SetCart(cart).SetCorrelationToken(token))
			return s.reconcileCart(ctx, cart, attempt, token)
		}
	}

	s.logAudit(ctx, receivedAudit(channel, meta).SetCorrelationToken(token).
		SetError(fmt.Errorf("no booking or cart for token")))
	return nil, apperr.NotFound("payment")
}

func receivedAudit(channel models.ReconcileChannel, meta models.RequestMeta) *models.PaymentAudit {
	event, source := models.PaymentEventBrowserReturn, models.PaymentSourceBrowser
	if channel == models.ChannelWebhook {
		event, source = models.PaymentEventWebhookReceived, models.PaymentSourceGatewayWebhook
	}
	a := models.NewPaymentAudit(event, source).SetMetadata(meta)
	if meta.Payload != nil {
		a.SetRequestPayload(meta.Payload)
	}
	return a
}

// verify asks the gateway for the authoritative status of txnNo
func (s *PaymentService) verify(ctx context.Context, txnNo string, audit func(*models.PaymentAudit) *models.PaymentAudit) (*models.GatewayResult, error) {
	startTime := time.Now()
	res, err := s.gateway.Status(ctx, txnNo)
	if err != nil {
		s.logAudit(ctx, audit(models.NewPaymentAudit(models.PaymentEventStatusCheckFailed, models.PaymentSourceGatewayAPI)).
			SetError(err).SetProcessingTime(startTime))
		return nil, err
	}
	s.logAudit(ctx, audit(models.NewPaymentAudit(models.PaymentEventStatusCheckResponse, models.PaymentSourceGatewayAPI)).
		SetGatewayResult(res).SetProcessingTime(startTime))
	return res, nil
}

// checkPaidAmount refuses to mark due paid when the attempt was started for a
// different amount, or when the gateway reports one that differs
func (s *PaymentService) checkPaidAmount(ctx context.Context, res *models.GatewayResult, attempt *models.PaymentAttempt, due decimal.Decimal, ref string, audit func(*models.PaymentAudit) *models.PaymentAudit) error {
	var mismatch error
	switch {
	case !attempt.Amount.Equal(due):
		mismatch = fmt.Errorf("attempt %s was initiated for %s but %s is due", attempt.TxnNo, attempt.Amount.StringFixed(2), due.StringFixed(2))
	case res.Amount.Valid && !res.Amount.Decimal.Equal(due):
		mismatch = fmt.Errorf("gateway reported %s for %s but %s is due", res.Amount.Decimal.StringFixed(2), attempt.TxnNo, due.StringFixed(2))
	default:
		return nil
	}

	s.logAudit(ctx, audit(models.NewPaymentAudit(models.PaymentEventError, models.PaymentSourceBackend)).
		SetGatewayResult(res).SetError(mismatch))
	s.logger.WithError(mismatch).WithField("reference", ref).Error("Paid amount does not match amount due")
	return apperr.Conflict(apperr.ErrInvalidState, "paid amount does not match the total of %s", ref)
}

// refulfill reschedules ticket issuance for paid bookings that still have no ticket
func (s *PaymentService) refulfill(ctx context.Context, bookings ...*models.Booking) {
	var missing []*models.Booking
	for _, b := range bookings {
		if b != nil && b.IsPaid() && b.TicketArtifactRef == nil {
			missing = append(missing, b)
		}
	}
	if len(missing) == 0 {
		return
	}
	s.logger.WithField("bookings", len(missing)).Info("Rescheduling ticket issuance for paid bookings")
	s.fulfillment.BookingsPaid(ctx, missing...)
}

func (s *PaymentService) reconcileBooking(ctx context.Context, b *models.Booking, attempt *models.PaymentAttempt, token string) (*models.ReconcileResult, error) {
	result := &models.ReconcileResult{
		Target:    models.PaymentTargetBooking,
		Reference: b.Ref,
		Token:     token,
		Status:    models.ReconcilePending,
	}
	withBooking := func(a *models.PaymentAudit) *models.PaymentAudit {
		return a.SetBooking(b).SetCorrelationToken(token)
	}

	if b.IsPaid() {
		s.logAudit(ctx, withBooking(models.NewPaymentAudit(models.PaymentEventSuccess, models.PaymentSourceBackend)).MarkAsDuplicate())
		s.refulfill(ctx, b)
		result.Status = models.ReconcileSuccess
		result.AlreadyCompleted = true
		result.BookingRefs = []string{b.Ref}
		return result, nil
	}
	if b.PaymentStatus != models.PaymentStatusPending {
		return result, nil
	}

	res, err := s.verify(ctx, attempt.TxnNo, withBooking)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		s.logAudit(ctx, withBooking(models.NewPaymentAudit(models.PaymentEventPending, models.PaymentSourceBackend)).SetGatewayResult(res))
		return result, nil
	}
	if err := s.checkPaidAmount(ctx, res, attempt, b.FinalAmount, b.Ref, withBooking); err != nil {
		return nil, err
	}

	won, err := s.bookings.MarkPaymentCompleted(ctx, b.ID, attempt.Token, attempt.TxnNo)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !won {
		current, err := s.bookings.GetByID(ctx, b.ID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if current != nil && current.IsPaid() {
			s.logAudit(ctx, withBooking(models.NewPaymentAudit(models.PaymentEventSuccess, models.PaymentSourceBackend)).MarkAsDuplicate())
			s.refulfill(ctx, current)
			result.Status = models.ReconcileSuccess
			result.AlreadyCompleted = true
			result.BookingRefs = []string{b.Ref}
		}
		return result, nil
	}

	b.PaymentStatus = models.PaymentStatusCompleted
	b.PaymentRef, b.PaymentTxnNo = &attempt.Token, &attempt.TxnNo
	s.logAudit(ctx, withBooking(models.NewPaymentAudit(models.PaymentEventSuccess, models.PaymentSourceBackend)).
		SetAmount(b.FinalAmount).SetGatewayResult(res))
	s.logger.WithFields(logrus.Fields{
		"booking_ref": b.Ref,
		"token":       token,
	}).Info("Booking payment completed")

	s.fulfillment.BookingsPaid(ctx, b)

	result.Status = models.ReconcileSuccess
	result.BookingRefs = []string{b.Ref}
	return result, nil
}

func (s *PaymentService) reconcileCart(ctx context.Context, cart *models.Cart, attempt *models.PaymentAttempt, token string) (*models.ReconcileResult, error) {
	result := &models.ReconcileResult{
		Target:    models.PaymentTargetCart,
		Reference: cart.Ref,
		Token:     token,
		Status:    models.ReconcilePending,
	}
	withCart := func(a *models.PaymentAudit) *models.PaymentAudit {
		return a.SetCart(cart).SetCorrelationToken(token)
	}

	alreadyPaid := cart.PaymentStatus == models.PaymentStatusCompleted
	if !alreadyPaid {
		res, err := s.verify(ctx, attempt.TxnNo, withCart)
		if err != nil {
			return nil, err
		}
		if !res.Success {
			s.logAudit(ctx, withCart(models.NewPaymentAudit(models.PaymentEventPending, models.PaymentSourceBackend)).SetGatewayResult(res))
			return result, nil
		}
		if err := s.checkPaidAmount(ctx, res, attempt, cart.FinalAmount, cart.Ref, withCart); err != nil {
			return nil, err
		}
		if cart.Status == models.CartStatusAbandoned {
			s.logger.WithField("cart_ref", cart.Ref).Warn("Payment confirmed for an abandoned cart, converting it")
		}
		won, err := s.carts.MarkPaid(ctx, cart.ID, attempt.Token, attempt.TxnNo)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		alreadyPaid = !won
		if won {
			s.logAudit(ctx, withCart(models.NewPaymentAudit(models.PaymentEventSuccess, models.PaymentSourceBackend)).
				SetAmount(cart.FinalAmount).SetGatewayResult(res))
		} else {
			current, err := s.carts.GetByID(ctx, cart.ID)
			if err != nil {
				return nil, apperr.Internal(err)
			}
			if current == nil || current.PaymentStatus != models.PaymentStatusCompleted {
				return result, nil
			}
		}
	}

	result.Status = models.ReconcileSuccess
	result.AlreadyCompleted = alreadyPaid

	bookings, created, err := s.cartService.CreateBookingsFromCart(ctx, cart.ID, cart.UserID)
	if err != nil {
		// Payment stays completed; conversion is retried by the next reconciliation
		s.logger.WithError(err).WithField("cart_ref", cart.Ref).Error("Failed to convert paid cart to bookings")
		s.logAudit(ctx, withCart(models.NewPaymentAudit(models.PaymentEventBookingConfirmFailed, models.PaymentSourceBackend)).SetError(err))
		return result, nil
	}
	for _, b := range bookings {
		result.BookingRefs = append(result.BookingRefs, b.Ref)
	}

	if !created {
		s.logAudit(ctx, withCart(models.NewPaymentAudit(models.PaymentEventSuccess, models.PaymentSourceBackend)).MarkAsDuplicate())
		s.refulfill(ctx, bookings...)
		return result, nil
	}

	s.logAudit(ctx, withCart(models.NewPaymentAudit(models.PaymentEventBookingConfirmed, models.PaymentSourceBackend)).
		SetAmount(cart.FinalAmount).
		SetRequestPayload(map[string]interface{}{"booking_refs": result.BookingRefs}))
	s.logger.WithFields(logrus.Fields{
		"cart_ref":     cart.Ref,
		"booking_refs": result.BookingRefs,
	}).Info("Cart payment completed")

	s.fulfillment.BookingsPaid(ctx, bookings...)
	return result, nil
}

// ============================================================================
// REFUND
// ============================================================================

// RefundBooking refunds a completed booking payment through the gateway.
// On success the booking is cancelled and its payment stays Completed.
func (s *PaymentService) RefundBooking(ctx context.Context, ref string, req *models.RefundRequest, meta models.RequestMeta) (*models.RefundResponse, error) {
	b, err := s.bookings.GetByRef(ctx, ref)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if b == nil {
		return nil, apperr.NotFound("booking")
	}
	if !b.IsPaid() || b.PaymentTxnNo == nil {
		return nil, apperr.Conflict(apperr.ErrInvalidState, "only completed payments can be refunded")
	}
	if b.BookingStatus == models.BookingStatusCancelled {
		return nil, apperr.Conflict(apperr.ErrInvalidState, "booking %s is already cancelled", b.Ref)
	}

	amount := b.FinalAmount
	if req != nil && req.Amount != nil {
		amount = req.Amount.Round(2)
	}
	if !amount.IsPositive() || amount.GreaterThan(b.FinalAmount) {
		return nil, apperr.Validation("refund amount must be between 0.01 and %s", b.FinalAmount.StringFixed(2))
	}

	startTime := time.Now()
	refundID := s.newCorrelationID(b.Ref)
	withBooking := func(a *models.PaymentAudit) *models.PaymentAudit {
		return a.SetBooking(b).SetAmount(amount).SetMetadata(meta).
			SetRequestPayload(map[string]interface{}{"refund_txn_no": refundID, "original_txn_no": *b.PaymentTxnNo})
	}
	s.logAudit(ctx, withBooking(models.NewPaymentAudit(models.PaymentEventRefundInitiated, models.PaymentSourceAdmin)))

	res, err := s.gateway.Refund(ctx, refundID, *b.PaymentTxnNo, amount)
	if err != nil {
		s.logAudit(ctx, withBooking(models.NewPaymentAudit(models.PaymentEventRefundFailed, models.PaymentSourceGatewayAPI)).
			SetError(err).SetProcessingTime(startTime))
		return nil, err
	}

	resp := &models.RefundResponse{
		Reference:      b.Ref,
		RefundTxnNo:    refundID,
		Amount:         amount,
		Success:        res.Success,
		BookingStatus:  b.BookingStatus,
		GatewayCode:    res.Code,
		GatewayMessage: res.Message,
	}
	if !res.Success {
		s.logAudit(ctx, withBooking(models.NewPaymentAudit(models.PaymentEventRefundFailed, models.PaymentSourceGatewayAPI)).
			SetGatewayResult(res).SetProcessingTime(startTime))
		return resp, nil
	}

	if _, err := s.bookings.Cancel(ctx, b.ID); err != nil {
		return nil, apperr.Internal(err)
	}
	if kind, slotID := b.SlotRef(); slotID != nil {
		s.cache.Invalidate(ctx, kind, *slotID)
	}
	resp.BookingStatus = models.BookingStatusCancelled

	s.logAudit(ctx, withBooking(models.NewPaymentAudit(models.PaymentEventRefundCompleted, models.PaymentSourceGatewayAPI)).
		SetGatewayResult(res).SetProcessingTime(startTime))
	s.logger.WithFields(logrus.Fields{
		"booking_ref":   b.Ref,
		"refund_txn_no": refundID,
		"amount":        amount.StringFixed(2),
	}).Info("Booking refunded")
	return resp, nil
}
