package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// fulfillmentAttempts bounds in-process retries of one fulfillment step
const fulfillmentAttempts = 3

// Fulfillment issues tickets and sends notifications for paid bookings.
// All of it runs after the payment committed; nothing here can undo a payment.
//
// With a distributor each step is a durable task retried by the task queue.
// Without one, or when enqueueing fails, steps run on the in-process queue
// with bounded retries.
type Fulfillment struct {
	issuer         TicketIssuer
	bookings       BookingStore
	notifier       NotificationDispatcher
	queue          *TaskQueue
	distributor    TaskDistributor
	notifyWhatsApp bool
	logger         *logrus.Logger
}

// NewFulfillment creates a new Fulfillment. distributor may be nil.
func NewFulfillment(
	issuer TicketIssuer,
	bookings BookingStore,
	notifier NotificationDispatcher,
	queue *TaskQueue,
	distributor TaskDistributor,
	notifyWhatsApp bool,
	logger *logrus.Logger,
) *Fulfillment {
	return &Fulfillment{
		issuer:         issuer,
		bookings:       bookings,
		notifier:       notifier,
		queue:          queue,
		distributor:    distributor,
		notifyWhatsApp: notifyWhatsApp,
		logger:         logger,
	}
}

// BookingsPaid schedules ticket issuance for each booking
func (f *Fulfillment) BookingsPaid(ctx context.Context, bookings ...*models.Booking) {
	for _, b := range bookings {
		if f.distributor != nil {
			err := f.distributor.DistributeTaskIssueTicket(ctx, b.ID)
			if err == nil {
				continue
			}
			f.logger.WithError(err).WithField("booking_ref", b.Ref).Warn("Failed to enqueue ticket task, issuing in process")
		}
		id := b.ID
		f.queue.SubmitRetry("issue-ticket:"+b.Ref, fulfillmentAttempts, func(ctx context.Context) error {
			return f.IssueTicket(ctx, id)
		})
	}
}

// IssueTicket mints the ticket of a paid booking and schedules its
// notifications. Only the call that minted the ticket sends them, so
// repeated deliveries of this step do not notify twice.
func (f *Fulfillment) IssueTicket(ctx context.Context, bookingID uuid.UUID) error {
	b, err := f.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking %s: %w", bookingID, err)
	}
	if b == nil || !b.IsPaid() {
		f.logger.WithField("booking_id", bookingID).Warn("Skipping ticket for missing or unpaid booking")
		return nil
	}

	ticketRef, minted, err := f.issuer.Issue(ctx, b)
	if err != nil {
		return fmt.Errorf("failed to issue ticket for %s: %w", b.Ref, err)
	}
	if !minted {
		return nil
	}
	for _, n := range f.notificationsFor(b, ticketRef) {
		f.scheduleNotification(ctx, n)
	}
	return nil
}

// SendNotification delivers one ticket notification
func (f *Fulfillment) SendNotification(ctx context.Context, n models.Notification) error {
	return f.notifier.Dispatch(ctx, n)
}

func (f *Fulfillment) scheduleNotification(ctx context.Context, n models.Notification) {
	fields := logrus.Fields{
		"booking_ref": n.BookingRef,
		"channel":     n.Channel,
	}
	if f.distributor != nil {
		err := f.distributor.DistributeTaskSendNotification(ctx, n)
		if err == nil {
			return
		}
		f.logger.WithError(err).WithFields(fields).Warn("Failed to enqueue notification task, sending in process")
	}
	err := f.queue.Retry(ctx, fulfillmentAttempts, func(ctx context.Context) error {
		return f.SendNotification(ctx, n)
	})
	if err != nil {
		f.logger.WithError(err).WithFields(fields).Warn("Failed to dispatch ticket notification")
	}
}

func (f *Fulfillment) notificationsFor(b *models.Booking, ticketRef string) []models.Notification {
	content := fmt.Sprintf("Your booking %s for %s is confirmed. Ticket: %s",
		b.Ref, b.BookingDate.Format(models.DateLayout), ticketRef)

	var out []models.Notification
	if b.CustomerEmail != nil && *b.CustomerEmail != "" {
		out = append(out, models.Notification{
			Channel:    models.ChannelEmail,
			Recipient:  *b.CustomerEmail,
			Subject:    "Your tickets for booking " + b.Ref,
			Content:    content,
			BookingRef: b.Ref,
			TicketRef:  ticketRef,
		})
	}
	if f.notifyWhatsApp && b.CustomerMobile != nil && *b.CustomerMobile != "" {
		out = append(out, models.Notification{
			Channel:    models.ChannelWhatsApp,
			Recipient:  *b.CustomerMobile,
			Content:    content,
			BookingRef: b.Ref,
			TicketRef:  ticketRef,
		})
	}
	return out
}
