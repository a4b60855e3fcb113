package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDistributor struct {
	mu            sync.Mutex
	err           error
	tickets       []uuid.UUID
	notifications []models.Notification
}

func (d *fakeDistributor) DistributeTaskIssueTicket(_ context.Context, bookingID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tickets = append(d.tickets, bookingID)
	return nil
}

func (d *fakeDistributor) DistributeTaskSendNotification(_ context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.notifications = append(d.notifications, n)
	return nil
}

func paidStoredBooking(t *testing.T, env *testEnv) *models.Booking {
	t.Helper()
	b, _ := initiatedBooking(t, env)
	ok, err := memBookings{env.store}.MarkPaymentCompleted(context.Background(), b.ID, "tranctx-x", b.Ref+"-x")
	require.NoError(t, err)
	require.True(t, ok)
	return storedBooking(t, env, b.Ref)
}

func TestFulfillment_BookingsPaid(t *testing.T) {
	t.Run("enqueues a durable task when a distributor is set", func(t *testing.T) {
		env := newTestEnv()
		dist := &fakeDistributor{}
		env.fulfillment.distributor = dist
		b := paidStoredBooking(t, env)

		env.fulfillment.BookingsPaid(context.Background(), b)
		env.queue.Close()

		assert.Equal(t, []uuid.UUID{b.ID}, dist.tickets)
		assert.Equal(t, 0, env.issuer.callCount())
	})

	t.Run("falls back to the in-process queue when enqueueing fails", func(t *testing.T) {
		env := newTestEnv()
		env.fulfillment.distributor = &fakeDistributor{err: errors.New("redis: connection refused")}
		b := paidStoredBooking(t, env)

		env.fulfillment.BookingsPaid(context.Background(), b)
		env.queue.Close()

		assert.Equal(t, 1, env.store.ticketsIssued)
		assert.Equal(t, 2, env.notifier.count())
	})
}

func TestFulfillment_IssueTicket(t *testing.T) {
	t.Run("notifies only when the ticket is minted", func(t *testing.T) {
		env := newTestEnv()
		dist := &fakeDistributor{}
		env.fulfillment.distributor = dist
		b := paidStoredBooking(t, env)

		require.NoError(t, env.fulfillment.IssueTicket(context.Background(), b.ID))
		require.NoError(t, env.fulfillment.IssueTicket(context.Background(), b.ID))

		assert.Equal(t, 1, env.store.ticketsIssued)
		require.Len(t, dist.notifications, 2)
		assert.Equal(t, b.Ref, dist.notifications[0].BookingRef)
	})

	t.Run("issuer error is returned for redelivery", func(t *testing.T) {
		env := newTestEnv()
		env.issuer.failures = 1
		b := paidStoredBooking(t, env)

		assert.Error(t, env.fulfillment.IssueTicket(context.Background(), b.ID))
		assert.NoError(t, env.fulfillment.IssueTicket(context.Background(), b.ID))
		assert.Equal(t, 1, env.store.ticketsIssued)
	})

	t.Run("unpaid booking is skipped", func(t *testing.T) {
		env := newTestEnv()
		b, _ := initiatedBooking(t, env)

		assert.NoError(t, env.fulfillment.IssueTicket(context.Background(), b.ID))
		assert.NoError(t, env.fulfillment.IssueTicket(context.Background(), uuid.New()))
		assert.Equal(t, 0, env.issuer.callCount())
	})
}
