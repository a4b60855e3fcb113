package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTaskHandler struct {
	err           error
	tickets       []uuid.UUID
	notifications []models.Notification
}

func (h *fakeTaskHandler) IssueTicket(_ context.Context, bookingID uuid.UUID) error {
	h.tickets = append(h.tickets, bookingID)
	return h.err
}

func (h *fakeTaskHandler) SendNotification(_ context.Context, n models.Notification) error {
	h.notifications = append(h.notifications, n)
	return h.err
}

func newTestProcessor(h TaskHandler) *RedisTaskProcessor {
	return &RedisTaskProcessor{handler: h, logger: logrus.New()}
}

func TestNewIssueTicketTask(t *testing.T) {
	id := uuid.New()
	task, err := NewIssueTicketTask(id, 10)
	require.NoError(t, err)

	assert.Equal(t, TaskIssueTicket, task.Type())
	assert.JSONEq(t, `{"booking_id":"`+id.String()+`"}`, string(task.Payload()))
}

func TestRedisTaskProcessor_ProcessTaskIssueTicket(t *testing.T) {
	t.Run("hands the booking to the handler", func(t *testing.T) {
		h := &fakeTaskHandler{}
		id := uuid.New()
		task, err := NewIssueTicketTask(id, 10)
		require.NoError(t, err)

		require.NoError(t, newTestProcessor(h).ProcessTaskIssueTicket(context.Background(), task))
		assert.Equal(t, []uuid.UUID{id}, h.tickets)
	})

	t.Run("handler failure is retried", func(t *testing.T) {
		h := &fakeTaskHandler{err: errors.New("ticket storage unavailable")}
		task, err := NewIssueTicketTask(uuid.New(), 10)
		require.NoError(t, err)

		err = newTestProcessor(h).ProcessTaskIssueTicket(context.Background(), task)
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("malformed payload skips retry", func(t *testing.T) {
		h := &fakeTaskHandler{}
		task := asynq.NewTask(TaskIssueTicket, []byte(`{"booking_id":`))

		err := newTestProcessor(h).ProcessTaskIssueTicket(context.Background(), task)
		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Empty(t, h.tickets)
	})

	t.Run("missing booking id skips retry", func(t *testing.T) {
		h := &fakeTaskHandler{}
		task := asynq.NewTask(TaskIssueTicket, []byte(`{}`))

		err := newTestProcessor(h).ProcessTaskIssueTicket(context.Background(), task)
		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Empty(t, h.tickets)
	})
}

func TestRedisTaskProcessor_ProcessTaskSendNotification(t *testing.T) {
	n := models.Notification{
		Channel:    models.ChannelWhatsApp,
		Recipient:  "9800000000",
		BookingRef: "BK-20250101-ABC123",
		TicketRef:  "TKT-20250101120000-0A1B2C3D",
	}

	t.Run("round trips the notification", func(t *testing.T) {
		h := &fakeTaskHandler{}
		task, err := NewSendNotificationTask(n, 5)
		require.NoError(t, err)
		assert.Equal(t, TaskSendNotification, task.Type())

		require.NoError(t, newTestProcessor(h).ProcessTaskSendNotification(context.Background(), task))
		require.Len(t, h.notifications, 1)
		assert.Equal(t, n, h.notifications[0])
	})

	t.Run("handler failure is returned", func(t *testing.T) {
		h := &fakeTaskHandler{err: errors.New("publish failed")}
		task, err := NewSendNotificationTask(n, 5)
		require.NoError(t, err)

		err = newTestProcessor(h).ProcessTaskSendNotification(context.Background(), task)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "whatsapp")
	})
}
