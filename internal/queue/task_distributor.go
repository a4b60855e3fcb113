package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Fulfillment task types
const (
	TaskIssueTicket      = "fulfillment:issue_ticket"
	TaskSendNotification = "fulfillment:send_notification"
)

// Queue names and their processing weights
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// PayloadIssueTicket identifies a paid booking whose ticket must be minted
type PayloadIssueTicket struct {
	BookingID uuid.UUID `json:"booking_id"`
}

// PayloadSendNotification carries one ticket notification
type PayloadSendNotification struct {
	Notification models.Notification `json:"notification"`
}

// RedisTaskDistributor enqueues fulfillment tasks in Redis. Tasks survive a
// restart and are retried with asynq's backoff until MaxRetry is spent.
type RedisTaskDistributor struct {
	client   *asynq.Client
	maxRetry int
	logger   *logrus.Logger
}

// NewRedisTaskDistributor connects an asynq client to redisURL
func NewRedisTaskDistributor(redisURL string, maxRetry int, logger *logrus.Logger) (*RedisTaskDistributor, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisTaskDistributor{
		client:   asynq.NewClient(opt),
		maxRetry: maxRetry,
		logger:   logger,
	}, nil
}

// NewIssueTicketTask builds the task minting bookingID's ticket
func NewIssueTicketTask(bookingID uuid.UUID, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(PayloadIssueTicket{BookingID: bookingID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskIssueTicket, payload, asynq.MaxRetry(maxRetry), asynq.Queue(QueueCritical)), nil
}

// NewSendNotificationTask builds the task delivering n
func NewSendNotificationTask(n models.Notification, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(PayloadSendNotification{Notification: n})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskSendNotification, payload, asynq.MaxRetry(maxRetry), asynq.Queue(QueueDefault)), nil
}

// DistributeTaskIssueTicket enqueues ticket issuance for a paid booking
func (d *RedisTaskDistributor) DistributeTaskIssueTicket(ctx context.Context, bookingID uuid.UUID) error {
	task, err := NewIssueTicketTask(bookingID, d.maxRetry)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task, logrus.Fields{"booking_id": bookingID})
}

// DistributeTaskSendNotification enqueues one notification
func (d *RedisTaskDistributor) DistributeTaskSendNotification(ctx context.Context, n models.Notification) error {
	task, err := NewSendNotificationTask(n, d.maxRetry)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task, logrus.Fields{"booking_ref": n.BookingRef, "channel": n.Channel})
}

func (d *RedisTaskDistributor) enqueue(ctx context.Context, task *asynq.Task, fields logrus.Fields) error {
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", task.Type(), err)
	}
	d.logger.WithFields(fields).WithFields(logrus.Fields{
		"type":      task.Type(),
		"queue":     info.Queue,
		"max_retry": info.MaxRetry,
	}).Debug("Enqueued task")
	return nil
}

// Close closes the Redis connection
func (d *RedisTaskDistributor) Close() error {
	return d.client.Close()
}
