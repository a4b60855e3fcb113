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

// TaskHandler runs the fulfillment steps. Both must be safe to repeat.
type TaskHandler interface {
	IssueTicket(ctx context.Context, bookingID uuid.UUID) error
	SendNotification(ctx context.Context, n models.Notification) error
}

// RedisTaskProcessor consumes fulfillment tasks from Redis
type RedisTaskProcessor struct {
	server  *asynq.Server
	handler TaskHandler
	logger  *logrus.Logger
}

// NewRedisTaskProcessor creates a processor running concurrency workers
func NewRedisTaskProcessor(redisURL string, concurrency int, handler TaskHandler, logger *logrus.Logger) (*RedisTaskProcessor, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	p := &RedisTaskProcessor{handler: handler, logger: logger}
	p.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(p.handleError),
		Logger:       logger,
	})
	return p, nil
}

func (p *RedisTaskProcessor) handleError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	entry := p.logger.WithError(err).WithFields(logrus.Fields{
		"type":    task.Type(),
		"retried": retried,
	})
	if retried >= maxRetry {
		entry.Error("Task exhausted its retries")
		return
	}
	entry.Warn("Task failed")
}

// Start registers the handlers and starts consuming without blocking
func (p *RedisTaskProcessor) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskIssueTicket, p.ProcessTaskIssueTicket)
	mux.HandleFunc(TaskSendNotification, p.ProcessTaskSendNotification)
	return p.server.Start(mux)
}

// Shutdown waits for active tasks and stops the workers
func (p *RedisTaskProcessor) Shutdown() {
	p.server.Shutdown()
}

// ProcessTaskIssueTicket handles TaskIssueTicket
func (p *RedisTaskProcessor) ProcessTaskIssueTicket(ctx context.Context, task *asynq.Task) error {
	var payload PayloadIssueTicket
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.BookingID == uuid.Nil {
		return fmt.Errorf("payload has no booking id: %w", asynq.SkipRetry)
	}
	if err := p.handler.IssueTicket(ctx, payload.BookingID); err != nil {
		return fmt.Errorf("failed to issue ticket: %w", err)
	}
	p.logger.WithField("booking_id", payload.BookingID).Info("Processed ticket task")
	return nil
}

// ProcessTaskSendNotification handles TaskSendNotification
func (p *RedisTaskProcessor) ProcessTaskSendNotification(ctx context.Context, task *asynq.Task) error {
	var payload PayloadSendNotification
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	n := payload.Notification
	if err := p.handler.SendNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to send %s notification: %w", n.Channel, err)
	}
	p.logger.WithFields(logrus.Fields{
		"booking_ref": n.BookingRef,
		"channel":     n.Channel,
	}).Info("Processed notification task")
	return nil
}
