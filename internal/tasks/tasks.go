package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aziz-dev/backend-kassa/internal/db"
)

// Task types routed through asynq.
const (
	TypeEventFanout  = "event:fanout"
	TypeDebtReminder = "debt:reminder"
)

// Queue names. Events carry low urgency; reminders even less.
const (
	QueueEvents    = "events"
	QueueReminders = "reminders"
)

// EventEnvelope is the wire form of a persisted domain event.
type EventEnvelope struct {
	ID       string          `json:"id"`
	Topic    string          `json:"topic"`
	EntityID string          `json:"entityId"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ReminderPayload schedules a due-date nudge for a debt.
type ReminderPayload struct {
	DebtID     string `json:"debtId"`
	CustomerID string `json:"customerId"`
}

// NewEventTask wraps a stored event for asynq delivery.
func NewEventTask(e db.Event) (*asynq.Task, error) {
	env := EventEnvelope{
		ID:       db.UUIDString(e.ID),
		Topic:    e.Topic,
		EntityID: db.UUIDString(e.EntityID),
		Payload:  json.RawMessage(e.Payload),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEventFanout, raw, asynq.Queue(QueueEvents), asynq.MaxRetry(5)), nil
}

// NewReminderTask builds a debt due-date reminder.
func NewReminderTask(p ReminderPayload, due time.Time) (*asynq.Task, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDebtReminder, raw,
		asynq.Queue(QueueReminders), asynq.MaxRetry(3), asynq.ProcessAt(due)), nil
}

// Enqueuer hands persisted events to asynq. It satisfies events.Enqueuer so
// the bus never knows about broker details.
type Enqueuer struct {
	Client *asynq.Client
}

// Enqueue submits the event for background fanout.
func (e Enqueuer) Enqueue(ctx context.Context, event db.Event) error {
	if e.Client == nil {
		return errors.New("tasks: asynq client not configured")
	}
	task, err := NewEventTask(event)
	if err != nil {
		return err
	}
	_, err = e.Client.EnqueueContext(ctx, task)
	return err
}
