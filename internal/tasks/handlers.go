package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/aziz-dev/backend-kassa/internal/db"
	"github.com/aziz-dev/backend-kassa/internal/events"
)

// Scheduler is the slice of asynq.Client the handlers use to chain tasks.
type Scheduler interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DebtReader loads debts when a reminder fires, so stale reminders for paid
// or reversed debts can be dropped.
type DebtReader interface {
	GetDebtByID(ctx context.Context, id pgtype.UUID) (db.Debt, error)
}

// Handler processes background tasks. Fanout is log-based for now; the
// register hardware has no push channel, so the worker's log stream is what
// the shop owner's monitoring tails.
type Handler struct {
	Log       zerolog.Logger
	Scheduler Scheduler
	Debts     DebtReader

	// ReminderLead is how far before the due date the reminder fires.
	ReminderLead time.Duration
}

// Register attaches the handlers to an asynq mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeEventFanout, h.HandleEventFanout)
	mux.HandleFunc(TypeDebtReminder, h.HandleDebtReminder)
}

// HandleEventFanout reacts to a persisted domain event.
func (h *Handler) HandleEventFanout(ctx context.Context, t *asynq.Task) error {
	var env EventEnvelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}
	log := h.Log.With().Str("event_id", env.ID).Str("topic", env.Topic).Logger()

	switch env.Topic {
	case events.TopicStockLow:
		log.Warn().RawJSON("detail", orEmpty(env.Payload)).Msg("stock low")
	case events.TopicDebtCreated:
		if err := h.scheduleReminder(ctx, env); err != nil {
			return err
		}
		log.Info().RawJSON("detail", orEmpty(env.Payload)).Msg("debt recorded")
	case events.TopicReceiptCreated, events.TopicReceiptDeleted,
		events.TopicDebtPaid, events.TopicDebtApproved, events.TopicDebtRejected:
		log.Info().RawJSON("detail", orEmpty(env.Payload)).Msg("event")
	default:
		log.Debug().Msg("unhandled topic")
	}
	return nil
}

// HandleDebtReminder fires when a debt approaches its due date.
func (h *Handler) HandleDebtReminder(ctx context.Context, t *asynq.Task) error {
	var p ReminderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode reminder: %w", err)
	}
	log := h.Log.With().Str("debt_id", p.DebtID).Str("customer_id", p.CustomerID).Logger()

	if h.Debts != nil {
		id, err := db.ToUUID(p.DebtID)
		if err != nil {
			return fmt.Errorf("reminder debt id: %w", err)
		}
		debt, err := h.Debts.GetDebtByID(ctx, id)
		if err != nil {
			// Debt gone, most likely the receipt was reversed. Nothing to nag about.
			log.Debug().Err(err).Msg("reminder dropped")
			return nil
		}
		if debt.Status == db.DebtStatusPaid || debt.Status == db.DebtStatusRejected {
			log.Debug().Str("status", debt.Status).Msg("reminder dropped")
			return nil
		}
		log.Warn().Int64("outstanding", debt.Amount-debt.PaidAmount).Msg("debt due soon")
		return nil
	}
	log.Warn().Msg("debt due soon")
	return nil
}

// scheduleReminder chains a due-date reminder off a debt.created event. The
// event payload carries the due date; events without one get no reminder.
func (h *Handler) scheduleReminder(ctx context.Context, env EventEnvelope) error {
	if h.Scheduler == nil {
		return nil
	}
	var detail struct {
		DebtID     string    `json:"debtId"`
		CustomerID string    `json:"customerId"`
		DueDate    time.Time `json:"dueDate"`
	}
	if err := json.Unmarshal(orEmpty(env.Payload), &detail); err != nil || detail.DebtID == "" || detail.DueDate.IsZero() {
		return nil
	}
	due := detail.DueDate.Add(-h.ReminderLead)
	task, err := NewReminderTask(ReminderPayload{DebtID: detail.DebtID, CustomerID: detail.CustomerID}, due)
	if err != nil {
		return err
	}
	_, err = h.Scheduler.EnqueueContext(ctx, task)
	return err
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
