package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/aziz-dev/backend-kassa/internal/db"
	"github.com/aziz-dev/backend-kassa/internal/events"
)

type captureScheduler struct {
	tasks []*asynq.Task
}

func (c *captureScheduler) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type stubDebts struct {
	debt db.Debt
	err  error
}

func (s stubDebts) GetDebtByID(context.Context, pgtype.UUID) (db.Debt, error) {
	return s.debt, s.err
}

func mustEventTask(t *testing.T, topic string, payload any) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	task, err := NewEventTask(db.Event{Topic: topic, Payload: raw})
	if err != nil {
		t.Fatalf("new event task: %v", err)
	}
	return task
}

func TestEventTaskRoundTrip(t *testing.T) {
	task := mustEventTask(t, events.TopicReceiptCreated, map[string]any{"number": "KS-20250314-1"})
	if task.Type() != TypeEventFanout {
		t.Fatalf("type = %s", task.Type())
	}
	var env EventEnvelope
	if err := json.Unmarshal(task.Payload(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Topic != events.TopicReceiptCreated {
		t.Fatalf("topic = %s", env.Topic)
	}
}

func TestDebtCreatedSchedulesReminder(t *testing.T) {
	sched := &captureScheduler{}
	h := &Handler{Log: zerolog.Nop(), Scheduler: sched, ReminderLead: 24 * time.Hour}

	task := mustEventTask(t, events.TopicDebtCreated, map[string]any{
		"debtId":     "0b3f9a51-1f3e-4ac8-9a70-62c4a78cf9cd",
		"customerId": "7e9d22a4-5a2f-4f6e-8a8e-0a1f5f4f2b31",
		"dueDate":    time.Date(2025, 4, 13, 10, 0, 0, 0, time.UTC),
	})
	if err := h.HandleEventFanout(context.Background(), task); err != nil {
		t.Fatalf("fanout: %v", err)
	}
	if len(sched.tasks) != 1 || sched.tasks[0].Type() != TypeDebtReminder {
		t.Fatalf("tasks = %v", sched.tasks)
	}
}

func TestDebtCreatedWithoutDueDateSkipsReminder(t *testing.T) {
	sched := &captureScheduler{}
	h := &Handler{Log: zerolog.Nop(), Scheduler: sched}

	task := mustEventTask(t, events.TopicDebtCreated, map[string]any{
		"debtId": "0b3f9a51-1f3e-4ac8-9a70-62c4a78cf9cd",
	})
	if err := h.HandleEventFanout(context.Background(), task); err != nil {
		t.Fatalf("fanout: %v", err)
	}
	if len(sched.tasks) != 0 {
		t.Fatalf("unexpected reminder: %v", sched.tasks)
	}
}

func TestReminderDroppedForSettledDebt(t *testing.T) {
	h := &Handler{Log: zerolog.Nop(), Debts: stubDebts{debt: db.Debt{Status: db.DebtStatusPaid}}}

	task, err := NewReminderTask(ReminderPayload{
		DebtID:     "0b3f9a51-1f3e-4ac8-9a70-62c4a78cf9cd",
		CustomerID: "7e9d22a4-5a2f-4f6e-8a8e-0a1f5f4f2b31",
	}, time.Now())
	if err != nil {
		t.Fatalf("new reminder: %v", err)
	}
	if err := h.HandleDebtReminder(context.Background(), task); err != nil {
		t.Fatalf("reminder: %v", err)
	}
}

func TestReminderDroppedForDeletedDebt(t *testing.T) {
	h := &Handler{Log: zerolog.Nop(), Debts: stubDebts{err: pgx.ErrNoRows}}

	task, err := NewReminderTask(ReminderPayload{
		DebtID: "0b3f9a51-1f3e-4ac8-9a70-62c4a78cf9cd",
	}, time.Now())
	if err != nil {
		t.Fatalf("new reminder: %v", err)
	}
	if err := h.HandleDebtReminder(context.Background(), task); err != nil {
		t.Fatalf("reminder: %v", err)
	}
}
