package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/aziz-dev/backend-kassa/internal/db"
)

// EventStore defines the persistence operations required by the event bus.
type EventStore interface {
	InsertEvent(ctx context.Context, topic string, entityID pgtype.UUID, payload []byte) (db.Event, error)
}

// Enqueuer hands emitted events off to the background task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, event db.Event) error
}

// Notifier reacts to emitted events (e.g. telegram, metrics, etc.).
type Notifier interface {
	Notify(ctx context.Context, event db.Event) error
}

// Bus persists domain events and fans them out to downstream handlers.
type Bus struct {
	Store     EventStore
	Enqueuer  Enqueuer
	Notifiers []Notifier
}

// Emit records the event and dispatches it to all configured handlers.
func (b *Bus) Emit(ctx context.Context, topic string, entityID pgtype.UUID, payload any) (db.Event, error) {
	if b == nil || b.Store == nil {
		return db.Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return db.Event{}, errors.New("events: topic is required")
	}
	if !entityID.Valid {
		return db.Event{}, errors.New("events: entity id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return db.Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := b.Store.InsertEvent(ctx, topic, entityID, encoded)
	if err != nil {
		return db.Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	if b.Enqueuer != nil {
		if enqErr := b.Enqueuer.Enqueue(ctx, ev); enqErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: enqueue task: %w", enqErr))
		}
	}
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		data := []byte(v)
		if !json.Valid(data) {
			return nil, errors.New("payload is not valid json")
		}
		return data, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
