package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// InsertEvent appends a domain event.
func (q *Queries) InsertEvent(ctx context.Context, topic string, entityID pgtype.UUID, payload []byte) (Event, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO events (topic, entity_id, payload) VALUES ($1, $2, $3)
		RETURNING id, topic, entity_id, payload, created_at`, topic, entityID, payload)
	var e Event
	err := row.Scan(&e.ID, &e.Topic, &e.EntityID, &e.Payload, &e.CreatedAt)
	return e, err
}

// ListEventsByEntity returns the events recorded for one entity, newest first.
func (q *Queries) ListEventsByEntity(ctx context.Context, entityID pgtype.UUID, limit int32) ([]Event, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, topic, entity_id, payload, created_at FROM events
		WHERE entity_id = $1 ORDER BY created_at DESC LIMIT $2`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Topic, &e.EntityID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
