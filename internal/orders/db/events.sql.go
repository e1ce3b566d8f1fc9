package db

import (
	"context"
	"time"
)

const appendEvent = `
INSERT INTO order_events (id, aggregate_id, aggregate_type, event_type, data, request_id, version, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// AppendEventParams はAppendEventの引数。
type AppendEventParams struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Data          string
	RequestID     string
	Version       int64
	CreatedAt     time.Time
}

// AppendEvent はイベントを追記する。
func (q *Queries) AppendEvent(ctx context.Context, arg AppendEventParams) error {
	_, err := q.db.ExecContext(ctx, appendEvent,
		arg.ID,
		arg.AggregateID,
		arg.AggregateType,
		arg.EventType,
		arg.Data,
		arg.RequestID,
		arg.Version,
		arg.CreatedAt,
	)
	return err
}

const getLatestVersion = `
SELECT COALESCE(MAX(version), 0) FROM order_events WHERE aggregate_id = ?
`

// GetLatestVersion は集約の最新バージョンを返す。イベントが無い場合は0。
func (q *Queries) GetLatestVersion(ctx context.Context, aggregateID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getLatestVersion, aggregateID)
	var version int64
	err := row.Scan(&version)
	return version, err
}

const listEventsByAggregateID = `
SELECT id, aggregate_id, aggregate_type, event_type, data, request_id, version, created_at
FROM order_events
WHERE aggregate_id = ?
ORDER BY version
`

// ListEventsByAggregateID は集約のイベントをバージョン順に取得する。
func (q *Queries) ListEventsByAggregateID(ctx context.Context, aggregateID string) ([]OrderEvent, error) {
	rows, err := q.db.QueryContext(ctx, listEventsByAggregateID, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderEvent
	for rows.Next() {
		var e OrderEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Data, &e.RequestID, &e.Version, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
