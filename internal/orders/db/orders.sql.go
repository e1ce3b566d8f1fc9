package db

import (
	"context"
	"time"
)

const createOrder = `
INSERT INTO orders (id, user_id, items, status, total, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

// CreateOrderParams はCreateOrderの引数。
type CreateOrderParams struct {
	ID        string
	UserID    string
	Items     string
	Status    string
	Total     int64
	CreatedAt time.Time
}

// CreateOrder は注文を挿入する。
func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) error {
	_, err := q.db.ExecContext(ctx, createOrder,
		arg.ID,
		arg.UserID,
		arg.Items,
		arg.Status,
		arg.Total,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const getOrderByID = `
SELECT id, user_id, items, status, total, created_at, updated_at
FROM orders
WHERE id = ?
`

// GetOrderByID はIDで注文を取得する。
func (q *Queries) GetOrderByID(ctx context.Context, id string) (Order, error) {
	row := q.db.QueryRowContext(ctx, getOrderByID, id)
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Items, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

const listOrdersByUserID = `
SELECT id, user_id, items, status, total, created_at, updated_at
FROM orders
WHERE user_id = ?
ORDER BY created_at, rowid
LIMIT ? OFFSET ?
`

// ListOrdersByUserIDParams はListOrdersByUserIDの引数。
type ListOrdersByUserIDParams struct {
	UserID string
	Limit  int64
	Offset int64
}

// ListOrdersByUserID はユーザーの注文を作成順に取得する。
func (q *Queries) ListOrdersByUserID(ctx context.Context, arg ListOrdersByUserIDParams) ([]Order, error) {
	rows, err := q.db.QueryContext(ctx, listOrdersByUserID, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Items, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countOrdersByUserID = `
SELECT COUNT(*) FROM orders WHERE user_id = ?
`

// CountOrdersByUserID はユーザーの注文数を返す。
func (q *Queries) CountOrdersByUserID(ctx context.Context, userID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countOrdersByUserID, userID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const updateOrderStatus = `
UPDATE orders SET status = ?, updated_at = ? WHERE id = ?
`

// UpdateOrderStatusParams はUpdateOrderStatusの引数。
type UpdateOrderStatusParams struct {
	ID        string
	Status    string
	UpdatedAt time.Time
}

// UpdateOrderStatus は注文ステータスを更新する。
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) error {
	_, err := q.db.ExecContext(ctx, updateOrderStatus, arg.Status, arg.UpdatedAt, arg.ID)
	return err
}

const cancelOrder = `
UPDATE orders SET status = 'cancelled', updated_at = ? WHERE id = ? AND status != 'cancelled'
`

// CancelOrder は未キャンセルの注文をキャンセルし、更新した行数を返す。
// キャンセル済みの注文は更新しない。
func (q *Queries) CancelOrder(ctx context.Context, id string, updatedAt time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, cancelOrder, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
