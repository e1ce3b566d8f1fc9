package db

import "time"

// Order はordersテーブルの行。
type Order struct {
	ID     string
	UserID string
	// Items はJSON配列の文字列。
	Items     string
	Status    string
	Total     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderEvent はorder_eventsテーブルの行。
type OrderEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Data          string
	RequestID     string
	Version       int64
	CreatedAt     time.Time
}
