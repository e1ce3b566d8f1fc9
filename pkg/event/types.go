package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeOrder は注文エンティティを表す。
	AggregateTypeOrder AggregateType = "Order"
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeOrderCreated は注文が作成されたことを表す。
	TypeOrderCreated Type = "order.created"
	// TypeOrderStatusUpdated は注文ステータスが変更されたことを表す。
	TypeOrderStatusUpdated Type = "order.status.updated"

	// TypeUserRegistered はユーザーが登録されたことを表す。
	TypeUserRegistered Type = "user.registered"
)

// Event はドメインイベントの不変レコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version は集約内でのイベントの通し番号。永続化時に採番する。
	Version int64 `json:"version,omitempty"`
	// RequestID はイベントを発生させたリクエストの相関ID。
	RequestID string `json:"request_id,omitempty"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// OrderCreatedData はorder.createdイベントのデータ。
type OrderCreatedData struct {
	// UserID は注文したユーザーのID。
	UserID string `json:"user_id"`
	// ItemCount は注文明細の件数。
	ItemCount int `json:"item_count"`
	// Total は注文の合計金額。
	Total int64 `json:"total"`
}

// OrderStatusUpdatedData はorder.status.updatedイベントのデータ。
type OrderStatusUpdatedData struct {
	// UserID は注文の所有者のID。
	UserID string `json:"user_id"`
	// From は変更前のステータス。
	From string `json:"from"`
	// To は変更後のステータス。
	To string `json:"to"`
}

// UserRegisteredData はuser.registeredイベントのデータ。
type UserRegisteredData struct {
	// Email は登録されたメールアドレス。
	Email string `json:"email"`
	// Roles は付与されたロール。
	Roles []string `json:"roles"`
}
