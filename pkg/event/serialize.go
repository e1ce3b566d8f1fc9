package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Payload はイベント固有のデータ。対象エンティティとイベントの種類はデータ型から決まる。
type Payload interface {
	// Kind は対象エンティティの種類とイベントの種類を返す。
	Kind() (AggregateType, Type)
}

// Kind は注文作成イベントの種類を返す。
func (OrderCreatedData) Kind() (AggregateType, Type) {
	return AggregateTypeOrder, TypeOrderCreated
}

// Kind は注文ステータス変更イベントの種類を返す。
func (OrderStatusUpdatedData) Kind() (AggregateType, Type) {
	return AggregateTypeOrder, TypeOrderStatusUpdated
}

// Kind はユーザー登録イベントの種類を返す。
func (UserRegisteredData) Kind() (AggregateType, Type) {
	return AggregateTypeUser, TypeUserRegistered
}

// New はaggregateIDのエンティティに対するイベントを生成する。
// Versionは採番しない。永続化する側が集約ごとに割り当てる。
func New(aggregateID, requestID string, payload Payload) (*Event, error) {
	if payload == nil {
		return nil, fmt.Errorf("イベントデータがnil: aggregate_id=%s", aggregateID)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	aggregateType, eventType := payload.Kind()
	return &Event{
		ID:            uuid.NewString(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          raw,
		RequestID:     requestID,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// DecodeData はイベントのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("%s のデータのデシリアライズに失敗: %w", e.EventType, err)
	}
	return &data, nil
}

// LogFields はイベントをログ出力するためのzapフィールドを返す。
func (e *Event) LogFields() []zap.Field {
	fields := []zap.Field{
		zap.String("event", string(e.EventType)),
		zap.String("event_id", e.ID),
		zap.String("aggregate_type", string(e.AggregateType)),
		zap.String("aggregate_id", e.AggregateID),
		zap.String("request_id", e.RequestID),
		zap.ByteString("data", e.Data),
	}
	if e.Version > 0 {
		fields = append(fields, zap.Int64("version", e.Version))
	}
	return fields
}
