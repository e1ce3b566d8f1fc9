package orders

import (
	"context"
	"fmt"

	ordersdb "github.com/nao1215/edgegate/internal/orders/db"
	"github.com/nao1215/edgegate/pkg/event"
)

// appendEvent は注文のイベントを次のバージョンで追記する。
// qには注文の更新と同じトランザクションのQueriesを渡す。
func appendEvent(ctx context.Context, q *ordersdb.Queries, orderID, requestID string, payload event.Payload) (*event.Event, error) {
	ev, err := event.New(orderID, requestID, payload)
	if err != nil {
		return nil, err
	}

	latest, err := q.GetLatestVersion(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("最新バージョンの取得に失敗: %w", err)
	}
	ev.Version = latest + 1

	if err := q.AppendEvent(ctx, ordersdb.AppendEventParams{
		ID:            ev.ID,
		AggregateID:   ev.AggregateID,
		AggregateType: string(ev.AggregateType),
		EventType:     string(ev.EventType),
		Data:          string(ev.Data),
		RequestID:     ev.RequestID,
		Version:       ev.Version,
		CreatedAt:     ev.CreatedAt,
	}); err != nil {
		return nil, fmt.Errorf("イベントの追記に失敗: %w", err)
	}
	return ev, nil
}

// logEvent は追記したイベントをログに出力する。
func (s *Server) logEvent(ev *event.Event) {
	s.logger.Info("イベントを発行", ev.LogFields()...)
}

// toEvent はDB行をイベントに変換する。
func toEvent(e ordersdb.OrderEvent) event.Event {
	return event.Event{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: event.AggregateType(e.AggregateType),
		EventType:     event.Type(e.EventType),
		Data:          []byte(e.Data),
		Version:       e.Version,
		RequestID:     e.RequestID,
		CreatedAt:     e.CreatedAt.UTC(),
	}
}

// withTx はトランザクション内でfnを実行する。fnがエラーを返した場合はロールバックする。
func (s *Server) withTx(ctx context.Context, fn func(q *ordersdb.Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return nil
}
