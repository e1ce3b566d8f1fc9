package orders

import (
	"encoding/json"
	"fmt"
	"time"

	ordersdb "github.com/nao1215/edgegate/internal/orders/db"
)

// 注文ステータス。
const (
	StatusCreated    = "created"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// unitPrice は全商品共通の単価。
const unitPrice = 100

// allowedStatuses はステータス更新で指定できる値。
var allowedStatuses = map[string]struct{}{
	StatusCreated:    {},
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// Item は注文明細。
type Item struct {
	// Product は商品名。
	Product string `json:"product" binding:"required,min=1"`
	// Quantity は数量。1以上。
	Quantity int64 `json:"quantity" binding:"required,gt=0"`
}

// orderResponse は注文のJSONレスポンス構造。
type orderResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Items     []Item    `json:"items"`
	Status    string    `json:"status"`
	Total     int64     `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// pagination はページングの情報。
type pagination struct {
	Page  int64 `json:"page"`
	Limit int64 `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// listResponse は注文一覧のJSONレスポンス構造。
type listResponse struct {
	Items      []orderResponse `json:"items"`
	Pagination pagination      `json:"pagination"`
}

// calculateTotal は明細から合計金額を計算する。
func calculateTotal(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.Quantity * unitPrice
	}
	return total
}

// toOrderResponse はDB行をJSONレスポンスに変換する。
func toOrderResponse(o ordersdb.Order) (orderResponse, error) {
	var items []Item
	if err := json.Unmarshal([]byte(o.Items), &items); err != nil {
		return orderResponse{}, fmt.Errorf("注文明細のデコードに失敗: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Items:     items,
		Status:    o.Status,
		Total:     o.Total,
		CreatedAt: o.CreatedAt.UTC(),
		UpdatedAt: o.UpdatedAt.UTC(),
	}, nil
}

// pageCount はtotal件をlimit件ずつ分けたときのページ数を返す。
func pageCount(total, limit int64) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
