package orders

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	ordersdb "github.com/nao1215/edgegate/internal/orders/db"
	"github.com/nao1215/edgegate/pkg/apiresponse"
	"github.com/nao1215/edgegate/pkg/event"
	"github.com/nao1215/edgegate/pkg/middleware"
)

// ページングの既定値。
const (
	defaultPage  = 1
	defaultLimit = 10
)

// createOrderRequest は注文作成リクエストのJSON構造。
type createOrderRequest struct {
	// Items は注文明細。1件以上。
	Items []Item `json:"items" binding:"required,min=1,dive"`
}

// updateStatusRequest はステータス更新リクエストのJSON構造。
type updateStatusRequest struct {
	// Status は新しいステータス。
	Status string `json:"status"`
}

// handleCreate は注文作成を処理するハンドラを返す。
// 注文とorder.createdイベントを同じトランザクションで保存する。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.Abort(c, http.StatusBadRequest, apiresponse.CodeValidationError, fmt.Sprintf("リクエストが不正です: %v", err))
			return
		}

		items, err := json.Marshal(req.Items)
		if err != nil {
			s.internalError(c, "注文明細のエンコードに失敗", err)
			return
		}

		userID := middleware.GetUserID(c)
		orderID := uuid.NewString()
		total := calculateTotal(req.Items)
		ctx := c.Request.Context()

		var ev *event.Event
		err = s.withTx(ctx, func(q *ordersdb.Queries) error {
			if err := q.CreateOrder(ctx, ordersdb.CreateOrderParams{
				ID:        orderID,
				UserID:    userID,
				Items:     string(items),
				Status:    StatusCreated,
				Total:     total,
				CreatedAt: s.now().UTC(),
			}); err != nil {
				return fmt.Errorf("注文の作成に失敗: %w", err)
			}
			var err error
			ev, err = appendEvent(ctx, q, orderID, middleware.GetRequestID(c), event.OrderCreatedData{
				UserID:    userID,
				ItemCount: len(req.Items),
				Total:     total,
			})
			return err
		})
		if err != nil {
			s.internalError(c, "注文の作成に失敗", err)
			return
		}
		s.logEvent(ev)

		s.respondOrder(c, http.StatusCreated, orderID)
	}
}

// handleGetByID は注文詳細取得を処理するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := s.loadOwnedOrder(c)
		if !ok {
			return
		}
		resp, err := toOrderResponse(o)
		if err != nil {
			s.internalError(c, "注文の変換に失敗", err)
			return
		}
		apiresponse.OK(c, http.StatusOK, resp)
	}
}

// handleList は呼び出し元の注文一覧を処理するハンドラを返す。
// pageとlimitが数値として解釈できない場合や1未満の場合は既定値を使う。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		page := positiveQuery(c, "page", defaultPage)
		limit := positiveQuery(c, "limit", defaultLimit)
		ctx := c.Request.Context()

		total, err := s.queries.CountOrdersByUserID(ctx, userID)
		if err != nil {
			s.internalError(c, "注文数の取得に失敗", err)
			return
		}
		rows, err := s.queries.ListOrdersByUserID(ctx, ordersdb.ListOrdersByUserIDParams{
			UserID: userID,
			Limit:  limit,
			Offset: (page - 1) * limit,
		})
		if err != nil {
			s.internalError(c, "注文一覧の取得に失敗", err)
			return
		}

		items := make([]orderResponse, 0, len(rows))
		for _, o := range rows {
			resp, err := toOrderResponse(o)
			if err != nil {
				s.internalError(c, "注文の変換に失敗", err)
				return
			}
			items = append(items, resp)
		}

		apiresponse.OK(c, http.StatusOK, listResponse{
			Items: items,
			Pagination: pagination{
				Page:  page,
				Limit: limit,
				Total: total,
				Pages: pageCount(total, limit),
			},
		})
	}
}

// handleCancel は注文キャンセルを処理するハンドラを返す。
// キャンセル済みの注文は変更せずにそのまま返し、イベントも発行しない。
func (s *Server) handleCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := s.loadOwnedOrder(c)
		if !ok {
			return
		}
		if o.Status == StatusCancelled {
			s.respondOrder(c, http.StatusOK, o.ID)
			return
		}

		ctx := c.Request.Context()
		var ev *event.Event
		err := s.withTx(ctx, func(q *ordersdb.Queries) error {
			n, err := q.CancelOrder(ctx, o.ID, s.now().UTC())
			if err != nil {
				return fmt.Errorf("注文のキャンセルに失敗: %w", err)
			}
			// 同時にキャンセルされた場合は既にキャンセル済みなのでイベントを発行しない
			if n == 0 {
				return nil
			}
			ev, err = appendEvent(ctx, q, o.ID, middleware.GetRequestID(c), event.OrderStatusUpdatedData{
				UserID: o.UserID,
				From:   o.Status,
				To:     StatusCancelled,
			})
			return err
		})
		if err != nil {
			s.internalError(c, "注文のキャンセルに失敗", err)
			return
		}
		if ev != nil {
			s.logEvent(ev)
		}

		s.respondOrder(c, http.StatusOK, o.ID)
	}
}

// handleUpdateStatus はステータス更新を処理するハンドラを返す。
func (s *Server) handleUpdateStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := s.loadOwnedOrder(c)
		if !ok {
			return
		}

		var req updateStatusRequest
		// ボディが不正な場合もステータス不正として扱う
		_ = c.ShouldBindJSON(&req)
		if _, ok := allowedStatuses[req.Status]; !ok {
			apiresponse.Abort(c, http.StatusBadRequest, apiresponse.CodeInvalidStatus, "ステータスが不正です")
			return
		}

		ctx := c.Request.Context()
		var ev *event.Event
		err := s.withTx(ctx, func(q *ordersdb.Queries) error {
			if err := q.UpdateOrderStatus(ctx, ordersdb.UpdateOrderStatusParams{
				ID:        o.ID,
				Status:    req.Status,
				UpdatedAt: s.now().UTC(),
			}); err != nil {
				return fmt.Errorf("ステータスの更新に失敗: %w", err)
			}
			var err error
			ev, err = appendEvent(ctx, q, o.ID, middleware.GetRequestID(c), event.OrderStatusUpdatedData{
				UserID: o.UserID,
				From:   o.Status,
				To:     req.Status,
			})
			return err
		})
		if err != nil {
			s.internalError(c, "ステータスの更新に失敗", err)
			return
		}
		s.logEvent(ev)

		s.respondOrder(c, http.StatusOK, o.ID)
	}
}

// handleListEvents は注文のイベント履歴取得を処理するハンドラを返す。
func (s *Server) handleListEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := s.loadOwnedOrder(c)
		if !ok {
			return
		}

		rows, err := s.queries.ListEventsByAggregateID(c.Request.Context(), o.ID)
		if err != nil {
			s.internalError(c, "イベントの取得に失敗", err)
			return
		}
		events := make([]event.Event, 0, len(rows))
		for _, e := range rows {
			events = append(events, toEvent(e))
		}
		apiresponse.OK(c, http.StatusOK, events)
	}
}

// respondOrder は注文を再取得してレスポンスを書き込む。
func (s *Server) respondOrder(c *gin.Context, status int, orderID string) {
	o, err := s.queries.GetOrderByID(c.Request.Context(), orderID)
	if err != nil {
		s.internalError(c, "注文の取得に失敗", err)
		return
	}
	resp, err := toOrderResponse(o)
	if err != nil {
		s.internalError(c, "注文の変換に失敗", err)
		return
	}
	apiresponse.OK(c, status, resp)
}

// positiveQuery はクエリパラメータを正の整数として取得する。
// 解釈できない場合や1未満の場合はdefを返す。
func positiveQuery(c *gin.Context, key string, def int64) int64 {
	v, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil || v < 1 {
		return def
	}
	return v
}
