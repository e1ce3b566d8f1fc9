package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ordersdb "github.com/nao1215/edgegate/internal/orders/db"
	"github.com/nao1215/edgegate/pkg/apiresponse"
	"github.com/nao1215/edgegate/pkg/httpserver"
	"github.com/nao1215/edgegate/pkg/middleware"
	"go.uber.org/zap"
)

// Server はordersサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はordersとorder_eventsへのクエリ実行オブジェクト。
	queries *ordersdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// logger は構造化ロガー。
	logger *zap.Logger
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しいordersサーバーを生成する。
// SQLiteデータベースを開き、マイグレーションを適用する。
func NewServer(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	sqlDB, err := openDB(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.TrustedIdentity())
	router.Use(middleware.AccessLog(logger))

	s := &Server{
		router:  router,
		port:    cfg.Port,
		queries: ordersdb.New(sqlDB),
		db:      sqlDB,
		logger:  logger,
		now:     time.Now,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	err := httpserver.Serve(ctx, ":"+s.port, s.router, s.logger)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("データベース接続のクローズに失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
// gatewayが接頭辞 /v1/orders を取り除いて転送するため、ルートは接頭辞なしで登録する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "orders"})
	})

	api := s.router.Group("/")
	api.Use(requireUser())
	{
		// 注文作成
		api.POST("", s.handleCreate())
		// 注文一覧取得
		api.GET("", s.handleList())
		// 注文詳細取得
		api.GET("/:id", s.handleGetByID())
		// 注文のイベント履歴取得
		api.GET("/:id/events", s.handleListEvents())
		// 注文キャンセル
		api.PATCH("/:id/cancel", s.handleCancel())
		// ステータス更新
		api.PATCH("/:id/status", s.handleUpdateStatus())
	}

	s.router.NoRoute(func(c *gin.Context) {
		apiresponse.Abort(c, http.StatusNotFound, apiresponse.CodeNotFound, "Route not found")
	})
}

// requireUser はX-User-IDが無いリクエストを401で拒否するミドルウェアを返す。
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.GetUserID(c) == "" {
			apiresponse.Abort(c, http.StatusUnauthorized, apiresponse.CodeUnauthorized, "ユーザーが認証されていません")
			return
		}
		c.Next()
	}
}

// loadOwnedOrder はパスの注文を取得し、呼び出し元が所有者であることを確認する。
// 失敗した場合はレスポンスを書き込んでfalseを返す。
func (s *Server) loadOwnedOrder(c *gin.Context) (ordersdb.Order, bool) {
	o, err := s.queries.GetOrderByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, sql.ErrNoRows) {
		apiresponse.Abort(c, http.StatusNotFound, apiresponse.CodeOrderNotFound, "注文が見つかりません")
		return ordersdb.Order{}, false
	}
	if err != nil {
		s.internalError(c, "注文の取得に失敗", err)
		return ordersdb.Order{}, false
	}
	if o.UserID != middleware.GetUserID(c) {
		apiresponse.Abort(c, http.StatusForbidden, apiresponse.CodeForbidden, "この注文へのアクセス権がありません")
		return ordersdb.Order{}, false
	}
	return o, true
}

// internalError は内部エラーをログに記録し、500を返す。
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg,
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	)
	apiresponse.Abort(c, http.StatusInternalServerError, apiresponse.CodeInternal, "サーバーエラーが発生しました")
}
