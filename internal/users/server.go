package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	usersdb "github.com/nao1215/edgegate/internal/users/db"
	"github.com/nao1215/edgegate/pkg/apiresponse"
	"github.com/nao1215/edgegate/pkg/credential"
	"github.com/nao1215/edgegate/pkg/event"
	"github.com/nao1215/edgegate/pkg/httpserver"
	"github.com/nao1215/edgegate/pkg/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// defaultRoles は登録時にロールが指定されなかった場合のロール。
var defaultRoles = []string{"engineer"}

// Server はusersサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はusersテーブルへのクエリ実行オブジェクト。
	queries *usersdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// signer はログイン時のトークン発行に使う。
	signer *credential.Signer
	// logger は構造化ロガー。
	logger *zap.Logger
	// bcryptCost はパスワードハッシュのコスト。
	bcryptCost int
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しいusersサーバーを生成する。
// SQLiteデータベースを開き、マイグレーションを適用する。
func NewServer(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	signer, err := credential.NewSigner(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("トークン発行器の生成に失敗: %w", err)
	}

	sqlDB, err := openDB(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.TrustedIdentity())
	router.Use(middleware.AccessLog(logger))

	s := &Server{
		router:     router,
		port:       cfg.Port,
		queries:    usersdb.New(sqlDB),
		db:         sqlDB,
		signer:     signer,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
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
// gatewayが接頭辞 /v1/users を取り除いて転送するため、ルートは接頭辞なしで登録する。
func (s *Server) setupRoutes() {
	s.router.POST("/register", s.handleRegister())
	s.router.POST("/login", s.handleLogin())
	s.router.GET("/profile", s.handleGetProfile())
	s.router.PUT("/profile", s.handleUpdateProfile())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "users"})
	})

	s.router.NoRoute(func(c *gin.Context) {
		apiresponse.Abort(c, http.StatusNotFound, apiresponse.CodeNotFound, "Route not found")
	})
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password は平文のパスワード。6文字以上。
	Password string `json:"password" binding:"required,min=6"`
	// Name は表示名。
	Name string `json:"name" binding:"required,min=1"`
	// Roles はロール。省略時はengineer。
	Roles []string `json:"roles"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password は平文のパスワード。
	Password string `json:"password" binding:"required"`
}

// updateProfileRequest はプロフィール更新リクエストのJSON構造。
type updateProfileRequest struct {
	// Name は新しい表示名。空の場合は変更しない。
	Name string `json:"name"`
}

// userResponse はパスワードハッシュを除いたユーザーのJSONレスポンス構造。
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// toUserResponse はDB行をJSONレスポンスに変換する。
func toUserResponse(u usersdb.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Roles:     decodeRoles(u.Roles),
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
}

// handleRegister はユーザー登録を処理するハンドラを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.Abort(c, http.StatusBadRequest, apiresponse.CodeValidationError, fmt.Sprintf("リクエストが不正です: %v", err))
			return
		}
		if req.Roles == nil {
			req.Roles = defaultRoles
		}

		ctx := c.Request.Context()
		if _, err := s.queries.GetUserByEmail(ctx, req.Email); err == nil {
			apiresponse.Abort(c, http.StatusConflict, apiresponse.CodeEmailExists, "このメールアドレスは登録済みです")
			return
		} else if !errors.Is(err, sql.ErrNoRows) {
			s.internalError(c, "ユーザーの検索に失敗", err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
		if err != nil {
			s.internalError(c, "パスワードのハッシュ化に失敗", err)
			return
		}
		roles, err := json.Marshal(req.Roles)
		if err != nil {
			s.internalError(c, "ロールのエンコードに失敗", err)
			return
		}

		userID := uuid.NewString()
		if err := s.queries.CreateUser(ctx, usersdb.CreateUserParams{
			ID:           userID,
			Email:        req.Email,
			PasswordHash: string(hash),
			Name:         req.Name,
			Roles:        string(roles),
			CreatedAt:    s.now().UTC(),
		}); err != nil {
			// 同時登録で一意制約に違反した場合
			if isUniqueViolation(err) {
				apiresponse.Abort(c, http.StatusConflict, apiresponse.CodeEmailExists, "このメールアドレスは登録済みです")
				return
			}
			s.internalError(c, "ユーザーの作成に失敗", err)
			return
		}

		s.logEvent(c, userID, event.UserRegisteredData{Email: req.Email, Roles: req.Roles})
		apiresponse.OK(c, http.StatusCreated, gin.H{"id": userID})
	}
}

// handleLogin はログインを処理するハンドラを返す。
// メールアドレスとパスワードが一致すればトークンを発行する。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.Abort(c, http.StatusBadRequest, apiresponse.CodeValidationError, fmt.Sprintf("リクエストが不正です: %v", err))
			return
		}

		user, err := s.queries.GetUserByEmail(c.Request.Context(), req.Email)
		if errors.Is(err, sql.ErrNoRows) {
			apiresponse.Abort(c, http.StatusUnauthorized, apiresponse.CodeInvalidCredentials, "メールアドレスまたはパスワードが正しくありません")
			return
		}
		if err != nil {
			s.internalError(c, "ユーザーの検索に失敗", err)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			apiresponse.Abort(c, http.StatusUnauthorized, apiresponse.CodeInvalidCredentials, "メールアドレスまたはパスワードが正しくありません")
			return
		}

		token, err := s.signer.Sign(user.ID, decodeRoles(user.Roles))
		if err != nil {
			s.internalError(c, "トークンの発行に失敗", err)
			return
		}
		apiresponse.OK(c, http.StatusOK, gin.H{"token": token})
	}
}

// handleGetProfile はログイン中のユーザーのプロフィール取得を処理するハンドラを返す。
func (s *Server) handleGetProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := s.currentUser(c)
		if !ok {
			return
		}
		apiresponse.OK(c, http.StatusOK, toUserResponse(user))
	}
}

// handleUpdateProfile はプロフィール更新を処理するハンドラを返す。
// nameが空の場合は現在の値を維持する。
func (s *Server) handleUpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponse.Abort(c, http.StatusBadRequest, apiresponse.CodeValidationError, fmt.Sprintf("リクエストが不正です: %v", err))
			return
		}

		user, ok := s.currentUser(c)
		if !ok {
			return
		}

		name := user.Name
		if req.Name != "" {
			name = req.Name
		}
		if _, err := s.queries.UpdateUserName(c.Request.Context(), usersdb.UpdateUserNameParams{
			ID:        user.ID,
			Name:      name,
			UpdatedAt: s.now().UTC(),
		}); err != nil {
			s.internalError(c, "プロフィールの更新に失敗", err)
			return
		}

		updated, err := s.queries.GetUserByID(c.Request.Context(), user.ID)
		if err != nil {
			s.internalError(c, "更新したユーザーの取得に失敗", err)
			return
		}
		apiresponse.OK(c, http.StatusOK, toUserResponse(updated))
	}
}

// currentUser はX-User-IDのユーザーを取得する。
// 見つからない場合はレスポンスを書き込んでfalseを返す。
func (s *Server) currentUser(c *gin.Context) (usersdb.User, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		apiresponse.Abort(c, http.StatusNotFound, apiresponse.CodeUserNotFound, "ユーザーが見つかりません")
		return usersdb.User{}, false
	}

	user, err := s.queries.GetUserByID(c.Request.Context(), userID)
	if errors.Is(err, sql.ErrNoRows) {
		apiresponse.Abort(c, http.StatusNotFound, apiresponse.CodeUserNotFound, "ユーザーが見つかりません")
		return usersdb.User{}, false
	}
	if err != nil {
		s.internalError(c, "ユーザーの取得に失敗", err)
		return usersdb.User{}, false
	}
	return user, true
}

// logEvent はユーザー登録イベントをログに記録する。
func (s *Server) logEvent(c *gin.Context, userID string, data event.UserRegisteredData) {
	ev, err := event.New(userID, middleware.GetRequestID(c), data)
	if err != nil {
		s.logger.Warn("イベントの生成に失敗", zap.Error(err))
		return
	}
	s.logger.Info("イベントを発行", ev.LogFields()...)
}

// internalError は内部エラーをログに記録し、500を返す。
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg,
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	)
	apiresponse.Abort(c, http.StatusInternalServerError, apiresponse.CodeInternal, "サーバーエラーが発生しました")
}

// decodeRoles はJSON配列のロールを解釈する。不正な値は空のロールとして扱う。
func decodeRoles(raw string) []string {
	var roles []string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil || roles == nil {
		return []string{}
	}
	return roles
}

// isUniqueViolation はSQLiteの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// 拡張エラーコードが無効な接続では基本コードが返る
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT
}
