package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/edgegate/pkg/credential"
	"github.com/nao1215/edgegate/pkg/httpserver"
	"github.com/nao1215/edgegate/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサーバーの設定。
	cfg *Config
	// logger は構造化ロガー。
	logger *zap.Logger
	// registry はこのサーバー専用のPrometheusレジストリ。
	registry *prometheus.Registry
	// metrics はgatewayのメトリクス。
	metrics *Metrics
	// limiter はレート制限。
	limiter *RateLimiter
	// authGate は認証ゲート。
	authGate *AuthGate
	// forwarder はバックエンドへの中継。
	forwarder *Forwarder
	// memoryStore はメモリストア使用時のみ設定され、掃除用のゴルーチンを動かす。
	memoryStore *MemoryStore
	// redisClient はRedisストア使用時のみ設定される。
	redisClient *redis.Client
}

// NewServer は新しいGatewayサーバーを生成する。
// rate_limit.redis_addrが設定されていればRedisを、そうでなければメモリをウィンドウストアに使う。
func NewServer(cfg *Config, logger *zap.Logger) (*Server, error) {
	if cfg.RateLimit.RedisAddr == "" {
		store, err := NewMemoryStore(cfg.RateLimit.Window, cfg.RateLimit.MaxClients)
		if err != nil {
			return nil, err
		}
		s, err := newServer(cfg, logger, store)
		if err != nil {
			return nil, err
		}
		s.memoryStore = store
		return s, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	s, err := newServer(cfg, logger, NewRedisStore(client, cfg.RateLimit.Window))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.redisClient = client
	return s, nil
}

// newServer は指定したウィンドウストアでサーバーを組み立てる。
func newServer(cfg *Config, logger *zap.Logger, store WindowStore) (*Server, error) {
	verifier, err := credential.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("トークン検証器の生成に失敗: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	forwarder, err := NewForwarder(cfg.Routes, cfg.UpstreamTimeout, metrics, logger)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("信頼するプロキシの設定に失敗: %w", err)
	}

	s := &Server{
		router:    router,
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		metrics:   metrics,
		limiter:   NewRateLimiter(store, cfg.RateLimit.Max, metrics, logger),
		authGate:  NewAuthGate(cfg.PublicRoutes, verifier, metrics, logger),
		forwarder: forwarder,
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes はルーティングとミドルウェアを設定する。
// /health と /metrics はミドルウェアの登録前に設定し、レート制限と認証の対象外にする。
func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	s.router.Use(
		middleware.Recovery(s.logger),
		Correlation(),
		middleware.AccessLog(s.logger),
		s.metrics.Middleware(),
		middleware.CORS(s.cfg.AllowedOrigins),
		s.limiter.Middleware(),
		s.authGate.Middleware(),
	)
	s.router.NoRoute(s.forwarder.Handle, Fallback(s.metrics))
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	if s.memoryStore != nil {
		go s.memoryStore.RunSweeper(ctx, s.cfg.RateLimit.SweepInterval, s.logger)
	}

	err := httpserver.Serve(ctx, ":"+s.cfg.Port, s.router, s.logger)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close はサーバーが保持する外部接続を閉じる。
func (s *Server) Close() error {
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			return fmt.Errorf("Redis接続のクローズに失敗: %w", err)
		}
	}
	return nil
}
