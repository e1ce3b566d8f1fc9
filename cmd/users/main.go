// usersサービスのエントリポイント。
// ユーザー登録、ログイン（JWT発行）、プロフィール管理を担当する。
// gateway経由でのみアクセスされ、認証済みユーザーはX-User-IDヘッダーで識別する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/edgegate/internal/users"
	"github.com/nao1215/edgegate/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

// run はusersサービスを起動し、終了コードを返す。
func run() int {
	cfg := users.ConfigFromEnv()

	logger, err := logging.New("users", cfg.LogLevel)
	if err != nil {
		log.Printf("ロガーの初期化に失敗: %v", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := users.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("usersサーバーの初期化に失敗", zap.Error(err))
		return 1
	}

	logger.Info("usersサービスを起動します", zap.String("port", cfg.Port))
	if err := server.Run(ctx); err != nil {
		logger.Error("usersサービスが異常終了しました", zap.Error(err))
		return 1
	}
	logger.Info("usersサービスを停止しました")
	return 0
}
