// ordersサービスのエントリポイント。
// 注文の作成・一覧・詳細・キャンセル・ステータス更新と、注文イベントの記録を担当する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/edgegate/internal/orders"
	"github.com/nao1215/edgegate/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

// run はordersサービスを起動し、終了コードを返す。
func run() int {
	cfg := orders.ConfigFromEnv()

	logger, err := logging.New("orders", cfg.LogLevel)
	if err != nil {
		log.Printf("ロガーの初期化に失敗: %v", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := orders.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("ordersサーバーの初期化に失敗", zap.Error(err))
		return 1
	}

	logger.Info("ordersサービスを起動します", zap.String("port", cfg.Port))
	if err := server.Run(ctx); err != nil {
		logger.Error("ordersサービスが異常終了しました", zap.Error(err))
		return 1
	}
	logger.Info("ordersサービスを停止しました")
	return 0
}
