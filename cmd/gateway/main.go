// API Gatewayサービスのエントリポイント。
// 相関ID付与、アクセスログ、CORS、レート制限、JWT認証を通したリクエストを
// 接頭辞に応じてusers/ordersサービスへ転送する。外部からアクセス可能な唯一のサービス。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/edgegate/internal/gateway"
	"github.com/nao1215/edgegate/pkg/logging"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run はGatewayを起動し、終了コードを返す。
// deferで登録した後始末（シグナル監視の解除とログのフラッシュ）は必ず実行される。
func run(args []string) int {
	flags := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", os.Getenv("GATEWAY_CONFIG"), "YAML設定ファイルのパス")
	if err := flags.Parse(args); err != nil {
		log.Printf("引数の解析に失敗: %v", err)
		return 2
	}

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		log.Printf("Gatewayの設定の読み込みに失敗: %v", err)
		return 1
	}

	logger, err := logging.New("gateway", cfg.LogLevel)
	if err != nil {
		log.Printf("ロガーの初期化に失敗: %v", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		logger.Error("Gatewayサーバーの初期化に失敗", zap.Error(err))
		return 1
	}

	logger.Info("Gatewayサービスを起動します",
		zap.String("port", cfg.Port),
		zap.Int("routes", len(cfg.Routes)),
	)
	if err := server.Run(ctx); err != nil {
		logger.Error("Gatewayサービスが異常終了しました", zap.Error(err))
		return 1
	}
	logger.Info("Gatewayサービスを停止しました")
	return 0
}
