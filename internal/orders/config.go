package orders

import "os"

// Config はordersサービスの設定。環境変数から読み込む。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// DatabasePath はSQLiteデータベースのパス。
	DatabasePath string
	// LogLevel はログレベル。
	LogLevel string
}

// ConfigFromEnv は環境変数から設定を読み込む。
func ConfigFromEnv() Config {
	return Config{
		Port:         getEnvOr("PORT", "3002"),
		DatabasePath: getEnvOr("DATABASE_PATH", "/data/orders.db"),
		LogLevel:     getEnvOr("LOG_LEVEL", "info"),
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
