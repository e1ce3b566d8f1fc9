package users

import (
	"os"
	"time"
)

// Config はusersサービスの設定。環境変数から読み込む。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// JWTSecret はトークン署名用の秘密鍵。gatewayと同じ値を使う。
	JWTSecret string
	// DatabasePath はSQLiteデータベースのパス。
	DatabasePath string
	// LogLevel はログレベル。
	LogLevel string
	// TokenTTL は発行するトークンの有効期間。
	TokenTTL time.Duration
}

// ConfigFromEnv は環境変数から設定を読み込む。
func ConfigFromEnv() Config {
	ttl, err := time.ParseDuration(os.Getenv("TOKEN_TTL"))
	if err != nil || ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return Config{
		Port:         getEnvOr("PORT", "3001"),
		JWTSecret:    getEnvOr("JWT_SECRET", "supersecret"),
		DatabasePath: getEnvOr("DATABASE_PATH", "/data/users.db"),
		LogLevel:     getEnvOr("LOG_LEVEL", "info"),
		TokenTTL:     ttl,
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
