package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix はgateway設定を上書きする環境変数の接頭辞。
// ネストは "__" で表す（例: GATEWAY_RATE_LIMIT__MAX=200）。
const envPrefix = "GATEWAY_"

// Config はgatewayサービスの設定。起動時に一度だけ読み込み、以降は変更しない。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string `koanf:"port"`
	// JWTSecret はトークン検証用の秘密鍵。
	JWTSecret string `koanf:"jwt_secret"`
	// UpstreamTimeout はバックエンド呼び出しのタイムアウト。
	UpstreamTimeout time.Duration `koanf:"upstream_timeout"`
	// LogLevel はログレベル。
	LogLevel string `koanf:"log_level"`
	// AllowedOrigins はCORSで許可するオリジン。"*" で全て許可する。
	AllowedOrigins []string `koanf:"allowed_origins"`
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのCIDR。空ならリモートアドレスを使う。
	TrustedProxies []string `koanf:"trusted_proxies"`
	// RateLimit はレート制限の設定。
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	// Routes はパス接頭辞による転送先の一覧。先に一致したものを使う。
	Routes []RouteRule `koanf:"routes"`
	// PublicRoutes は認証不要なルートの一覧。パスとメソッドの完全一致で判定する。
	PublicRoutes []PublicRoute `koanf:"public_routes"`
}

// RateLimitConfig はレート制限の設定。
type RateLimitConfig struct {
	// Window は固定ウィンドウの長さ。
	Window time.Duration `koanf:"window"`
	// Max はウィンドウあたりの最大リクエスト数。
	Max int `koanf:"max"`
	// MaxClients はメモリストアで保持するクライアント数の上限。
	MaxClients int `koanf:"max_clients"`
	// SweepInterval は期限切れウィンドウを掃除する間隔。
	SweepInterval time.Duration `koanf:"sweep_interval"`
	// RedisAddr を指定するとRedisをウィンドウストアとして使う。
	RedisAddr string `koanf:"redis_addr"`
	// RedisPassword はRedisのパスワード。
	RedisPassword string `koanf:"redis_password"`
	// RedisDB はRedisのDB番号。
	RedisDB int `koanf:"redis_db"`
}

// RouteRule はパス接頭辞と転送先バックエンドの対応。
type RouteRule struct {
	// PathPrefix はリクエストパスの接頭辞（例: "/v1/users"）。
	PathPrefix string `koanf:"path_prefix"`
	// BackendURL は転送先のベースURL。
	BackendURL string `koanf:"backend_url"`
}

// PublicRoute は認証ゲートを免除するパスとメソッドの組。
type PublicRoute struct {
	// Path は完全一致で比較するパス。
	Path string `koanf:"path"`
	// Method は完全一致で比較するHTTPメソッド。
	Method string `koanf:"method"`
}

// LoadConfig は設定を読み込む。
// 既定値 → YAMLファイル（pathが空でなければ） → GATEWAY_ 接頭辞の環境変数 の順で上書きする。
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey はGATEWAY_RATE_LIMIT__MAX を rate_limit.max に変換する。
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// DefaultConfig は既定値のみを設定したConfigを返す。
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults は未設定の項目に既定値を設定する。
func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = getEnvOr("PORT", "3000")
	}
	if c.JWTSecret == "" {
		c.JWTSecret = getEnvOr("JWT_SECRET", "supersecret")
	}
	if c.UpstreamTimeout == 0 {
		c.UpstreamTimeout = 10 * time.Second
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = 15 * time.Minute
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 100
	}
	if c.RateLimit.MaxClients == 0 {
		c.RateLimit.MaxClients = 100000
	}
	if c.RateLimit.SweepInterval == 0 {
		c.RateLimit.SweepInterval = time.Minute
	}
	if len(c.Routes) == 0 {
		c.Routes = []RouteRule{
			{PathPrefix: "/v1/users", BackendURL: getEnvOr("USERS_SERVICE_URL", "http://localhost:3001")},
			{PathPrefix: "/v1/orders", BackendURL: getEnvOr("ORDERS_SERVICE_URL", "http://localhost:3002")},
		}
	}
	if c.PublicRoutes == nil {
		c.PublicRoutes = []PublicRoute{
			{Path: "/v1/users/register", Method: http.MethodPost},
			{Path: "/v1/users/login", Method: http.MethodPost},
		}
	}
	for i := range c.Routes {
		c.Routes[i].PathPrefix = normalizePrefix(c.Routes[i].PathPrefix)
	}
	for i := range c.PublicRoutes {
		c.PublicRoutes[i].Method = strings.ToUpper(strings.TrimSpace(c.PublicRoutes[i].Method))
	}
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secretが空です"))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("upstream_timeoutは正の値である必要があります"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.windowは正の値である必要があります"))
	}
	if c.RateLimit.Max <= 0 {
		errs = append(errs, errors.New("rate_limit.maxは正の値である必要があります"))
	}
	if c.RateLimit.MaxClients <= 0 {
		errs = append(errs, errors.New("rate_limit.max_clientsは正の値である必要があります"))
	}
	if len(c.Routes) == 0 {
		errs = append(errs, errors.New("routesが空です"))
	}
	for i, r := range c.Routes {
		if !strings.HasPrefix(r.PathPrefix, "/") {
			errs = append(errs, fmt.Errorf("routes[%d].path_prefixは / で始まる必要があります: %q", i, r.PathPrefix))
		}
		if u, err := url.Parse(r.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("routes[%d].backend_urlが不正です: %q", i, r.BackendURL))
		}
	}
	for i, p := range c.PublicRoutes {
		if !strings.HasPrefix(p.Path, "/") {
			errs = append(errs, fmt.Errorf("public_routes[%d].pathは / で始まる必要があります: %q", i, p.Path))
		}
		if p.Method == "" {
			errs = append(errs, fmt.Errorf("public_routes[%d].methodが空です", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("設定が不正です: %w", errors.Join(errs...))
	}
	return nil
}

// normalizePrefix は接頭辞末尾のスラッシュを取り除く。"/" はそのまま残す。
func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			prefix = "/"
		}
	}
	return prefix
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
