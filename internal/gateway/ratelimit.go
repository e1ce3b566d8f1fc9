package gateway

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/edgegate/pkg/apiresponse"
	"go.uber.org/zap"
)

// レート制限の状態を通知するレスポンスヘッダー。
const (
	headerRateLimitLimit     = "RateLimit-Limit"
	headerRateLimitRemaining = "RateLimit-Remaining"
	headerRateLimitReset     = "RateLimit-Reset"
	headerRetryAfter         = "Retry-After"
)

// Window はクライアントごとの固定ウィンドウの状態。
type Window struct {
	// Count は現在のウィンドウ内のリクエスト数（今回のリクエストを含む）。
	Count int64
	// ResetAt はウィンドウが終了する時刻。
	ResetAt time.Time
}

// WindowStore はレート制限ウィンドウの保存先。
// Hit はキーのカウントを1増やし、更新後のウィンドウを返す。
// ウィンドウが存在しないか期限切れの場合は、nowから始まる新しいウィンドウを作る。
// 同一キーへの同時呼び出しで更新が失われてはならない。
type WindowStore interface {
	Hit(ctx context.Context, key string, now time.Time) (Window, error)
}

// RateLimiter はクライアントごとの固定ウィンドウ方式のレート制限。
type RateLimiter struct {
	// store はウィンドウの保存先。
	store WindowStore
	// max はウィンドウあたりの最大リクエスト数。
	max int64
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
	// metrics は拒否数を記録する。
	metrics *Metrics
	// logger はストアの障害を記録する。
	logger *zap.Logger
}

// NewRateLimiter は新しいRateLimiterを生成する。
func NewRateLimiter(store WindowStore, max int, metrics *Metrics, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		store:   store,
		max:     int64(max),
		now:     time.Now,
		metrics: metrics,
		logger:  logger,
	}
}

// Decision はレート制限の判定結果。
type Decision struct {
	// Allowed はリクエストを通してよいかどうか。
	Allowed bool
	// Limit はウィンドウあたりの最大リクエスト数。
	Limit int64
	// Remaining はウィンドウ内の残りリクエスト数。
	Remaining int64
	// ResetAfter はウィンドウが終了するまでの時間。
	ResetAfter time.Duration
}

// Allow はキーのリクエストを1件数え、通してよいかを判定する。
func (l *RateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	w, err := l.store.Hit(ctx, key, now)
	if err != nil {
		return Decision{}, err
	}

	remaining := l.max - w.Count
	if remaining < 0 {
		remaining = 0
	}
	resetAfter := w.ResetAt.Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}
	return Decision{
		Allowed:    w.Count <= l.max,
		Limit:      l.max,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}, nil
}

// Middleware はクライアントIPをキーにレート制限するミドルウェアを返す。
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			l.logger.Error("レート制限ストアの更新に失敗",
				zap.String("request_id", CorrelationID(c)),
				zap.Error(err),
			)
			apiresponse.Abort(c, http.StatusInternalServerError, apiresponse.CodeInternal, "内部エラーが発生しました")
			return
		}

		reset := strconv.FormatInt(ceilSeconds(d.ResetAfter), 10)
		c.Header(headerRateLimitLimit, strconv.FormatInt(d.Limit, 10))
		c.Header(headerRateLimitRemaining, strconv.FormatInt(d.Remaining, 10))
		c.Header(headerRateLimitReset, reset)

		if !d.Allowed {
			l.metrics.reject(apiresponse.CodeRateLimited)
			c.Header(headerRetryAfter, reset)
			apiresponse.Abort(c, http.StatusTooManyRequests, apiresponse.CodeRateLimited, "リクエストが多すぎます。しばらくしてから再試行してください")
			return
		}
		c.Next()
	}
}

// ceilSeconds は時間を秒単位に切り上げる。
func ceilSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}
