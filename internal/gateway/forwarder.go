package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/edgegate/pkg/apiresponse"
	"github.com/nao1215/edgegate/pkg/httpclient"
	"github.com/nao1215/edgegate/pkg/middleware"
	"go.uber.org/zap"
)

// hopByHopHeaders は接続ごとに意味を持つため中継しないヘッダー。
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StatusClientClosedRequest は呼び出し元がレスポンスを待たずに切断したことを表す。
// レスポンスとしては送信せず、アクセスログとメトリクスにのみ現れる。
const StatusClientClosedRequest = 499

// errUpstreamTimeout はバックエンドがタイムアウトまでにレスポンスヘッダーを返さなかったことを表す。
var errUpstreamTimeout = errors.New("バックエンドの応答待ちがタイムアウト")

// upstream は接頭辞に対応する転送先。
type upstream struct {
	// prefix はパス接頭辞。
	prefix string
	// client は転送先への中継用クライアント。
	client *httpclient.Client
}

// Forwarder はルールに一致したリクエストをバックエンドへ中継する。
type Forwarder struct {
	// upstreams は設定順の転送先。先に一致したものを使う。
	upstreams []upstream
	// timeout はバックエンド呼び出しのタイムアウト。
	timeout time.Duration
	// metrics はバックエンド呼び出し時間を記録する。
	metrics *Metrics
	// logger は中継の失敗を記録する。
	logger *zap.Logger
}

// NewForwarder は新しいForwarderを生成する。
func NewForwarder(rules []RouteRule, timeout time.Duration, metrics *Metrics, logger *zap.Logger) (*Forwarder, error) {
	upstreams := make([]upstream, 0, len(rules))
	for _, r := range rules {
		client, err := httpclient.New(r.BackendURL)
		if err != nil {
			return nil, fmt.Errorf("ルート %s の転送先が不正です: %w", r.PathPrefix, err)
		}
		upstreams = append(upstreams, upstream{prefix: normalizePrefix(r.PathPrefix), client: client})
	}
	return &Forwarder{
		upstreams: upstreams,
		timeout:   timeout,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// match はパスに一致する最初の転送先と、接頭辞を取り除いた残りのパスを返す。
// 接頭辞はパスのセグメント境界でのみ一致する（/v1/users は /v1/usersx に一致しない）。
func (f *Forwarder) match(path string) (upstream, string, bool) {
	for _, u := range f.upstreams {
		if u.prefix == "/" {
			return u, path, true
		}
		rest, ok := strings.CutPrefix(path, u.prefix)
		if !ok {
			continue
		}
		if rest == "" {
			return u, "/", true
		}
		if strings.HasPrefix(rest, "/") {
			return u, rest, true
		}
	}
	return upstream{}, "", false
}

// Handle はリクエストをバックエンドへ中継するハンドラ。
// 一致する転送先が無い場合は何もせず、後続のフォールバックに委ねる。
// タイムアウトはレスポンスヘッダーの受信までに適用し、ボディの中継は呼び出し元のcontextで打ち切る。
func (f *Forwarder) Handle(c *gin.Context) {
	u, suffix, ok := f.match(c.Request.URL.EscapedPath())
	if !ok {
		return
	}
	defer c.Abort()

	requestID := CorrelationID(c)
	identity, _ := IdentityFrom(c)

	ctx, cancel := context.WithCancelCause(c.Request.Context())
	defer cancel(nil)
	timer := time.AfterFunc(f.timeout, func() { cancel(errUpstreamTimeout) })

	start := time.Now()
	resp, err := u.client.Do(ctx, httpclient.Request{
		Method:        c.Request.Method,
		Path:          suffix,
		RawQuery:      c.Request.URL.RawQuery,
		Header:        outboundHeader(c.Request, requestID, identity.SubjectID, identity.Roles),
		Body:          c.Request.Body,
		ContentLength: c.Request.ContentLength,
	})
	if !timer.Stop() && err == nil {
		// ヘッダー受信とタイマー発火が競合した場合はタイムアウトとして扱う
		_ = resp.Body.Close()
		err = context.Cause(ctx)
	}
	if err != nil {
		// 呼び出し元が切断した場合は応答を書き込まず、499として記録する
		if c.Request.Context().Err() != nil {
			f.metrics.observeUpstream(u.prefix, "canceled", time.Since(start))
			f.logger.Info("クライアントが切断したため中継を中止",
				zap.String("request_id", requestID),
				zap.String("route", u.prefix),
			)
			c.Status(StatusClientClosedRequest)
			return
		}

		outcome, msg := "error", "バックエンドサービスに接続できません"
		if errors.Is(context.Cause(ctx), errUpstreamTimeout) || httpclient.IsTimeout(err) {
			outcome, msg = "timeout", "バックエンドサービスが時間内に応答しませんでした"
		}
		f.metrics.observeUpstream(u.prefix, outcome, time.Since(start))
		f.logger.Error("バックエンドへの中継に失敗",
			zap.String("request_id", requestID),
			zap.String("route", u.prefix),
			zap.String("backend", u.client.BaseURL()),
			zap.Error(err),
		)
		apiresponse.Abort(c, http.StatusBadGateway, apiresponse.CodeUpstreamUnavailable, msg)
		return
	}
	defer resp.Body.Close()

	copyResponseHeader(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	// NoRouteでは404が既定値として書き込み待ちになっているため、ここで確定させる
	c.Writer.WriteHeaderNow()

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		f.logger.Warn("レスポンスボディの中継に失敗",
			zap.String("request_id", requestID),
			zap.String("route", u.prefix),
			zap.Error(err),
		)
	}
	f.metrics.observeUpstream(u.prefix, "ok", time.Since(start))
}

// outboundHeader はバックエンドへ送るヘッダーを組み立てる。
// hop-by-hopヘッダーとクライアントが送った信頼済みヘッダーは取り除き、
// gatewayが決定した値で設定し直す。
func outboundHeader(r *http.Request, requestID, userID string, roles []string) http.Header {
	h := r.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	removeHopByHop(h)

	h.Del(middleware.HeaderRequestID)
	h.Del(middleware.HeaderUserID)
	h.Del(middleware.HeaderUserRoles)
	h.Set(middleware.HeaderRequestID, requestID)
	h.Set(middleware.HeaderUserID, userID)
	h.Set(middleware.HeaderUserRoles, middleware.EncodeRoles(roles))

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := h.Values("X-Forwarded-For"); len(prior) > 0 {
			ip = strings.Join(prior, ", ") + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	return h
}

// copyResponseHeader はバックエンドのレスポンスヘッダーをdstへ写す。
// hop-by-hopヘッダーと、gatewayが設定済みのX-Request-IDは写さない。
func copyResponseHeader(dst, src http.Header) {
	src = src.Clone()
	removeHopByHop(src)
	src.Del(middleware.HeaderRequestID)
	for k, vv := range src {
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// removeHopByHop はhop-by-hopヘッダーと、Connectionヘッダーで指定されたヘッダーを削除する。
func removeHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
