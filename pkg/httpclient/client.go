package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client はバックエンドサービスへの中継用HTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL *url.URL
}

// Request は中継するリクエストの内容。
type Request struct {
	// Method はHTTPメソッド。
	Method string
	// Path はベースURLからの相対パス（エスケープ済み）。
	Path string
	// RawQuery はクエリ文字列（先頭の "?" を含まない）。
	RawQuery string
	// Header は送信するヘッダー。
	Header http.Header
	// Body はリクエストボディ。nilの場合はボディ無し。
	Body io.Reader
	// ContentLength はボディの長さ。不明な場合は-1。
	ContentLength int64
}

// New は新しい中継用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://users:3001"）を指定する。
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ベースURLの解析に失敗: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("ベースURLのスキームが不正です: %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("ベースURLにホストがありません: %q", baseURL)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			// リダイレクトは追従せず、バックエンドの応答をそのまま返す
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: u,
	}, nil
}

// BaseURL は接続先のベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do はリクエストをバックエンドに送信し、レスポンスを返す。
// 呼び出し元はレスポンスボディを必ずCloseすること。
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	target := c.resolve(r.Path, r.RawQuery)

	body := r.Body
	if body == nil || r.ContentLength == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if r.Header != nil {
		req.Header = r.Header.Clone()
	}
	if body != http.NoBody {
		req.ContentLength = r.ContentLength
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	return resp, nil
}

// resolve はベースURLにパスとクエリを連結した送信先URLを組み立てる。
func (c *Client) resolve(path, rawQuery string) string {
	base := strings.TrimSuffix(c.baseURL.String(), "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := base + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// IsTimeout はエラーがタイムアウトによるものかどうかを判定する。
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
