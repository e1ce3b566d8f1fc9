package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

// TestForwarderMatch は転送先の選択のテスト。
func TestForwarderMatch(t *testing.T) {
	t.Parallel()

	f, err := NewForwarder([]RouteRule{
		{PathPrefix: "/v1/users", BackendURL: "http://users:3001"},
		{PathPrefix: "/v1/orders/", BackendURL: "http://orders:3002"},
		{PathPrefix: "/v1", BackendURL: "http://legacy:3000"},
	}, 0, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Forwarderの生成に失敗: %v", err)
	}

	tests := []struct {
		path       string
		wantPrefix string
		wantSuffix string
		wantOK     bool
	}{
		{path: "/v1/users", wantPrefix: "/v1/users", wantSuffix: "/", wantOK: true},
		{path: "/v1/users/", wantPrefix: "/v1/users", wantSuffix: "/", wantOK: true},
		{path: "/v1/users/login", wantPrefix: "/v1/users", wantSuffix: "/login", wantOK: true},
		{path: "/v1/orders/ord-1/cancel", wantPrefix: "/v1/orders", wantSuffix: "/ord-1/cancel", wantOK: true},
		{path: "/v1/usersx", wantPrefix: "/v1", wantSuffix: "/usersx", wantOK: true},
		{path: "/v2/users", wantOK: false},
		{path: "/", wantOK: false},
	}
	for _, tt := range tests {
		u, suffix, ok := f.match(tt.path)
		if ok != tt.wantOK {
			t.Errorf("match(%q): ok got %v, want %v", tt.path, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if u.prefix != tt.wantPrefix || suffix != tt.wantSuffix {
			t.Errorf("match(%q): got (%q, %q), want (%q, %q)", tt.path, u.prefix, suffix, tt.wantPrefix, tt.wantSuffix)
		}
	}
}

// TestOutboundHeader はバックエンドへ送るヘッダーの組み立てのテスト。
func TestOutboundHeader(t *testing.T) {
	t.Parallel()

	t.Run("hop-by-hopヘッダーと信頼済みヘッダーを取り除いて設定し直す", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		req.Header.Set("Connection", "keep-alive, X-Custom-Hop")
		req.Header.Set("X-Custom-Hop", "1")
		req.Header.Set("Keep-Alive", "timeout=5")
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("X-User-ID", "spoofed")
		req.Header.Set("X-User-Roles", `["admin"]`)
		req.Header.Set("X-Request-ID", "client-id")
		req.Header.Set("Authorization", "Bearer token")
		req.Header.Set("Content-Type", "application/json")

		h := outboundHeader(req, "req-1", "user-1", []string{"engineer"})

		for _, name := range []string{"Connection", "X-Custom-Hop", "Keep-Alive", "Upgrade"} {
			if h.Get(name) != "" {
				t.Errorf("%sが残っている", name)
			}
		}
		want := map[string]string{
			"X-Request-ID":    "req-1",
			"X-User-ID":       "user-1",
			"X-User-Roles":    `["engineer"]`,
			"Authorization":   "Bearer token",
			"Content-Type":    "application/json",
			"X-Forwarded-For": "192.0.2.1",
		}
		for name, v := range want {
			if got := h.Values(name); len(got) != 1 || got[0] != v {
				t.Errorf("%s: got %q, want [%q]", name, got, v)
			}
		}
	})

	t.Run("既存のX-Forwarded-Forに接続元を追記する", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		req.Header.Set("X-Forwarded-For", "203.0.113.7")

		h := outboundHeader(req, "req-1", "", nil)
		if v := h.Get("X-Forwarded-For"); v != "203.0.113.7, 192.0.2.1" {
			t.Errorf("X-Forwarded-For: got %q", v)
		}
		if v := h.Get("X-User-Roles"); v != "[]" {
			t.Errorf("X-User-Roles: got %q, want %q", v, "[]")
		}
	})

	t.Run("元のリクエストのヘッダーは変更しない", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
		req.Header.Set("X-User-ID", "spoofed")

		_ = outboundHeader(req, "req-1", "user-1", nil)
		if v := req.Header.Get("X-User-ID"); v != "spoofed" {
			t.Errorf("元のX-User-IDが変更された: %q", v)
		}
	})
}

// TestCopyResponseHeader はバックエンドのレスポンスヘッダーの中継のテスト。
func TestCopyResponseHeader(t *testing.T) {
	t.Parallel()

	dst := http.Header{}
	dst.Set("X-Request-ID", "gateway-id")
	dst.Set("Content-Type", "text/plain")

	src := http.Header{}
	src.Set("X-Request-ID", "backend-id")
	src.Set("Content-Type", "application/json")
	src.Add("Set-Cookie", "a=1")
	src.Add("Set-Cookie", "b=2")
	src.Set("Transfer-Encoding", "chunked")
	src.Set("Connection", "close")

	copyResponseHeader(dst, src)

	if v := dst.Get("X-Request-ID"); v != "gateway-id" {
		t.Errorf("X-Request-ID: got %q, want %q", v, "gateway-id")
	}
	if v := dst.Values("Content-Type"); len(v) != 1 || v[0] != "application/json" {
		t.Errorf("Content-Type: got %q", v)
	}
	if v := dst.Values("Set-Cookie"); len(v) != 2 {
		t.Errorf("Set-Cookie: got %q", v)
	}
	if dst.Get("Transfer-Encoding") != "" || dst.Get("Connection") != "" {
		t.Error("hop-by-hopヘッダーが中継されている")
	}
}
