package httpserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// TestServe はサーバーの起動と停止のテスト。
func TestServe(t *testing.T) {
	t.Parallel()

	t.Run("リクエストに応答しコンテキストのキャンセルで停止する", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("リッスンに失敗: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- serve(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "ok")
			}), zaptest.NewLogger(t))
		}()

		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			t.Fatalf("リクエストに失敗: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if string(body) != "ok" {
			t.Errorf("ボディ: got %q, want %q", body, "ok")
		}

		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("予期しないエラー: %v", err)
			}
		case <-time.After(ShutdownTimeout):
			t.Fatal("サーバーが停止しない")
		}
	})

	t.Run("使用中のアドレスの場合はエラーを返す", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("リッスンに失敗: %v", err)
		}
		t.Cleanup(func() { _ = ln.Close() })

		if err := Serve(context.Background(), ln.Addr().String(), http.NotFoundHandler(), zaptest.NewLogger(t)); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}
