package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nao1215/edgegate/pkg/apiresponse"
)

// newRecoveryRouter はRecoveryと相関IDを設定したテスト用ルーターを返す。
func newRecoveryRouter(logger *zap.Logger, h gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		SetRequestID(c, "req-panic")
		c.Next()
	})
	router.Use(Recovery(logger))
	router.Any("/target", h)
	return router
}

// TestRecovery はRecoveryミドルウェアを検証する。
func TestRecovery(t *testing.T) {
	t.Parallel()

	t.Run("パニック時はINTERNALのエンベロープで500を返しログに記録すること", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zap.ErrorLevel)
		router := newRecoveryRouter(zap.New(core), func(_ *gin.Context) {
			panic("テスト用パニック")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/target", nil))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusInternalServerError)
		}
		var body apiresponse.Envelope
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body.Success || body.Error == nil || body.Error.Code != apiresponse.CodeInternal {
			t.Errorf("エンベロープ: got %+v", body)
		}

		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("ログ件数: got %d, want 1", len(entries))
		}
		fields := entries[0].ContextMap()
		if fields["request_id"] != "req-panic" || fields["method"] != http.MethodPost || fields["panic"] != "テスト用パニック" {
			t.Errorf("ログフィールド: got %v", fields)
		}
	})

	t.Run("エラー値でパニックしても500を返すこと", func(t *testing.T) {
		t.Parallel()

		router := newRecoveryRouter(zap.NewNop(), func(_ *gin.Context) {
			panic(http.ErrHandlerTimeout)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/target", nil))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})

	t.Run("レスポンス送信後のパニックではボディを追記しないこと", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zap.ErrorLevel)
		router := newRecoveryRouter(zap.New(core), func(c *gin.Context) {
			c.String(http.StatusAccepted, "partial")
			panic("送信後のパニック")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/target", nil))

		if w.Code != http.StatusAccepted {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusAccepted)
		}
		if w.Body.String() != "partial" {
			t.Errorf("ボディ: got %q, want %q", w.Body.String(), "partial")
		}
		if got := logs.FilterField(zap.Bool("response_written", true)).Len(); got != 1 {
			t.Errorf("response_written=trueのログ件数: got %d, want 1", got)
		}
	})

	t.Run("パニックが発生しない場合はハンドラのレスポンスがそのまま返ること", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zap.ErrorLevel)
		router := newRecoveryRouter(zap.New(core), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/target", nil))

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if logs.Len() != 0 {
			t.Errorf("ログ件数: got %d, want 0", logs.Len())
		}
	})

	t.Run("後続のハンドラはパニック後に実行されないこと", func(t *testing.T) {
		t.Parallel()

		called := false
		router := gin.New()
		router.Use(Recovery(zap.NewNop()))
		router.Use(func(_ *gin.Context) { panic("前段でパニック") })
		router.GET("/target", func(c *gin.Context) {
			called = true
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/target", nil))

		if called {
			t.Error("パニック後にハンドラが実行された")
		}
		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}
