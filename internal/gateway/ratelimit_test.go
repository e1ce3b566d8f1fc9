package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/nao1215/edgegate/pkg/apiresponse"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

// newTestRedis はminiredisとそれに接続したクライアントを生成する。
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredisの起動に失敗: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// TestMemoryStore はメモリストアのテスト。
func TestMemoryStore(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("同じウィンドウ内ではカウントが増える", func(t *testing.T) {
		t.Parallel()

		store, err := NewMemoryStore(time.Minute, 10)
		if err != nil {
			t.Fatalf("メモリストアの生成に失敗: %v", err)
		}
		for i := int64(1); i <= 3; i++ {
			w, err := store.Hit(context.Background(), "client", base.Add(time.Duration(i)*time.Second))
			if err != nil {
				t.Fatalf("Hitに失敗: %v", err)
			}
			if w.Count != i {
				t.Errorf("Count: got %d, want %d", w.Count, i)
			}
			if !w.ResetAt.Equal(base.Add(time.Minute + time.Second)) {
				t.Errorf("ResetAt: got %v", w.ResetAt)
			}
		}
	})

	t.Run("ウィンドウが終了すると新しいウィンドウを始める", func(t *testing.T) {
		t.Parallel()

		store, err := NewMemoryStore(time.Minute, 10)
		if err != nil {
			t.Fatalf("メモリストアの生成に失敗: %v", err)
		}
		_, _ = store.Hit(context.Background(), "client", base)
		_, _ = store.Hit(context.Background(), "client", base)

		w, err := store.Hit(context.Background(), "client", base.Add(time.Minute))
		if err != nil {
			t.Fatalf("Hitに失敗: %v", err)
		}
		if w.Count != 1 {
			t.Errorf("Count: got %d, want 1", w.Count)
		}
		if !w.ResetAt.Equal(base.Add(2 * time.Minute)) {
			t.Errorf("ResetAt: got %v, want %v", w.ResetAt, base.Add(2*time.Minute))
		}
	})

	t.Run("保持するクライアント数を超えると最も古いものを破棄する", func(t *testing.T) {
		t.Parallel()

		store, err := NewMemoryStore(time.Minute, 2)
		if err != nil {
			t.Fatalf("メモリストアの生成に失敗: %v", err)
		}
		_, _ = store.Hit(context.Background(), "a", base)
		_, _ = store.Hit(context.Background(), "b", base)
		_, _ = store.Hit(context.Background(), "a", base)
		_, _ = store.Hit(context.Background(), "c", base)

		if store.Len() != 2 {
			t.Errorf("Len: got %d, want 2", store.Len())
		}
		w, _ := store.Hit(context.Background(), "b", base)
		if w.Count != 1 {
			t.Errorf("破棄されたクライアントのCount: got %d, want 1", w.Count)
		}
		w, _ = store.Hit(context.Background(), "c", base)
		if w.Count != 2 {
			t.Errorf("残っているクライアントのCount: got %d, want 2", w.Count)
		}
	})

	t.Run("Sweepは期限切れのウィンドウだけを削除する", func(t *testing.T) {
		t.Parallel()

		store, err := NewMemoryStore(time.Minute, 10)
		if err != nil {
			t.Fatalf("メモリストアの生成に失敗: %v", err)
		}
		_, _ = store.Hit(context.Background(), "old", base)
		_, _ = store.Hit(context.Background(), "new", base.Add(30*time.Second))

		if n := store.Sweep(base.Add(time.Minute)); n != 1 {
			t.Errorf("削除件数: got %d, want 1", n)
		}
		if store.Len() != 1 {
			t.Errorf("Len: got %d, want 1", store.Len())
		}
	})

	t.Run("同時に呼び出してもカウントが失われない", func(t *testing.T) {
		t.Parallel()

		store, err := NewMemoryStore(time.Minute, 10)
		if err != nil {
			t.Fatalf("メモリストアの生成に失敗: %v", err)
		}

		const workers = 50
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.Hit(context.Background(), "burst", base)
			}()
		}
		wg.Wait()

		w, _ := store.Hit(context.Background(), "burst", base)
		if w.Count != workers+1 {
			t.Errorf("Count: got %d, want %d", w.Count, workers+1)
		}
	})

	t.Run("RunSweeperはコンテキストのキャンセルで終了する", func(t *testing.T) {
		t.Parallel()

		store, err := NewMemoryStore(time.Minute, 10)
		if err != nil {
			t.Fatalf("メモリストアの生成に失敗: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			store.RunSweeper(ctx, time.Millisecond, zaptest.NewLogger(t))
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("RunSweeperが終了しない")
		}
	})
}

// TestRedisStore はRedisストアのテスト。
func TestRedisStore(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("最初のリクエストでウィンドウの期限を設定する", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		store := NewRedisStore(client, time.Minute)

		w, err := store.Hit(context.Background(), "192.0.2.1", base)
		if err != nil {
			t.Fatalf("Hitに失敗: %v", err)
		}
		if w.Count != 1 {
			t.Errorf("Count: got %d, want 1", w.Count)
		}
		if !w.ResetAt.Equal(base.Add(time.Minute)) {
			t.Errorf("ResetAt: got %v, want %v", w.ResetAt, base.Add(time.Minute))
		}
		if ttl := mr.TTL(redisKeyPrefix + "192.0.2.1"); ttl != time.Minute {
			t.Errorf("TTL: got %v, want %v", ttl, time.Minute)
		}
	})

	t.Run("同じウィンドウ内ではカウントが増え期限は延びない", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		store := NewRedisStore(client, time.Minute)

		_, _ = store.Hit(context.Background(), "client", base)
		mr.FastForward(20 * time.Second)
		w, err := store.Hit(context.Background(), "client", base.Add(20*time.Second))
		if err != nil {
			t.Fatalf("Hitに失敗: %v", err)
		}
		if w.Count != 2 {
			t.Errorf("Count: got %d, want 2", w.Count)
		}
		if !w.ResetAt.Equal(base.Add(time.Minute)) {
			t.Errorf("ResetAt: got %v, want %v", w.ResetAt, base.Add(time.Minute))
		}
	})

	t.Run("期限が過ぎると新しいウィンドウを始める", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		store := NewRedisStore(client, time.Minute)

		_, _ = store.Hit(context.Background(), "client", base)
		_, _ = store.Hit(context.Background(), "client", base)
		mr.FastForward(time.Minute)

		w, err := store.Hit(context.Background(), "client", base.Add(time.Minute))
		if err != nil {
			t.Fatalf("Hitに失敗: %v", err)
		}
		if w.Count != 1 {
			t.Errorf("Count: got %d, want 1", w.Count)
		}
	})

	t.Run("期限の無いキーには期限を補う", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		store := NewRedisStore(client, time.Minute)
		if err := mr.Set(redisKeyPrefix+"client", "5"); err != nil {
			t.Fatalf("キーの設定に失敗: %v", err)
		}

		w, err := store.Hit(context.Background(), "client", base)
		if err != nil {
			t.Fatalf("Hitに失敗: %v", err)
		}
		if w.Count != 6 {
			t.Errorf("Count: got %d, want 6", w.Count)
		}
		if ttl := mr.TTL(redisKeyPrefix + "client"); ttl != time.Minute {
			t.Errorf("TTL: got %v, want %v", ttl, time.Minute)
		}
	})

	t.Run("Redisに接続できない場合はエラーを返す", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		store := NewRedisStore(client, time.Minute)
		mr.Close()

		if _, err := store.Hit(context.Background(), "client", base); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}

// failingStore は常にエラーを返すWindowStore。
type failingStore struct{}

func (failingStore) Hit(context.Context, string, time.Time) (Window, error) {
	return Window{}, errors.New("store unavailable")
}

// TestRateLimiterMiddleware はレート制限ミドルウェアのテスト。
func TestRateLimiterMiddleware(t *testing.T) {
	t.Parallel()

	newRouter := func(limiter *RateLimiter) *gin.Engine {
		router := gin.New()
		router.Use(limiter.Middleware())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		return router
	}

	t.Run("ストアが失敗した場合は500 INTERNALを返す", func(t *testing.T) {
		t.Parallel()

		limiter := NewRateLimiter(failingStore{}, 10, nil, zaptest.NewLogger(t))
		w := httptest.NewRecorder()
		newRouter(limiter).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assertErrorCode(t, w, http.StatusInternalServerError, apiresponse.CodeInternal)
	})

	t.Run("Redisストアでも上限を超えると429を返す", func(t *testing.T) {
		t.Parallel()

		_, client := newTestRedis(t)
		limiter := NewRateLimiter(NewRedisStore(client, time.Minute), 2, nil, zaptest.NewLogger(t))
		router := newRouter(limiter)

		for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			if w.Code != want {
				t.Errorf("%d件目: got %d, want %d", i+1, w.Code, want)
			}
			if w.Code == http.StatusTooManyRequests && w.Header().Get("Retry-After") != "60" {
				t.Errorf("Retry-After: got %q, want %q", w.Header().Get("Retry-After"), "60")
			}
		}
	})
}

// TestCeilSeconds は秒への切り上げのテスト。
func TestCeilSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want int64
	}{
		{in: 0, want: 0},
		{in: time.Millisecond, want: 1},
		{in: time.Second, want: 1},
		{in: 1500 * time.Millisecond, want: 2},
		{in: 15 * time.Minute, want: 900},
	}
	for _, tt := range tests {
		if got := ceilSeconds(tt.in); got != tt.want {
			t.Errorf("ceilSeconds(%v): got %d, want %d", tt.in, got, tt.want)
		}
	}
}
