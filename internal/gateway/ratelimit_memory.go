package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// MemoryStore はプロセス内にウィンドウを保持するWindowStore。
// 保持するクライアント数はLRUで上限を設け、最も長くアクセスの無いクライアントから破棄する。
type MemoryStore struct {
	// mu はウィンドウの読み取りから更新までを直列化する。
	mu sync.Mutex
	// windows はクライアントキーごとのウィンドウ。
	windows *lru.Cache[string, *Window]
	// window はウィンドウの長さ。
	window time.Duration
}

// NewMemoryStore は新しいMemoryStoreを生成する。
func NewMemoryStore(window time.Duration, maxClients int) (*MemoryStore, error) {
	cache, err := lru.New[string, *Window](maxClients)
	if err != nil {
		return nil, fmt.Errorf("LRUキャッシュの生成に失敗: %w", err)
	}
	return &MemoryStore{
		windows: cache,
		window:  window,
	}, nil
}

// Hit はWindowStoreを実装する。
func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows.Get(key)
	if !ok || !now.Before(w.ResetAt) {
		w = &Window{ResetAt: now.Add(s.window)}
		s.windows.Add(key, w)
	}
	w.Count++
	return *w, nil
}

// Sweep は期限切れのウィンドウを削除し、削除した件数を返す。
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range s.windows.Keys() {
		w, ok := s.windows.Peek(key)
		if ok && !now.Before(w.ResetAt) {
			s.windows.Remove(key)
			removed++
		}
	}
	return removed
}

// Len は保持しているウィンドウの数を返す。
func (s *MemoryStore) Len() int {
	return s.windows.Len()
}

// RunSweeper はctxがキャンセルされるまで、一定間隔で期限切れのウィンドウを削除する。
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				logger.Debug("期限切れのレート制限ウィンドウを削除", zap.Int("removed", n))
			}
		}
	}
}
