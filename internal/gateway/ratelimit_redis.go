package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix はレート制限のキーに付ける接頭辞。
const redisKeyPrefix = "edgegate:rl:"

// RedisStore はRedisにウィンドウを保持するWindowStore。
// 複数のgatewayレプリカで同じウィンドウを共有できる。
type RedisStore struct {
	// client はRedisクライアント。
	client redis.UniversalClient
	// window はウィンドウの長さ。
	window time.Duration
}

// NewRedisStore は新しいRedisStoreを生成する。
func NewRedisStore(client redis.UniversalClient, window time.Duration) *RedisStore {
	return &RedisStore{client: client, window: window}
}

// Hit はWindowStoreを実装する。
// INCRでカウントを増やし、最初のリクエストでPEXPIREによりウィンドウの期限を設定する。
func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time) (Window, error) {
	k := redisKeyPrefix + key

	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return Window{}, fmt.Errorf("レート制限カウンタの更新に失敗: %w", err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, k, s.window).Err(); err != nil {
			return Window{}, fmt.Errorf("レート制限ウィンドウの期限設定に失敗: %w", err)
		}
	}

	ttl, err := s.client.PTTL(ctx, k).Result()
	if err != nil {
		return Window{}, fmt.Errorf("レート制限ウィンドウの残り時間取得に失敗: %w", err)
	}
	// INCRとPEXPIREの間で失敗すると期限の無いキーが残るため、ここで補う
	if ttl < 0 {
		if err := s.client.PExpire(ctx, k, s.window).Err(); err != nil {
			return Window{}, fmt.Errorf("レート制限ウィンドウの期限設定に失敗: %w", err)
		}
		ttl = s.window
	}

	return Window{Count: count, ResetAt: now.Add(ttl)}, nil
}
