package linking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisNonceKeyPrefix = "sellerlens:link-nonce:"

// RedisNonceStore はRedisを使ったNonceStore。
// 複数インスタンス構成でもコールバックを受けたインスタンスがnonceを取り出せる。
type RedisNonceStore struct {
	client redis.Cmdable
}

// NewRedisNonceStore はRedisNonceStoreを生成する。
func NewRedisNonceStore(client redis.Cmdable) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

// Save はnonceをTTL付きで保存する。既存の値は上書きされる。
func (s *RedisNonceStore) Save(ctx context.Context, key, nonce string, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisNonceKeyPrefix+key, nonce, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save nonce: %w", err)
	}
	return nil
}

// Take はGETDELでnonceを読み出しと同時に削除する。
// 同時に届いたコールバックのうち1つだけが値を受け取る。
func (s *RedisNonceStore) Take(ctx context.Context, key string) (string, bool, error) {
	nonce, err := s.client.GetDel(ctx, redisNonceKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to take nonce: %w", err)
	}
	return nonce, true, nil
}

// NewRedisClient はREDIS_URLからクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string, timeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

var _ NonceStore = (*RedisNonceStore)(nil)
