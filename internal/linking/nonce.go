package linking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// NonceStore は連携フローの偽造防止nonceを保持するストア。
// キーはアプリケーションセッションIDで、1キーにつき1つのnonceだけを保持する。
type NonceStore interface {
	// Save はnonceを保存する。既存のnonceは上書きされる。
	Save(ctx context.Context, key, nonce string, ttl time.Duration) error

	// Take はnonceを読み出すと同時に削除する。
	// 存在しない場合はfound=falseを返す。同じnonceを2回取り出すことはできない。
	Take(ctx context.Context, key string) (nonce string, found bool, err error)
}

// generateNonce は32バイトのランダム値を16進文字列で返す。
func generateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type nonceEntry struct {
	nonce     string
	expiresAt time.Time
}

// MemoryNonceStore はプロセス内メモリのNonceStore。
// 単一インスタンス構成と開発用。
type MemoryNonceStore struct {
	mu      sync.Mutex
	entries map[string]nonceEntry
	now     func() time.Time
}

// NewMemoryNonceStore はMemoryNonceStoreを生成する。
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		entries: make(map[string]nonceEntry),
		now:     time.Now,
	}
}

// Save はnonceを保存する。期限切れのエントリもここで掃除する。
func (s *MemoryNonceStore) Save(_ context.Context, key, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = nonceEntry{nonce: nonce, expiresAt: now.Add(ttl)}
	return nil
}

// Take はnonceを読み出して削除する。期限切れの場合は見つからない扱い。
func (s *MemoryNonceStore) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	delete(s.entries, key)
	if !s.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.nonce, true, nil
}

var _ NonceStore = (*MemoryNonceStore)(nil)
