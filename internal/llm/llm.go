// Package llm は競合分析の文章生成に使うLLMクライアントを提供する。
// OpenAI互換のChat Completions APIとGoogle Gemini APIに対応する。
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured はAPIキーが設定されていない場合のエラー。
var ErrNotConfigured = errors.New("llm: API key not configured")

const (
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
	defaultTimeout     = 30 * time.Second
)

// Client はシステムプロンプト付きで1回の補完を行うLLMクライアント。
type Client interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Provider はメトリクスとログに使うプロバイダー名を返す。
	Provider() string
}

// Config はLLMクライアントの設定。
type Config struct {
	Provider string // "openai" | "gemini"
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// New は設定に応じたClientを生成する。
func New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
