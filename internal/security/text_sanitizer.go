// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は外部由来のテキスト（LLMの生成文、マーケットプレイスの出品タイトル）から
// HTMLを取り除き、プレーンテキストとして保存・返却できる形にする。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェース。
type TextSanitizer interface {
	// Sanitize はHTMLタグと制御文字を除去したプレーンテキストを返す。
	// 改行とタブは保持する。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

type textSanitizer struct {
	policy   *bluemonday.Policy
	maxRunes int
}

// NewTextSanitizer はTextSanitizerを生成する。
// maxRunesが0以下の場合は長さを制限しない。
func NewTextSanitizer(maxRunes int) TextSanitizer {
	return &textSanitizer{
		policy:   bluemonday.StrictPolicy(),
		maxRunes: maxRunes,
	}
}

// Sanitize はタグを除去したあと、bluemondayがエスケープした実体参照を元に戻す。
// 出力はHTMLとして埋め込まれる前提ではないため、エスケープは表示側で行う。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = strings.TrimSpace(text)

	if s.maxRunes > 0 {
		runes := []rune(text)
		if len(runes) > s.maxRunes {
			text = string(runes[:s.maxRunes])
		}
	}
	return text
}
