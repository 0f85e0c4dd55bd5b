package competition

import (
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/sellerlens/internal/marketplace"
)

const (
	// 出品分析で検索に使うタイトル先頭のトークン数と検索件数
	analyzeQueryTokens = 5
	analyzeSearchLimit = 20

	// 構造化分析で検索に使うトークン数と検索件数
	structuredQueryTokens = 3
	structuredSearchLimit = 10

	// 1回の分析で採用する競合の上限
	maxCompetitors = 3

	// 構造化分析の候補として扱うタイトルの最小文字数（この値より長いこと）
	minCandidateTitleRunes = 10
)

// SearchQuery はタイトルの先頭n個の空白区切りトークンを空白1つで連結する。
func SearchQuery(title string, n int) string {
	tokens := strings.Fields(title)
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return strings.Join(tokens, " ")
}

// SelectCompetitors は検索結果から自分の出品と新品以外を除き、
// 検索順を保ったまま先頭max件を返す。
func SelectCompetitors(ownListingID string, results []marketplace.Item, max int) []marketplace.Item {
	selected := make([]marketplace.Item, 0, max)
	for _, item := range results {
		if len(selected) == max {
			break
		}
		if item.ID == ownListingID || item.Condition != "new" {
			continue
		}
		selected = append(selected, item)
	}
	return selected
}

// SelectStructuredCandidates は価格が正でタイトルが十分に長い結果を検索順に最大max件返す。
func SelectStructuredCandidates(results []marketplace.Item, max int) []marketplace.Item {
	selected := make([]marketplace.Item, 0, max)
	for _, item := range results {
		if len(selected) == max {
			break
		}
		if item.Price <= 0 || utf8.RuneCountInString(item.Title) <= minCandidateTitleRunes {
			continue
		}
		selected = append(selected, item)
	}
	return selected
}
