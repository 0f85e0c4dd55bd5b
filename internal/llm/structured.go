package llm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hitoshi/sellerlens/internal/model"
)

// structuredWire はLLMが返すJSON。キーはポルトガル語と英語の両方を受け付ける。
type structuredWire struct {
	Resumo         string          `json:"resumo"`
	Summary        string          `json:"summary"`
	PontosFortes   []string        `json:"pontos_fortes"`
	Strengths      []string        `json:"strengths"`
	PontosFracos   []string        `json:"pontos_fracos"`
	Weaknesses     []string        `json:"weaknesses"`
	Recomendacoes  *recommendWire  `json:"recomendacoes"`
	Recommendation *recommendWire  `json:"recommendations"`
	ScorePT        json.RawMessage `json:"score_competitividade"`
	Score          json.RawMessage `json:"score"`
}

type recommendWire struct {
	Preco    string `json:"preco"`
	Price    string `json:"price"`
	Titulo   string `json:"titulo"`
	Title    string `json:"title"`
	Frete    string `json:"frete"`
	Shipping string `json:"shipping"`
	Geral    string `json:"geral"`
	General  string `json:"general"`
}

// ParseStructuredAnalysis はLLMの応答を構造化分析として解釈する。
// コードフェンスで囲まれた応答も受け付ける。
// 解釈できない場合は既定の分析とok=falseを返す。
func ParseStructuredAnalysis(text string) (model.StructuredAnalysis, bool) {
	raw := extractJSONObject(text)
	if raw == "" {
		return model.DefaultStructuredAnalysis(), false
	}

	var w structuredWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return model.DefaultStructuredAnalysis(), false
	}

	a := model.StructuredAnalysis{
		Summary:    firstNonEmpty(w.Resumo, w.Summary),
		Strengths:  firstNonNil(w.PontosFortes, w.Strengths),
		Weaknesses: firstNonNil(w.PontosFracos, w.Weaknesses),
	}
	rec := w.Recomendacoes
	if rec == nil {
		rec = w.Recommendation
	}
	if rec != nil {
		a.Recommendations = model.Recommendations{
			Price:    firstNonEmpty(rec.Preco, rec.Price),
			Title:    firstNonEmpty(rec.Titulo, rec.Title),
			Shipping: firstNonEmpty(rec.Frete, rec.Shipping),
			General:  firstNonEmpty(rec.Geral, rec.General),
		}
	}

	scoreRaw := w.ScorePT
	if len(scoreRaw) == 0 {
		scoreRaw = w.Score
	}
	score, ok := parseScore(scoreRaw)
	if !ok || a.Summary == "" {
		return model.DefaultStructuredAnalysis(), false
	}
	a.Score = score
	if a.Strengths == nil {
		a.Strengths = []string{}
	}
	if a.Weaknesses == nil {
		a.Weaknesses = []string{}
	}
	return a, true
}

// extractJSONObject は最初の"{"から最後の"}"までを取り出す。
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// parseScore はスコアを数値または数値文字列から読み取り、1〜10に丸める。
func parseScore(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(strings.SplitN(s, "/", 2)[0])
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	}
	score := int(f + 0.5)
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(values ...[]string) []string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
