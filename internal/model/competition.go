package model

import "time"

// ListingSummary は自分の出品のうち、スナップショットと分析結果に含める項目。
type ListingSummary struct {
	Title        string  `json:"title"`
	Price        float64 `json:"price"`
	SoldQuantity int     `json:"sold_quantity"`
	FreeShipping bool    `json:"free_shipping"`
}

// CompetitiveSnapshot は (owner, externalListingID) ごとに1件だけ保持される競合比較のキャッシュ。
// 再分析時は履歴を残さず上書きする。
type CompetitiveSnapshot struct {
	ID                string
	UserID            string
	ExternalListingID string
	Title             string
	Price             float64
	SoldQuantity      int
	FreeShipping      bool
	DeliveryDays      int
	Suggestions       string
	Competitors       []CompetitorObservation
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CompetitorObservation はスナップショットに属する競合出品1件の観測値。
// 1スナップショットあたり最大3件。
type CompetitorObservation struct {
	ID                string  `json:"-"`
	SnapshotID        string  `json:"-"`
	ExternalListingID string  `json:"listing_id"`
	Title             string  `json:"title"`
	Price             float64 `json:"price"`
	SoldQuantity      int     `json:"sold_quantity"`
	DeliveryDays      int     `json:"delivery_days"`
	FreeShipping      bool    `json:"free_shipping"`
	ReputationLevel   string  `json:"reputation_level"`
}

// CompetitiveAnalysis はanalyze操作の結果。
type CompetitiveAnalysis struct {
	Listing     ListingSummary          `json:"listing"`
	Competitors []CompetitorObservation `json:"competitors"`
	Suggestions string                  `json:"suggestions"`
}

// StructuredAnalysis はLLMが返す構造化分析。
// パースに失敗した場合はDefaultStructuredAnalysisが使われる。
type StructuredAnalysis struct {
	Summary         string          `json:"summary"`
	Strengths       []string        `json:"strengths"`
	Weaknesses      []string        `json:"weaknesses"`
	Recommendations Recommendations `json:"recommendations"`
	Score           int             `json:"score"`
}

// Recommendations は構造化分析の推奨事項。
type Recommendations struct {
	Price    string `json:"price"`
	Title    string `json:"title"`
	Shipping string `json:"shipping"`
	General  string `json:"general"`
}

// DefaultStructuredAnalysis はLLMが利用できない場合に返す既定の分析結果。
func DefaultStructuredAnalysis() StructuredAnalysis {
	return StructuredAnalysis{
		Summary:    "Análise competitiva realizada com base nos dados fornecidos.",
		Strengths:  []string{"Produto posicionado no mercado"},
		Weaknesses: []string{"Necessário ajustar estratégia"},
		Recommendations: Recommendations{
			Price:    "Revisar estratégia de preços",
			Title:    "Otimizar título do produto",
			Shipping: "Considerar frete grátis",
			General:  "Monitorar concorrentes regularmente",
		},
		Score: 6,
	}
}

// ProductProfile は構造化分析の入力となる出品情報。
type ProductProfile struct {
	Title        string  `json:"title" validate:"required,min=3,max=200"`
	Price        float64 `json:"price" validate:"gte=0"`
	Sales        int     `json:"sales" validate:"gte=0"`
	Shipping     string  `json:"shipping" validate:"max=100"`
	DeliveryTime string  `json:"delivery_time" validate:"max=100"`
}

// StructuredResult は構造化分析操作の結果。
type StructuredResult struct {
	Product     ProductProfile          `json:"product"`
	Competitors []CompetitorObservation `json:"competitors"`
	Analysis    StructuredAnalysis      `json:"analysis"`
	Fallback    bool                    `json:"fallback"`
	Timestamp   time.Time               `json:"timestamp"`
}
