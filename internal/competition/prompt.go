package competition

import (
	"fmt"
	"strings"

	"github.com/hitoshi/sellerlens/internal/model"
)

// locale別の固定文言
type localeText struct {
	narrativeSystem   string
	structuredSystem  string
	fallbackNarrative string
	yes, no           string
	freeShipping      string
	paidShipping      string
	notInformed       string
}

var locales = map[string]localeText{
	"pt-BR": {
		narrativeSystem:   "Você é um especialista em e-commerce do Mercado Livre que fornece análises competitivas precisas e acionáveis. Responda em português do Brasil.",
		structuredSystem:  "Você é um especialista em análise competitiva para e-commerce. Sempre responda em JSON válido e em português brasileiro.",
		fallbackNarrative: "Não foi possível gerar sugestões no momento.",
		yes:               "Sim",
		no:                "Não",
		freeShipping:      "Frete grátis",
		paidShipping:      "Frete pago",
		notInformed:       "Não informado",
	},
	"en": {
		narrativeSystem:   "You are a Mercado Livre e-commerce specialist who gives precise, actionable competitive analysis. Answer in English.",
		structuredSystem:  "You are a competitive analysis specialist for e-commerce. Always answer with valid JSON in English.",
		fallbackNarrative: "no suggestion available",
		yes:               "Yes",
		no:                "No",
		freeShipping:      "Free shipping",
		paidShipping:      "Paid shipping",
		notInformed:       "Not informed",
	},
}

// textFor はロケールの文言を返す。未対応のロケールは英語にする。
func textFor(locale string) localeText {
	if t, ok := locales[locale]; ok {
		return t
	}
	return locales["en"]
}

// FallbackNarrative はLLMが使えない場合のナラティブを返す。
func FallbackNarrative(locale string) string {
	return textFor(locale).fallbackNarrative
}

func yesNo(t localeText, v bool) string {
	if v {
		return t.yes
	}
	return t.no
}

// narrativePrompt は出品と競合を埋め込んだ提案生成用のプロンプトを組み立てる。
func narrativePrompt(locale string, listing model.ListingSummary, competitors []model.CompetitorObservation) string {
	t := textFor(locale)
	var b strings.Builder

	if locale == "pt-BR" {
		b.WriteString("Como especialista em e-commerce do Mercado Livre, analise a posição competitiva deste produto:\n\n")
		b.WriteString("PRODUTO DO USUÁRIO:\n")
		fmt.Fprintf(&b, "- Título: %s\n- Preço: R$ %.2f\n- Vendas: %d\n- Frete grátis: %s\n\n",
			listing.Title, listing.Price, listing.SoldQuantity, yesNo(t, listing.FreeShipping))
		b.WriteString("CONCORRENTES:\n")
		for i, c := range competitors {
			fmt.Fprintf(&b, "%d. %s\n   - Preço: R$ %.2f\n   - Vendas: %d\n   - Frete grátis: %s\n",
				i+1, c.Title, c.Price, c.SoldQuantity, yesNo(t, c.FreeShipping))
		}
		if len(competitors) == 0 {
			b.WriteString("(nenhum concorrente encontrado)\n")
		}
		b.WriteString("\nForneça sugestões específicas em português para:\n")
		b.WriteString("1. Preço competitivo recomendado\n2. Melhorias no título do produto\n")
		b.WriteString("3. Estratégias de frete e entrega\n4. Pontos fortes a destacar\n\n")
		b.WriteString("Seja direto e prático nas recomendações.\n")
		return b.String()
	}

	b.WriteString("As a Mercado Livre e-commerce specialist, analyze the competitive position of this product:\n\n")
	b.WriteString("SELLER PRODUCT:\n")
	fmt.Fprintf(&b, "- Title: %s\n- Price: R$ %.2f\n- Sales: %d\n- Free shipping: %s\n\n",
		listing.Title, listing.Price, listing.SoldQuantity, yesNo(t, listing.FreeShipping))
	b.WriteString("COMPETITORS:\n")
	for i, c := range competitors {
		fmt.Fprintf(&b, "%d. %s\n   - Price: R$ %.2f\n   - Sales: %d\n   - Free shipping: %s\n",
			i+1, c.Title, c.Price, c.SoldQuantity, yesNo(t, c.FreeShipping))
	}
	if len(competitors) == 0 {
		b.WriteString("(no competitors found)\n")
	}
	b.WriteString("\nGive specific suggestions for:\n")
	b.WriteString("1. Recommended competitive price\n2. Title improvements\n")
	b.WriteString("3. Shipping and delivery strategy\n4. Strengths to highlight\n\n")
	b.WriteString("Be direct and practical.\n")
	return b.String()
}

// structuredPrompt は構造化分析用のプロンプトを組み立てる。
// 応答スキーマのキーはロケールに関わらず固定する。
func structuredPrompt(locale string, product model.ProductProfile, competitors []model.CompetitorObservation) string {
	t := textFor(locale)
	var b strings.Builder

	b.WriteString("Analyze the seller's product against its competitors on Mercado Livre.\n\n")
	b.WriteString("SELLER PRODUCT:\n")
	fmt.Fprintf(&b, "- Title: %s\n- Price: R$ %.2f\n- Sales: %d\n- Shipping: %s\n- Delivery time: %s\n\n",
		product.Title, product.Price, product.Sales,
		orDefault(product.Shipping, t.notInformed), orDefault(product.DeliveryTime, t.notInformed))
	b.WriteString("COMPETITORS:\n")
	for i, c := range competitors {
		shipping := t.paidShipping
		if c.FreeShipping {
			shipping = t.freeShipping
		}
		fmt.Fprintf(&b, "%d. %s\n   - Price: R$ %.2f\n   - Sales: %d\n   - Shipping: %s\n   - Delivery time: %s\n",
			i+1, c.Title, c.Price, c.SoldQuantity, shipping, t.notInformed)
	}
	b.WriteString(`
Answer with this JSON object only, no extra text:
{
  "resumo": "2-3 sentence executive summary of the competitive position",
  "pontos_fortes": ["strengths of the product"],
  "pontos_fracos": ["weaknesses identified"],
  "recomendacoes": {
    "preco": "specific price suggestion",
    "titulo": "title improvement suggestion",
    "frete": "shipping strategy suggestion",
    "geral": "other important recommendations"
  },
  "score_competitividade": "number from 1 to 10"
}
`)
	fmt.Fprintf(&b, "Write every text value in the %s locale.\n", locale)
	return b.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
