// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 連携フロー、競合分析、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordLinkOutcome(outcome string)
	RecordAnalysisOutcome(outcome string)
	RecordCompetitorsFound(count int)
	RecordLLMCall(provider string, fallback bool, duration time.Duration)
	RecordMarketplaceLatency(operation string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	linkOutcome        *prometheus.CounterVec
	analysisOutcome    *prometheus.CounterVec
	competitorsFound   prometheus.Histogram
	llmCalls           *prometheus.CounterVec
	llmLatency         prometheus.Histogram
	marketplaceLatency *prometheus.HistogramVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		linkOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerlens_link_callbacks_total",
			Help: "連携コールバックの結果別件数",
		}, []string{"outcome"}),
		analysisOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerlens_analyses_total",
			Help: "競合分析の結果別件数",
		}, []string{"outcome"}),
		competitorsFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sellerlens_competitors_found",
			Help:    "1回の分析で採用された競合数",
			Buckets: []float64{0, 1, 2, 3},
		}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerlens_llm_calls_total",
			Help: "LLM呼び出し件数（フォールバック有無別）",
		}, []string{"provider", "fallback"}),
		llmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sellerlens_llm_latency_seconds",
			Help:    "LLM呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		marketplaceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sellerlens_marketplace_latency_seconds",
			Help:    "マーケットプレイスAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sellerlens_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.linkOutcome,
		c.analysisOutcome,
		c.competitorsFound,
		c.llmCalls,
		c.llmLatency,
		c.marketplaceLatency,
		c.httpStatus,
	)

	return c
}

// RecordLinkOutcome は連携コールバックの結果を記録する。
// outcomeは"success"またはエラー種別。
func (c *Collector) RecordLinkOutcome(outcome string) {
	c.linkOutcome.WithLabelValues(outcome).Inc()
}

// RecordAnalysisOutcome は競合分析の結果を記録する。
func (c *Collector) RecordAnalysisOutcome(outcome string) {
	c.analysisOutcome.WithLabelValues(outcome).Inc()
}

// RecordCompetitorsFound は採用された競合数を記録する。
func (c *Collector) RecordCompetitorsFound(count int) {
	c.competitorsFound.Observe(float64(count))
}

// RecordLLMCall はLLM呼び出しを記録する。
func (c *Collector) RecordLLMCall(provider string, fallback bool, duration time.Duration) {
	c.llmCalls.WithLabelValues(provider, strconv.FormatBool(fallback)).Inc()
	c.llmLatency.Observe(duration.Seconds())
}

// RecordMarketplaceLatency はマーケットプレイスAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordMarketplaceLatency(operation string, duration time.Duration) {
	c.marketplaceLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordLinkOutcome(string) {}
func (NopCollector) RecordAnalysisOutcome(string) {}
func (NopCollector) RecordCompetitorsFound(int) {}
func (NopCollector) RecordLLMCall(string, bool, time.Duration) {}
func (NopCollector) RecordMarketplaceLatency(string, time.Duration) {}
func (NopCollector) RecordHTTPStatus(int) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
