package metrics

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler はPrometheusスクレイプ用のハンドラーを返す。
// 一部のコレクターが失敗しても残りのメトリクスは返し、失敗はログに残す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:      scrapeErrorLog{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// scrapeErrorLog はpromhttpのエラー出力をslogへ流す。
type scrapeErrorLog struct{}

func (scrapeErrorLog) Println(v ...interface{}) {
	slog.Warn("metrics scrape error", slog.String("error", fmt.Sprint(v...)))
}
