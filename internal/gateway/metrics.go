package gateway

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/edgegate/pkg/apiresponse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "edgegate"

// Metrics はgatewayのPrometheusメトリクス。
// nilのMetricsに対する記録は何もしない。
type Metrics struct {
	// responses はステータスコードごとのレスポンス数。
	responses *prometheus.CounterVec
	// rejections はパイプラインで拒否したリクエスト数（エラーコードごと）。
	rejections *prometheus.CounterVec
	// upstreamDuration はルートごとのバックエンド呼び出し時間。
	upstreamDuration *prometheus.HistogramVec
}

// NewMetrics はメトリクスを生成し、regに登録する。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "responses_total",
			Help:      "Responses written by the gateway, by HTTP status code.",
		}, []string{"code"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "rejections_total",
			Help:      "Requests rejected by the gateway pipeline, by error code.",
		}, []string{"reason"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "upstream_duration_seconds",
			Help:      "Latency of forwarded backend calls, by route prefix and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "outcome"}),
	}
	reg.MustRegister(
		m.responses,
		m.rejections,
		m.upstreamDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Middleware はレスポンスのステータスコードを数えるミドルウェアを返す。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		m.responses.WithLabelValues(strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func (m *Metrics) reject(code apiresponse.Code) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) observeUpstream(route, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(route, outcome).Observe(d.Seconds())
}
