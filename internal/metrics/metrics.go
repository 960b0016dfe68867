// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベル
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// 整合性違反の種別ラベル
const (
	ViolationMissingAuthor    = "missing_author"
	ViolationDuplicatedAuthor = "duplicated_author"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordSignup()
	RecordLogin(result string)
	RecordPostCreated()
	RecordPostUpdated()
	RecordPostDeleted()
	RecordComment()
	RecordResetMail(result string)
	RecordIntegrityViolation(kind string)
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signups      prometheus.Counter
	logins       *prometheus.CounterVec
	postsCreated prometheus.Counter
	postsUpdated prometheus.Counter
	postsDeleted prometheus.Counter
	comments     prometheus.Counter
	resetMails   *prometheus.CounterVec
	violations   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogman_signups_total",
			Help: "ユーザー登録の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogman_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		postsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogman_posts_created_total",
			Help: "作成された記事の合計数",
		}),
		postsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogman_posts_updated_total",
			Help: "更新された記事の合計数",
		}),
		postsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogman_posts_deleted_total",
			Help: "削除された記事の合計数",
		}),
		comments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogman_comments_total",
			Help: "投稿されたコメントの合計数",
		}),
		resetMails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogman_reset_mails_total",
			Help: "結果別のパスワードリセットメール送信数",
		}, []string{"result"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogman_integrity_violations_total",
			Help: "種別ごとのデータ整合性違反の検出数",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogman_http_requests_total",
			Help: "メソッド・ルート・ステータスコード別のリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blogman_http_request_duration_seconds",
			Help:    "リクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.signups,
		c.logins,
		c.postsCreated,
		c.postsUpdated,
		c.postsDeleted,
		c.comments,
		c.resetMails,
		c.violations,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordSignup はユーザー登録を記録する。
func (c *Collector) RecordSignup() {
	c.signups.Inc()
}

// RecordLogin はログイン試行を結果別に記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordPostCreated は記事作成を記録する。
func (c *Collector) RecordPostCreated() {
	c.postsCreated.Inc()
}

// RecordPostUpdated は記事更新を記録する。
func (c *Collector) RecordPostUpdated() {
	c.postsUpdated.Inc()
}

// RecordPostDeleted は記事削除を記録する。
func (c *Collector) RecordPostDeleted() {
	c.postsDeleted.Inc()
}

// RecordComment はコメント投稿を記録する。
func (c *Collector) RecordComment() {
	c.comments.Inc()
}

// RecordResetMail はリセットメール送信を結果別に記録する。
func (c *Collector) RecordResetMail(result string) {
	c.resetMails.WithLabelValues(result).Inc()
}

// RecordIntegrityViolation はデータ整合性違反を種別ごとに記録する。
func (c *Collector) RecordIntegrityViolation(kind string) {
	c.violations.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest はHTTPリクエストのステータスと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewHTTPMiddleware はリクエストごとにステータスと処理時間を記録するミドルウェアを返す。
// ルートラベルにはchiのルートパターンを使い、ラベルの種類数を抑える。
func NewHTTPMiddleware(collector MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			collector.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
		})
	}
}

// routePattern はchiがマッチしたルートパターンを返す。マッチしなかった場合は"unmatched"。
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
