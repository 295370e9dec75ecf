// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordEnrollment(courseID string)
	RecordLessonCompleted(courseID string)
	RecordCourseCompleted(courseID string)
	RecordCertificateIssued(courseID string)
	RecordVerification(valid bool)
	RecordTranscriptFailure(reason string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	enrollments        prometheus.Counter
	lessonsCompleted   prometheus.Counter
	coursesCompleted   prometheus.Counter
	certificatesIssued prometheus.Counter
	verifications      *prometheus.CounterVec
	transcriptFail     *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	requestLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		enrollments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microcourse_enrollments_total",
			Help: "作成された受講の合計数",
		}),
		lessonsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microcourse_lessons_completed_total",
			Help: "レッスン完了操作の合計数",
		}),
		coursesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microcourse_courses_completed_total",
			Help: "進捗が100%に到達した受講の合計数",
		}),
		certificatesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microcourse_certificates_issued_total",
			Help: "新規発行された修了証の合計数",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microcourse_certificate_verifications_total",
			Help: "修了証検証の結果別件数",
		}, []string{"result"}),
		transcriptFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microcourse_transcript_failures_total",
			Help: "文字起こし生成失敗の理由別件数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microcourse_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "microcourse_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.enrollments,
		c.lessonsCompleted,
		c.coursesCompleted,
		c.certificatesIssued,
		c.verifications,
		c.transcriptFail,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordEnrollment は受講作成を記録する。
func (c *Collector) RecordEnrollment(courseID string) {
	c.enrollments.Inc()
}

// RecordLessonCompleted はレッスン完了を記録する。
func (c *Collector) RecordLessonCompleted(courseID string) {
	c.lessonsCompleted.Inc()
}

// RecordCourseCompleted はコース修了を記録する。
func (c *Collector) RecordCourseCompleted(courseID string) {
	c.coursesCompleted.Inc()
}

// RecordCertificateIssued は修了証の新規発行を記録する。
func (c *Collector) RecordCertificateIssued(courseID string) {
	c.certificatesIssued.Inc()
}

// RecordVerification は修了証検証の結果を記録する。
func (c *Collector) RecordVerification(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	c.verifications.WithLabelValues(result).Inc()
}

// RecordTranscriptFailure は文字起こし生成の失敗を記録する。
func (c *Collector) RecordTranscriptFailure(reason string) {
	c.transcriptFail.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやworkerで使用する。
type Nop struct{}

func (Nop) RecordEnrollment(string)            {}
func (Nop) RecordLessonCompleted(string)       {}
func (Nop) RecordCourseCompleted(string)       {}
func (Nop) RecordCertificateIssued(string)     {}
func (Nop) RecordVerification(bool)            {}
func (Nop) RecordTranscriptFailure(string)     {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
