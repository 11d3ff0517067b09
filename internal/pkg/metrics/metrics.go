package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 指标在包加载时创建，InitMetrics 负责注册到默认 Registry。
// 这样测试代码无需注册也能安全地对计数器打点。
var (
	// HTTPRequestsTotal 按方法/路径/状态码统计的请求总数。
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qaboard_http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		},
		[]string{"method", "path", "status"},
	)

	// AnswerAcceptedTotal 采纳回答的累计次数。
	AnswerAcceptedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qaboard_answer_accepted_total",
		Help: "Total accepted answers.",
	})

	// QuestionCascadeDeletedTotal 级联删除提问的累计次数。
	QuestionCascadeDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qaboard_question_cascade_deleted_total",
		Help: "Total questions deleted together with their answers.",
	})

	// LoginFailureTotal 登录失败（凭证错误）累计次数。
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qaboard_login_failure_total",
		Help: "Total failed login attempts.",
	})

	// RateLimitWaitDuration 限流等待时长分布。
	RateLimitWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qaboard_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a rate limit token.",
		Buckets: prometheus.DefBuckets,
	})

	// RateLimitTimeoutTotal 限流等待超时累计次数。
	RateLimitTimeoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qaboard_ratelimit_timeout_total",
		Help: "Total rate limit acquisitions abandoned on timeout.",
	})
)

var registerOnce sync.Once

// InitMetrics 将全部指标注册到默认 Registry，可重复调用。
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			AnswerAcceptedTotal,
			QuestionCascadeDeletedTotal,
			LoginFailureTotal,
			RateLimitWaitDuration,
			RateLimitTimeoutTotal,
		)
	})
}
