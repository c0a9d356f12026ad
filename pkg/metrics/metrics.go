package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 邮件列表查询延迟（秒）
	ListQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maillist_query_duration_seconds",
			Help:    "Mailbox list query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"facet", "status"},
	)

	// 每页返回的行数
	ListRowsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maillist_rows_returned",
			Help:    "Number of rows returned per list page",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"facet"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// 访问控制缓存结果
	AccessCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_cache_total",
			Help: "Mailbox access cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss, error, bypass
	)

	// MQ 消息处理计数
	MQMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mq_messages_total",
			Help: "Total number of consumed MQ messages by outcome",
		},
		[]string{"routing_key", "outcome"}, // outcome: ack, requeue, drop
	)
)

// RecordListQuery 记录列表查询延迟
func RecordListQuery(facet, status string, duration time.Duration) {
	ListQueryDuration.WithLabelValues(facet, status).Observe(duration.Seconds())
}

// RecordRowsReturned 记录单页返回行数
func RecordRowsReturned(facet string, n int) {
	ListRowsReturned.WithLabelValues(facet).Observe(float64(n))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数；statement 只保留第一个关键字，避免标签基数爆炸
func IncrementSlowQuery(statement string) {
	SlowQueryCount.WithLabelValues(statement).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementAccessCache 增加访问缓存计数
func IncrementAccessCache(result string) {
	AccessCacheCount.WithLabelValues(result).Inc()
}

// IncrementMQMessage 增加 MQ 消息处理计数
func IncrementMQMessage(routingKey, outcome string) {
	MQMessageCount.WithLabelValues(routingKey, outcome).Inc()
}
