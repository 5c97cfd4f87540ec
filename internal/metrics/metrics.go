package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000}

var (
	QueryRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scouter_query_requests_total",
		Help: "Total number of /anomaly requests",
	})
	QueryResponsesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scouter_query_responses_total",
		Help: "Total /anomaly responses by status code",
	}, []string{"status"})
	QueryDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scouter_query_duration_ms",
		Help:    "Query request duration in milliseconds",
		Buckets: durationBuckets,
	})
	EmptyResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scouter_empty_results_total",
		Help: "Total number of successful queries with no matching events",
	})
	GeocodeRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scouter_geocode_requests_total",
		Help: "Total geocoder requests",
	}, []string{"provider"})
	GeocodeSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scouter_geocode_success_total",
		Help: "Total geocoder successes (including empty results)",
	}, []string{"provider"})
	GeocodeFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scouter_geocode_fail_total",
		Help: "Total geocoder failures by kind",
	}, []string{"provider", "kind"})
	GeocodeDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scouter_geocode_duration_ms",
		Help:    "Geocoder call duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"provider"})
	GeocodeCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scouter_geocode_cache_hits_total",
		Help: "Total geocode cache hits",
	})
	GeocodeCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scouter_geocode_cache_misses_total",
		Help: "Total geocode cache misses",
	})
	StoreWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scouter_store_writes_total",
		Help: "Total event writes by result",
	}, []string{"result"})
	StoreQueryDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scouter_store_query_duration_ms",
		Help:    "Event store query duration in milliseconds",
		Buckets: durationBuckets,
	})
	IngestMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scouter_ingest_messages_total",
		Help: "Total ingested raw events by result",
	}, []string{"result"})
	Measurement = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scouter_measurement",
		Help: "Last reported value of a named processing measurement",
	}, []string{"key"})
	MeasurementMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scouter_measurement_ms",
		Help:    "Distribution of named timing measurements in milliseconds",
		Buckets: durationBuckets,
	}, []string{"key"})
)

func init() {
	prometheus.MustRegister(QueryRequestsTotal)
	prometheus.MustRegister(QueryResponsesTotal)
	prometheus.MustRegister(QueryDurationMs)
	prometheus.MustRegister(EmptyResultsTotal)
	prometheus.MustRegister(GeocodeRequestsTotal)
	prometheus.MustRegister(GeocodeSuccessTotal)
	prometheus.MustRegister(GeocodeFailTotal)
	prometheus.MustRegister(GeocodeDurationMs)
	prometheus.MustRegister(GeocodeCacheHitsTotal)
	prometheus.MustRegister(GeocodeCacheMissesTotal)
	prometheus.MustRegister(StoreWritesTotal)
	prometheus.MustRegister(StoreQueryDurationMs)
	prometheus.MustRegister(IngestMessagesTotal)
	prometheus.MustRegister(Measurement)
	prometheus.MustRegister(MeasurementMs)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：/metrics 已用于返回最近一次指标值的 JSON，Prometheus 抓取路径挂在 /prometheus
func Handler() http.Handler { return promhttp.Handler() }
