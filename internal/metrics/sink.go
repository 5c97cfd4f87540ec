// 包 metrics：Prometheus 指标注册、处理过程测量值的上报（Sink）与最近值读取
package metrics

import (
	"strings"
)

// 处理过程测量键
const (
	KeyScoredEvents      = "scored_events_count"
	KeyScoringTimePrefix = "scoring_time_"
	KeyStoredEvents      = "stored_events_count"
	KeyStoreWriteTime    = "store_write_time"
	KeyLastScoredSource  = "last_scored_source"
	KeyIngestRejected    = "ingest_rejected_count"

	processingHash = "metrics:processing"
	storeHash      = "metrics:store"
	runtimeHash    = "metrics:runtime"
)

// Sink：接收命名测量值；实现不得阻塞调用方，也不向调用方返回错误
type Sink interface {
	Log(key string, value int64)
	LogString(key, value string)
}

// Nop：丢弃全部测量值
type Nop struct{}

func (Nop) Log(string, int64)        {}
func (Nop) LogString(string, string) {}

// Multi：按顺序扇出到多个 Sink
type Multi []Sink

func (m Multi) Log(key string, value int64) {
	for _, s := range m {
		s.Log(key, value)
	}
}

func (m Multi) LogString(key, value string) {
	for _, s := range m {
		s.LogString(key, value)
	}
}

// PromSink：写入 scouter_measurement；计时类键（含 _time）同时进入直方图
type PromSink struct{}

func (PromSink) Log(key string, value int64) {
	Measurement.WithLabelValues(key).Set(float64(value))
	if strings.Contains(key, "_time") {
		MeasurementMs.WithLabelValues(key).Observe(float64(value))
	}
}

// LogString：字符串测量值没有数值语义，Prometheus 侧忽略
func (PromSink) LogString(string, string) {}
