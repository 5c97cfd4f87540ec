package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"

	"scouter/internal/logger"
)

// StoreStats：事件存储的连接池与数据量统计
type StoreStats interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

// QueueStats：消息队列积压与消费者数量
type QueueStats interface {
	QueueStats(ctx context.Context) (messages int, consumers int, err error)
}

// DropCounter：异步写出时因缓冲满丢弃的条数，RedisSink 满足该接口
type DropCounter interface {
	Dropped() int64
}

// Reporter：周期性采集存储与运行时指标并写入 Redis，供 /metrics 读取
type Reporter struct {
	rc       *redis.Client
	store    StoreStats
	queue    QueueStats
	dropped  DropCounter
	interval time.Duration
	started  time.Time
}

// NewReporter：store 与 queue 均可为 nil，对应部分不采集
func NewReporter(rc *redis.Client, store StoreStats, queue QueueStats, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Reporter{rc: rc, store: store, queue: queue, interval: interval, started: time.Now()}
}

// WatchDropped：把丢弃计数作为 metrics_dropped 写入运行时指标
func (r *Reporter) WatchDropped(d DropCounter) *Reporter {
	r.dropped = d
	return r
}

// Run：立即上报一次，其后按周期上报直到 ctx 结束
func (r *Reporter) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	r.report(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.report(ctx)
		}
	}
}

// Snapshot：采集一次，返回存储与运行时两组数值
func (r *Reporter) Snapshot(ctx context.Context) (storeVals, runtimeVals map[string]int64) {
	storeVals = map[string]int64{}
	if r.store != nil {
		s, err := r.store.Stats(ctx)
		if err != nil {
			logger.L().Warn("metrics_store_stats_error", "err", err)
		}
		for k, v := range s {
			storeVals[k] = v
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	runtimeVals = map[string]int64{
		"heap_alloc":     int64(ms.HeapAlloc),
		"heap_sys":       int64(ms.HeapSys),
		"stack_sys":      int64(ms.StackSys),
		"goroutines":     int64(runtime.NumGoroutine()),
		"uptime_seconds": int64(time.Since(r.started).Seconds()),
	}
	if r.queue != nil {
		msgs, consumers, err := r.queue.QueueStats(ctx)
		if err != nil {
			logger.L().Warn("metrics_queue_stats_error", "err", err)
		} else {
			runtimeVals["queue_messages"] = int64(msgs)
			runtimeVals["queue_consumers"] = int64(consumers)
		}
	}
	if r.dropped != nil {
		runtimeVals["metrics_dropped"] = r.dropped.Dropped()
	}
	return storeVals, runtimeVals
}

func (r *Reporter) report(ctx context.Context) {
	storeVals, runtimeVals := r.Snapshot(ctx)
	if r.rc == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if len(storeVals) > 0 {
		if err := r.rc.HSet(wctx, storeHash, toArgs(storeVals)).Err(); err != nil {
			logger.L().Warn("metrics_report_error", "hash", storeHash, "err", err)
		}
	}
	if err := r.rc.HSet(wctx, runtimeHash, toArgs(runtimeVals)).Err(); err != nil {
		logger.L().Warn("metrics_report_error", "hash", runtimeHash, "err", err)
	}
	logger.L().Debug("metrics_reported", "store_keys", len(storeVals), "runtime_keys", len(runtimeVals))
}

func toArgs(m map[string]int64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
