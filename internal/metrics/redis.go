package metrics

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"scouter/internal/logger"
)

type measurement struct {
	key   string
	value string
}

// RedisSink：把测量值的最近一次取值写入 Redis 哈希 metrics:processing
// 约束：Log 只做非阻塞入队；缓冲满时直接丢弃并计数，写 Redis 在后台单协程完成
type RedisSink struct {
	rc      *redis.Client
	ch      chan measurement
	stop    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
}

func NewRedisSink(rc *redis.Client, buffer int) *RedisSink {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &RedisSink{rc: rc, ch: make(chan measurement, buffer), stop: make(chan struct{}), done: make(chan struct{})}
	go s.run()
	return s
}

func (s *RedisSink) Log(key string, value int64) {
	s.enqueue(measurement{key: key, value: strconv.FormatInt(value, 10)})
}

func (s *RedisSink) LogString(key, value string) {
	s.enqueue(measurement{key: key, value: value})
}

func (s *RedisSink) enqueue(m measurement) {
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.ch <- m:
	default:
		s.dropped.Add(1)
	}
}

// Dropped：因缓冲满被丢弃的测量值数量
func (s *RedisSink) Dropped() int64 { return s.dropped.Load() }

func (s *RedisSink) run() {
	defer close(s.done)
	for {
		select {
		case m := <-s.ch:
			s.write(m)
		case <-s.stop:
			for {
				select {
				case m := <-s.ch:
					s.write(m)
				default:
					return
				}
			}
		}
	}
}

func (s *RedisSink) write(m measurement) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rc.HSet(ctx, processingHash, m.key, m.value).Err(); err != nil {
		logger.L().Warn("metrics_redis_error", "key", m.key, "err", err)
	}
}

// Close：停止接收并写完已入队的测量值
func (s *RedisSink) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

// Reader：读取处理、存储与运行时三类测量值的最近一次取值
type Reader struct {
	rc *redis.Client
}

func NewReader(rc *redis.Client) *Reader { return &Reader{rc: rc} }

// Last：Redis 未配置时返回空对象；单个哈希缺失或读取失败时该部分为空对象，错误只记日志
func (r *Reader) Last(ctx context.Context) map[string]any {
	out := map[string]any{}
	if r == nil || r.rc == nil {
		return out
	}
	sections := []struct{ name, hash string }{
		{"processing_metrics", processingHash},
		{"store_metrics", storeHash},
		{"runtime_metrics", runtimeHash},
	}
	for _, sec := range sections {
		vals, err := r.rc.HGetAll(ctx, sec.hash).Result()
		if err != nil {
			logger.L().Warn("metrics_read_error", "hash", sec.hash, "err", err)
			vals = nil
		}
		out[sec.name] = typed(vals)
	}
	return out
}

// typed：能解析为整数的值按数字返回，其余保持字符串
func typed(vals map[string]string) map[string]any {
	m := make(map[string]any, len(vals))
	for k, v := range vals {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			m[k] = n
			continue
		}
		m[k] = v
	}
	return m
}
