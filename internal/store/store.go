// 包 store：事件的持久化与按时间窗查询；底层为 PostgreSQL 或嵌入式 SQLite
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"scouter/internal/geo"
	"scouter/internal/logger"
	"scouter/internal/metrics"
	"scouter/internal/model"
)

var (
	// ErrPersist：事件无法序列化或写入失败；写入不重试
	ErrPersist = errors.New("persist error")
	// ErrQuery：读取失败，需要以显式错误响应调用方
	ErrQuery = errors.New("query error")
)

// DefaultLimit：单次查询返回的事件上限
const DefaultLimit = 50

// Options：存储行为参数
type Options struct {
	// LocationText：写入文档的 location_text（数据源所在地描述）
	LocationText string
	// GeoFilter：为 true 时查询按包围盒相交过滤；默认不过滤
	GeoFilter    bool
	WriteTimeout time.Duration
	Sink         metrics.Sink
}

// Store：数据库访问入口，持有连接池
type Store struct {
	db      *sqlx.DB
	opts    Options
	pending sync.WaitGroup
	stored  atomic.Int64
}

func Attach(db *sqlx.DB, opts Options) *Store {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Sink == nil {
		opts.Sink = metrics.Nop{}
	}
	return &Store{db: db, opts: opts}
}

// Close：等待已提交的写入结束后关闭连接
func (s *Store) Close() error {
	s.pending.Wait()
	return s.db.Close()
}

func (s *Store) DB() *sqlx.DB { return s.db }

// Wait：等待已提交的异步写入完成
func (s *Store) Wait() { s.pending.Wait() }

// Write：异步写入，调用方拿到只会产生一个结果的通道
// 约束：非法事件在任何 I/O 之前失败并被丢弃；成功与失败都不重试（至多一次）
func (s *Store) Write(ctx context.Context, ev model.Event) <-chan error {
	res := make(chan error, 1)
	doc, err := NewDocument(ev, s.opts.LocationText)
	var body []byte
	if err == nil {
		doc.ID = uuid.NewString()
		body, err = doc.marshal()
	}
	if err != nil {
		logger.L().Error("store_encode_error", "source", ev.Source, "err", err)
		metrics.StoreWritesTotal.WithLabelValues("invalid").Inc()
		res <- fmt.Errorf("%w: %w", ErrPersist, err)
		return res
	}
	env := geo.EnvelopeOf(ev.Location)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		t0 := time.Now()
		q := s.db.Rebind(`INSERT INTO events (id, source, score, start_ms, end_ms, min_lat, min_lon, max_lat, max_lon, doc, created_ms)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := s.db.ExecContext(wctx, q,
			doc.ID, doc.Source, int(doc.Score), doc.Start, doc.End,
			env.MinLat, env.MinLon, env.MaxLat, env.MaxLon, string(body), time.Now().UnixMilli(),
		)
		if err != nil {
			logger.L().Error("store_write_error", "id", doc.ID, "source", doc.Source, "err", err)
			metrics.StoreWritesTotal.WithLabelValues("error").Inc()
			res <- fmt.Errorf("%w: %w", ErrPersist, err)
			return
		}
		n := s.stored.Add(1)
		metrics.StoreWritesTotal.WithLabelValues("ok").Inc()
		s.opts.Sink.Log(metrics.KeyStoredEvents, n)
		s.opts.Sink.Log(metrics.KeyStoreWriteTime, time.Since(t0).Milliseconds())
		logger.L().Debug("store_write_ok", "id", doc.ID, "score", doc.Score)
		res <- nil
	}()
	return res
}

// Window：查询时间窗
type Window struct {
	Start time.Time
	End   time.Time
}

// Record：查询命中的一条事件，Doc 为入库文档原文
type Record struct {
	ID    string
	Event model.Event
	Doc   json.RawMessage
}

type row struct {
	ID  string `db:"id"`
	Doc string `db:"doc"`
}

// Query：返回事件时间段完全落在窗口内的事件（start >= 窗口起点且 end <= 窗口终点），至多 limit 条
// 约束：包围盒只在 GeoFilter 开启时参与过滤（包围盒相交，在 LIMIT 之前生效）；无命中返回空切片而非错误
func (s *Store) Query(ctx context.Context, w Window, bbox model.BoundingBox, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	t0 := time.Now()
	q := `SELECT id, doc FROM events WHERE end_ms <= ? AND start_ms >= ?`
	args := []any{w.End.UnixMilli(), w.Start.UnixMilli()}
	if s.opts.GeoFilter && !bbox.IsZero() {
		e := geo.EnvelopeOf(bbox.Points())
		q += ` AND max_lat >= ? AND min_lat <= ? AND max_lon >= ? AND min_lon <= ?`
		args = append(args, e.MinLat, e.MaxLat, e.MinLon, e.MaxLon)
	}
	q += ` ORDER BY start_ms, id LIMIT ?`
	args = append(args, limit)

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		logger.L().Error("store_query_error", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		var d Document
		if err := json.Unmarshal([]byte(r.Doc), &d); err != nil {
			logger.L().Error("store_decode_error", "id", r.ID, "err", err)
			return nil, fmt.Errorf("%w: decode %s: %w", ErrQuery, r.ID, err)
		}
		ev, err := d.Event()
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %w", ErrQuery, r.ID, err)
		}
		out = append(out, Record{ID: r.ID, Event: ev, Doc: json.RawMessage(r.Doc)})
	}
	dur := time.Since(t0).Milliseconds()
	metrics.StoreQueryDurationMs.Observe(float64(dur))
	logger.L().Debug("store_query_done", "rows", len(out), "limit", limit, "geo_filter", s.opts.GeoFilter, "duration_ms", dur)
	return out, nil
}

// Stats：连接池状态与已入库事件数，供指标上报
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	st := s.db.Stats()
	out := map[string]int64{
		"open_connections": int64(st.OpenConnections),
		"in_use":           int64(st.InUse),
		"idle":             int64(st.Idle),
		"wait_count":       st.WaitCount,
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM events`); err != nil {
		return out, err
	}
	out["events"] = n
	return out, nil
}
