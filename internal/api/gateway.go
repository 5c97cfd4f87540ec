// 包 api：HTTP 路由与查询网关
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scouter/internal/geocode"
	"scouter/internal/logger"
	"scouter/internal/metrics"
	"scouter/internal/model"
	"scouter/internal/store"
)

// Querier：事件库读路径
type Querier interface {
	Query(ctx context.Context, w store.Window, bbox model.BoundingBox, limit int) ([]store.Record, error)
}

// GatewayOptions：超时均为单次外部调用的上限
type GatewayOptions struct {
	Limit          int
	GeocodeTimeout time.Duration
	StoreTimeout   time.Duration
}

// Gateway：查询网关，按 解码 -> 地理编码 -> 构造请求 -> 查询 -> 响应 的顺序处理
// 约束：解析器与事件库在请求间共享且只读；Request 与结果只属于当前请求
type Gateway struct {
	resolver geocode.Resolver
	events   Querier
	opts     GatewayOptions
	now      func() time.Time
}

func NewGateway(resolver geocode.Resolver, events Querier, opts GatewayOptions) *Gateway {
	if opts.Limit <= 0 {
		opts.Limit = store.DefaultLimit
	}
	if opts.GeocodeTimeout <= 0 {
		opts.GeocodeTimeout = 4 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Gateway{resolver: resolver, events: events, opts: opts, now: time.Now}
}

// queryInput：start/end 为毫秒时间戳
type queryInput struct {
	Start   *int64 `json:"start"`
	End     *int64 `json:"end"`
	Address string `json:"address"`
}

// Response：成功查询的结果；Request 为本次查询实际使用的过滤条件
type Response struct {
	Request model.Request
	Records []store.Record
}

func (r Response) body() map[string][]json.RawMessage {
	evs := make([]json.RawMessage, 0, len(r.Records))
	for _, rec := range r.Records {
		evs = append(evs, rec.Doc)
	}
	return map[string][]json.RawMessage{"events": evs}
}

var errInvalidAddress = errors.New("invalid address")

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t0 := time.Now()
	metrics.QueryRequestsTotal.Inc()
	rs := &responder{w: w, r: r}
	defer func() {
		countResponse(rs.status)
		metrics.QueryDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	}()
	reqID := logger.RequestID(r.Context())

	in, err := decodeQuery(r)
	if err != nil {
		logger.L().Info("query_decode_error", "request_id", reqID, "ip", visitorIP(r), "err", err)
		rs.fail(http.StatusBadRequest, err.Error())
		return
	}
	resp, err := g.Run(r.Context(), in)
	if err != nil {
		status := statusOf(err)
		lvl := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			lvl = slog.LevelError
		}
		logger.L().Log(r.Context(), lvl, "query_failed", "request_id", reqID, "status", status, "address", in.Address, "err", err)
		msg := err.Error()
		if errors.Is(err, errInvalidAddress) {
			msg = "Invalid address"
		}
		rs.fail(status, msg)
		return
	}
	if len(resp.Records) == 0 {
		metrics.EmptyResultsTotal.Inc()
	}
	logger.L().Debug("query_ok", "request_id", reqID, "events", len(resp.Records), "duration_ms", time.Since(t0).Milliseconds())
	rs.json(http.StatusOK, resp.body())
}

// Run：解码之后的流水线；地址无法解析时不访问事件库
func (g *Gateway) Run(ctx context.Context, in queryInput) (Response, error) {
	received := g.now()
	gctx, cancel := context.WithTimeout(ctx, g.opts.GeocodeTimeout)
	res, err := g.resolver.Resolve(gctx, in.Address)
	cancel()
	if err != nil {
		return Response{}, fmt.Errorf("geocode: %w", err)
	}
	if !res.Found() {
		return Response{}, errInvalidAddress
	}
	bbox := res.BBox
	if bbox == nil {
		// 上游未给出范围时退化为单点
		b, err := model.NewBoundingBox(*res.Point)
		if err != nil {
			return Response{}, err
		}
		bbox = &b
	}
	req, err := model.NewRequest(time.UnixMilli(*in.Start), time.UnixMilli(*in.End), *bbox, received)
	if err != nil {
		return Response{}, err
	}

	recs, err := g.await(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return Response{Request: req, Records: recs}, nil
}

type queryResult struct {
	recs []store.Record
	err  error
}

// await：查询在独立 goroutine 中执行，带超时等待唯一的结果
func (g *Gateway) await(ctx context.Context, req model.Request) ([]store.Record, error) {
	qctx, cancel := context.WithTimeout(ctx, g.opts.StoreTimeout)
	defer cancel()
	done := make(chan queryResult, 1)
	go func() {
		recs, err := g.events.Query(qctx, store.Window{Start: req.Start, End: req.End}, req.BBox, g.opts.Limit)
		done <- queryResult{recs: recs, err: err}
	}()
	select {
	case out := <-done:
		return out.recs, out.err
	case <-qctx.Done():
		return nil, fmt.Errorf("%w: %w", store.ErrQuery, qctx.Err())
	}
}

// decodeQuery：POST 读取 JSON 请求体；GET 优先请求体，为空时读取查询参数
func decodeQuery(r *http.Request) (queryInput, error) {
	var in queryInput
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return in, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			return in, fmt.Errorf("malformed request body: %w", err)
		}
	} else if r.Method == http.MethodGet {
		q := r.URL.Query()
		in.Address = q.Get("address")
		if in.Start, err = msParam(q.Get("start")); err != nil {
			return in, err
		}
		if in.End, err = msParam(q.Get("end")); err != nil {
			return in, err
		}
	} else {
		return in, errors.New("empty request body")
	}
	if in.Start == nil || in.End == nil {
		return in, errors.New("start and end are required")
	}
	in.Address = strings.TrimSpace(in.Address)
	return in, nil
}

func msParam(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q", s)
	}
	return &n, nil
}

// statusOf：错误分类到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errInvalidAddress), errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, geocode.ErrTransient), errors.Is(err, geocode.ErrMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
