package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"scouter/internal/logger"
	"scouter/internal/metrics"
	"scouter/internal/model"
	"scouter/internal/version"
)

// Submitter：原始事件的写入入口（消息队列发布或进程内流水线）
type Submitter interface {
	Submit(ctx context.Context, ev model.Event) error
}

// LastKnown：最近一次上报的测量值
type LastKnown interface {
	Last(ctx context.Context) map[string]any
}

// Deps：路由依赖；Events 为空时不注册 /events
type Deps struct {
	Base    string
	Gateway http.Handler
	Metrics LastKnown
	Events  Submitter
}

// BuildRoutes：注册全部路由；Base 非空时挂载在该前缀下
func BuildRoutes(d Deps) *mux.Router {
	root := mux.NewRouter()
	r := root
	if d.Base != "" {
		r = root.PathPrefix(d.Base).Subrouter()
	}
	r.Handle("/anomaly", d.Gateway).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Commit})
	}).Methods(http.MethodGet)
	r.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		if d.Metrics != nil {
			m = d.Metrics.Last(r.Context())
		}
		if m == nil {
			m = map[string]any{}
		}
		writeJSON(w, http.StatusOK, m)
	}).Methods(http.MethodGet)
	r.Handle("/prometheus", metrics.Handler()).Methods(http.MethodGet)
	if d.Events != nil {
		r.HandleFunc("/events", ingestHandler(d.Events)).Methods(http.MethodPost)
	}
	// 预检请求由 CORS 中间件应答；这里只保证路由能匹配到 OPTIONS
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return root
}

// ingestHandler：接受单个事件对象或事件数组；全部校验通过后才提交
func ingestHandler(sub Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		var evs []model.Event
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			err = json.Unmarshal(trimmed, &evs)
		} else {
			var ev model.Event
			err = json.Unmarshal(trimmed, &ev)
			evs = []model.Event{ev}
		}
		if err != nil {
			metrics.IngestMessagesTotal.WithLabelValues("invalid").Inc()
			logger.L().Info("ingest_decode_error", "request_id", logger.RequestID(r.Context()), "err", err)
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		for i, ev := range evs {
			if err := sub.Submit(r.Context(), ev); err != nil {
				logger.L().Error("ingest_submit_error", "request_id", logger.RequestID(r.Context()), "index", i, "err", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "accepted": i})
				return
			}
		}
		writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(evs)})
	}
}
