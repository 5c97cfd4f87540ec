package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"scouter/internal/logger"
	"scouter/internal/metrics"
)

// responder：每个请求恰好写出一次响应；重复写出只记日志
type responder struct {
	w       http.ResponseWriter
	r       *http.Request
	written bool
	status  int
}

func (rs *responder) json(status int, v any) {
	if rs.written {
		logger.L().Error("api_double_response", "request_id", logger.RequestID(rs.r.Context()), "status", status, "first_status", rs.status)
		return
	}
	rs.written = true
	rs.status = status
	writeJSON(rs.w, status, v)
}

func (rs *responder) fail(status int, msg string) {
	rs.json(status, errorBody{Error: msg})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func countResponse(status int) {
	metrics.QueryResponsesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}
