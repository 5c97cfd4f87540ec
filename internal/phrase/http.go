package phrase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scouter/internal/logger"
)

// HTTPSource：外部关键短语服务适配器
// 约定：POST {endpoint}/extract，请求体 {"text": "..."}，响应 {"phrases": ["..."]}；非 200 视为失败
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSource(endpoint string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPSource{endpoint: strings.TrimSuffix(endpoint, "/"), client: &http.Client{Timeout: timeout}}
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Phrases []string `json:"phrases"`
}

func (h *HTTPSource) Phrases(ctx context.Context, text string) ([]string, error) {
	body, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSource, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSource, err)
	}
	req.Header.Set("content-type", "application/json")
	t0 := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		logger.L().Error("phrase_http_error", "endpoint", h.endpoint, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrSource, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.L().Error("phrase_http_status", "endpoint", h.endpoint, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrSource, resp.StatusCode)
	}
	var r extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		logger.L().Error("phrase_decode_error", "endpoint", h.endpoint, "err", err)
		return nil, fmt.Errorf("%w: decode: %v", ErrSource, err)
	}
	logger.L().Debug("phrase_http_resp", "phrases", len(r.Phrases), "duration_ms", time.Since(t0).Milliseconds())
	if r.Phrases == nil {
		return []string{}, nil
	}
	return r.Phrases, nil
}
