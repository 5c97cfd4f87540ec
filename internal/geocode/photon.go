package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scouter/internal/logger"
	"scouter/internal/metrics"
	"scouter/internal/model"
)

// DefaultPhotonURL：查询串末尾拼接转义后的地址
const DefaultPhotonURL = "http://photon.komoot.de/api/?osm_tag=place&lang=fr&limit=1&q="

const providerPhoton = "photon"

// Photon：Photon（OSM）地理编码客户端
// 约束：只取第一个要素；extent 缺失时 BBox 为空，由调用方决定如何兜底
type Photon struct {
	base   string
	client *http.Client
}

// NewPhoton：base 为空使用默认地址；timeout<=0 时为 4s
func NewPhoton(base string, timeout time.Duration) *Photon {
	if base == "" {
		base = DefaultPhotonURL
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Photon{base: base, client: &http.Client{Timeout: timeout}}
}

type photonResponse struct {
	Features []photonFeature `json:"features"`
}

type photonFeature struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		Extent []float64 `json:"extent"`
	} `json:"properties"`
}

func (p *Photon) Resolve(ctx context.Context, address string) (Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Result{}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+url.QueryEscape(address), nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	t0 := time.Now()
	metrics.GeocodeRequestsTotal.WithLabelValues(providerPhoton).Inc()
	logger.L().Debug("geocode_req", "provider", providerPhoton, "address", address)
	resp, err := p.client.Do(req)
	if err != nil {
		logger.L().Error("geocode_http_error", "provider", providerPhoton, "err", err)
		metrics.GeocodeFailTotal.WithLabelValues(providerPhoton, "transient").Inc()
		return Result{}, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.GeocodeFailTotal.WithLabelValues(providerPhoton, "transient").Inc()
		logger.L().Warn("geocode_upstream_status", "provider", providerPhoton, "status", resp.StatusCode)
		return Result{}, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.GeocodeFailTotal.WithLabelValues(providerPhoton, "malformed").Inc()
		logger.L().Warn("geocode_upstream_status", "provider", providerPhoton, "status", resp.StatusCode)
		return Result{}, fmt.Errorf("%w: status %d", ErrMalformed, resp.StatusCode)
	}
	var r photonResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		logger.L().Error("geocode_decode_error", "provider", providerPhoton, "err", err)
		metrics.GeocodeFailTotal.WithLabelValues(providerPhoton, "malformed").Inc()
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	dur := time.Since(t0).Milliseconds()
	metrics.GeocodeDurationMs.WithLabelValues(providerPhoton).Observe(float64(dur))
	res, err := r.result()
	if err != nil {
		logger.L().Error("geocode_decode_error", "provider", providerPhoton, "err", err)
		metrics.GeocodeFailTotal.WithLabelValues(providerPhoton, "malformed").Inc()
		return Result{}, err
	}
	metrics.GeocodeSuccessTotal.WithLabelValues(providerPhoton).Inc()
	logger.L().Debug("geocode_resp", "provider", providerPhoton, "address", address, "found", res.Found(), "has_bbox", res.BBox != nil, "duration_ms", dur)
	return res, nil
}

// result：第一个要素转换为 Result；无要素表示地址无法解析
func (r photonResponse) result() (Result, error) {
	if len(r.Features) == 0 {
		return Result{}, nil
	}
	f := r.Features[0]
	c := f.Geometry.Coordinates
	if len(c) < 2 {
		return Result{}, fmt.Errorf("%w: feature without coordinates", ErrMalformed)
	}
	pt, err := model.NewLatLong(c[1], c[0])
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	res := Result{Point: &pt}
	switch len(f.Properties.Extent) {
	case 0:
	case 4:
		e := f.Properties.Extent
		// extent 顺序为 [lon, lat, lon, lat]，纬度通常北在前
		bb, err := rectangle(e[1], e[0], e[3], e[2])
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		res.BBox = bb
	default:
		return Result{}, fmt.Errorf("%w: extent has %d values", ErrMalformed, len(f.Properties.Extent))
	}
	return res, nil
}
