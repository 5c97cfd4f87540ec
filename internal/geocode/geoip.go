package geocode

import (
	"context"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/oschwald/geoip2-golang"

	"scouter/internal/logger"
	"scouter/internal/metrics"
	"scouter/internal/model"
)

const providerGeoIP = "geoip"

// GeoIP：基于 GeoLite2 City 库的本地解析，只处理 IP 字面量
type GeoIP struct {
	db *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{db: db}, nil
}

func (g *GeoIP) Close() error { return g.db.Close() }

// Resolve：非 IP 文本视为无法解析；库内无位置的地址同样返回空结果
// 约束：包围盒为以精度半径为半边长的矩形
func (g *GeoIP) Resolve(_ context.Context, address string) (Result, error) {
	ip := net.ParseIP(strings.TrimSpace(address))
	if ip == nil {
		return Result{}, nil
	}
	t0 := time.Now()
	metrics.GeocodeRequestsTotal.WithLabelValues(providerGeoIP).Inc()
	rec, err := g.db.City(ip)
	if err != nil {
		metrics.GeocodeFailTotal.WithLabelValues(providerGeoIP, "malformed").Inc()
		logger.L().Error("geocode_geoip_error", "ip", ip.String(), "err", err)
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	metrics.GeocodeDurationMs.WithLabelValues(providerGeoIP).Observe(float64(time.Since(t0).Milliseconds()))
	metrics.GeocodeSuccessTotal.WithLabelValues(providerGeoIP).Inc()
	loc := rec.Location
	if loc.Latitude == 0 && loc.Longitude == 0 && loc.AccuracyRadius == 0 {
		return Result{}, nil
	}
	pt, err := model.NewLatLong(loc.Latitude, loc.Longitude)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	res := Result{Point: &pt}
	if loc.AccuracyRadius > 0 {
		res.BBox, err = radiusBox(pt, float64(loc.AccuracyRadius))
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	logger.L().Debug("geocode_resp", "provider", providerGeoIP, "ip", ip.String(), "radius_km", loc.AccuracyRadius)
	return res, nil
}

// radiusBox：km 换算为度，并截断到合法范围
func radiusBox(c model.LatLong, km float64) (*model.BoundingBox, error) {
	dLat := km / 111.0
	cos := math.Cos(c.Lat * math.Pi / 180)
	dLon := 180.0
	if cos > 1e-6 {
		dLon = math.Min(dLat/cos, 180)
	}
	return rectangle(
		math.Max(c.Lat-dLat, -90), math.Max(c.Lon-dLon, -180),
		math.Min(c.Lat+dLat, 90), math.Min(c.Lon+dLon, 180),
	)
}
