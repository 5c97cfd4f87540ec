// 包 geocode：地址到坐标与包围盒的解析；Photon 为默认提供方，IP 字面量可走本地 GeoLite2 库
package geocode

import (
	"context"
	"errors"

	"scouter/internal/model"
)

var (
	// ErrTransient：网络错误、超时或上游 5xx/429；不在内部重试
	ErrTransient = errors.New("geocoder unavailable")
	// ErrMalformed：上游响应无法解析或坐标不合法
	ErrMalformed = errors.New("geocoder malformed response")
)

// Result：Point 为空表示地址无法解析；BBox 为空表示上游未给出范围
type Result struct {
	Point *model.LatLong
	BBox  *model.BoundingBox
}

// Found：是否解析出坐标
func (r Result) Found() bool { return r.Point != nil }

// Resolver：地址解析协作方；实现需可并发调用
type Resolver interface {
	Resolve(ctx context.Context, address string) (Result, error)
}

// ResolverFunc：函数适配为 Resolver，测试中常用
type ResolverFunc func(ctx context.Context, address string) (Result, error)

func (f ResolverFunc) Resolve(ctx context.Context, address string) (Result, error) {
	return f(ctx, address)
}

// rectangle：由经纬度范围生成 5 点闭合矩形，顶点顺序固定
func rectangle(latMin, lonMin, latMax, lonMax float64) (*model.BoundingBox, error) {
	if latMin > latMax {
		latMin, latMax = latMax, latMin
	}
	if lonMin > lonMax {
		lonMin, lonMax = lonMax, lonMin
	}
	bb, err := model.NewBoundingBox(
		model.LatLong{Lat: latMin, Lon: lonMin},
		model.LatLong{Lat: latMax, Lon: lonMin},
		model.LatLong{Lat: latMax, Lon: lonMax},
		model.LatLong{Lat: latMin, Lon: lonMax},
		model.LatLong{Lat: latMin, Lon: lonMin},
	)
	if err != nil {
		return nil, err
	}
	return &bb, nil
}
