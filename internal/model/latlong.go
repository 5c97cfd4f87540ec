// 包 model：事件、坐标与查询请求的核心数据结构；所有不变量在构造时校验，构造成功的值视为只读
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrValidation：数据不满足不变量（坐标越界、分值越界、多边形未闭合、空包围盒等）
var ErrValidation = errors.New("validation error")

// LatLong：WGS84 坐标对，按值比较
type LatLong struct {
	Lat float64
	Lon float64
}

// NewLatLong：构造并校验坐标；纬度 [-90,90]，经度 [-180,180]
func NewLatLong(lat, lon float64) (LatLong, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return LatLong{}, fmt.Errorf("%w: latitude %v not in [-90,90]", ErrValidation, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return LatLong{}, fmt.Errorf("%w: longitude %v not in [-180,180]", ErrValidation, lon)
	}
	return LatLong{Lat: lat, Lon: lon}, nil
}

func (p LatLong) validate() error {
	_, err := NewLatLong(p.Lat, p.Lon)
	return err
}

type latLongJSON struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (p LatLong) MarshalJSON() ([]byte, error) {
	return json.Marshal(latLongJSON{Latitude: &p.Lat, Longitude: &p.Lon})
}

// UnmarshalJSON：缺失字段与越界值均视为校验失败
func (p *LatLong) UnmarshalJSON(b []byte) error {
	var raw latLongJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return fmt.Errorf("%w: latitude and longitude are required", ErrValidation)
	}
	v, err := NewLatLong(*raw.Latitude, *raw.Longitude)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// BoundingBox：非空有序坐标序列；闭合性只在作为事件位置时检查
type BoundingBox struct {
	points []LatLong
}

// NewBoundingBox：至少一个点，且每个点都合法；入参被复制
func NewBoundingBox(points ...LatLong) (BoundingBox, error) {
	if len(points) == 0 {
		return BoundingBox{}, fmt.Errorf("%w: bounding box needs at least one point", ErrValidation)
	}
	for _, p := range points {
		if err := p.validate(); err != nil {
			return BoundingBox{}, err
		}
	}
	cp := make([]LatLong, len(points))
	copy(cp, points)
	return BoundingBox{points: cp}, nil
}

// Points：返回副本，调用方修改不影响原值
func (b BoundingBox) Points() []LatLong {
	cp := make([]LatLong, len(b.points))
	copy(cp, b.points)
	return cp
}

func (b BoundingBox) Len() int { return len(b.points) }

// IsZero：零值（未经构造）的包围盒
func (b BoundingBox) IsZero() bool { return len(b.points) == 0 }

// Closed：首尾点相同；单点视为闭合
func (b BoundingBox) Closed() bool {
	return closed(b.points)
}

func closed(pts []LatLong) bool {
	if len(pts) <= 1 {
		return true
	}
	return pts[0] == pts[len(pts)-1]
}

func (b BoundingBox) MarshalJSON() ([]byte, error) {
	if b.points == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b.points)
}

func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var pts []LatLong
	if err := json.Unmarshal(data, &pts); err != nil {
		return err
	}
	v, err := NewBoundingBox(pts...)
	if err != nil {
		return err
	}
	*b = v
	return nil
}
