package geo

import "scouter/internal/model"

// Envelope：轴对齐包围盒；用于存储侧的快速相交过滤
type Envelope struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// EnvelopeOf：计算点集的包围盒；空输入返回零值
func EnvelopeOf(pts []model.LatLong) Envelope {
	if len(pts) == 0 {
		return Envelope{}
	}
	e := Envelope{MinLat: 90, MinLon: 180, MaxLat: -90, MaxLon: -180}
	for _, p := range pts {
		if p.Lon < e.MinLon {
			e.MinLon = p.Lon
		}
		if p.Lat < e.MinLat {
			e.MinLat = p.Lat
		}
		if p.Lon > e.MaxLon {
			e.MaxLon = p.Lon
		}
		if p.Lat > e.MaxLat {
			e.MaxLat = p.Lat
		}
	}
	return e
}

// Intersects：两包围盒是否相交（含边界相接）
func (e Envelope) Intersects(o Envelope) bool {
	return e.MaxLat >= o.MinLat && e.MinLat <= o.MaxLat && e.MaxLon >= o.MinLon && e.MinLon <= o.MaxLon
}
