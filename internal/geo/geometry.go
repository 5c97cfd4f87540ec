// 包 geo：事件位置与存储几何之间的编解码，以及包围盒（envelope）运算
// 约束：几何仅支持 GeoJSON 的 Point/Polygon；坐标顺序为 [lon, lat]；多边形只使用外环
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"scouter/internal/model"
)

const (
	TypePoint   = "Point"
	TypePolygon = "Polygon"
)

// ErrEmptyLocation：待编码的位置列表为空
var ErrEmptyLocation = errors.New("geo: empty location")

// Position：GeoJSON 坐标 [lon, lat]
type Position [2]float64

// Geometry：存储侧几何；Point 使用 Coordinates[0]，Polygon 以 Coordinates 作为外环
type Geometry struct {
	Type        string
	Coordinates []Position
}

// Encode：单点编码为 Point，多点按原顺序编码为 Polygon
// 约束：不检查多边形是否简单（自交）
func Encode(location []model.LatLong) (Geometry, error) {
	if len(location) == 0 {
		return Geometry{}, ErrEmptyLocation
	}
	coords := make([]Position, len(location))
	for i, p := range location {
		coords[i] = Position{p.Lon, p.Lat}
	}
	if len(location) == 1 {
		return Geometry{Type: TypePoint, Coordinates: coords}, nil
	}
	return Geometry{Type: TypePolygon, Coordinates: coords}, nil
}

// Decode：Encode 的逆运算；坐标越界时返回校验错误
func Decode(g Geometry) ([]model.LatLong, error) {
	switch g.Type {
	case TypePoint:
		if len(g.Coordinates) != 1 {
			return nil, fmt.Errorf("geo: point with %d positions", len(g.Coordinates))
		}
	case TypePolygon:
		if len(g.Coordinates) == 0 {
			return nil, fmt.Errorf("geo: polygon without positions")
		}
	default:
		return nil, fmt.Errorf("geo: unsupported geometry type %q", g.Type)
	}
	out := make([]model.LatLong, len(g.Coordinates))
	for i, c := range g.Coordinates {
		p, err := model.NewLatLong(c[1], c[0])
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

type geoJSONPoint struct {
	Type        string   `json:"type"`
	Coordinates Position `json:"coordinates"`
}

type geoJSONPolygon struct {
	Type        string       `json:"type"`
	Coordinates [][]Position `json:"coordinates"`
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	switch g.Type {
	case TypePoint:
		if len(g.Coordinates) == 0 {
			return nil, ErrEmptyLocation
		}
		return json.Marshal(geoJSONPoint{Type: TypePoint, Coordinates: g.Coordinates[0]})
	case TypePolygon:
		return json.Marshal(geoJSONPolygon{Type: TypePolygon, Coordinates: [][]Position{g.Coordinates}})
	}
	return nil, fmt.Errorf("geo: unsupported geometry type %q", g.Type)
}

func (g *Geometry) UnmarshalJSON(b []byte) error {
	var head struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	switch head.Type {
	case TypePoint:
		var p Position
		if err := json.Unmarshal(head.Coordinates, &p); err != nil {
			return err
		}
		*g = Geometry{Type: TypePoint, Coordinates: []Position{p}}
	case TypePolygon:
		var rings [][]Position
		if err := json.Unmarshal(head.Coordinates, &rings); err != nil {
			return err
		}
		if len(rings) == 0 {
			return fmt.Errorf("geo: polygon without rings")
		}
		*g = Geometry{Type: TypePolygon, Coordinates: rings[0]}
	default:
		return fmt.Errorf("geo: unsupported geometry type %q", head.Type)
	}
	return nil
}
