package model

import (
	"fmt"
	"time"
)

// Request：一次查询的时间窗与空间范围，附带接收时间；全部字段必填
type Request struct {
	Start      time.Time
	End        time.Time
	BBox       BoundingBox
	ReceivedAt time.Time
}

// NewRequest：构造查询请求；零值时间与空包围盒视为非法
func NewRequest(start, end time.Time, bbox BoundingBox, receivedAt time.Time) (Request, error) {
	if start.IsZero() || end.IsZero() {
		return Request{}, fmt.Errorf("%w: request window requires start and end", ErrValidation)
	}
	if bbox.IsZero() {
		return Request{}, fmt.Errorf("%w: request requires a bounding box", ErrValidation)
	}
	if receivedAt.IsZero() {
		return Request{}, fmt.Errorf("%w: request requires a reception time", ErrValidation)
	}
	return Request{Start: start, End: end, BBox: bbox, ReceivedAt: receivedAt}, nil
}
