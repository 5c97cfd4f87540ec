package store

import (
	"encoding/json"
	"fmt"
	"time"

	"scouter/internal/geo"
	"scouter/internal/model"
)

// Document：事件的持久化形态
// 约束：start/end/location/sourceName 每次都由事件值重新生成，入库形态与事件进入内存的方式无关
type Document struct {
	ID                         string       `json:"id,omitempty"`
	Description                string       `json:"description"`
	Source                     string       `json:"source"`
	Score                      int8         `json:"score"`
	Start                      int64        `json:"start"`
	End                        int64        `json:"end"`
	Location                   geo.Geometry `json:"location"`
	LocationText               string       `json:"location_text"`
	SourceName                 string       `json:"sourceName"`
	SourceID                   int64        `json:"sourceId"`
	Verified                   bool         `json:"verified"`
	KeyTerms                   []string     `json:"keyterms"`
	IsMergedEvent              bool         `json:"isMergedEvent"`
	SentimentSense             string       `json:"sentimentSense"`
	SourceEventsCausingMerging *[]Document  `json:"sourceEventsCausingMerging,omitempty"`
}

// NewDocument：校验并编码事件；合并父事件总是附带来源事件列表，列表为空时写出 []
func NewDocument(ev model.Event, locationText string) (Document, error) {
	if err := ev.Validate(); err != nil {
		return Document{}, err
	}
	loc, err := geo.Encode(ev.Location)
	if err != nil {
		return Document{}, err
	}
	terms := ev.KeyTerms
	if terms == nil {
		terms = []string{}
	}
	d := Document{
		Description:    ev.Description,
		Source:         ev.Source,
		Score:          ev.Score,
		Start:          ev.Start.UnixMilli(),
		End:            ev.End.UnixMilli(),
		Location:       loc,
		LocationText:   locationText,
		SourceName:     ev.EntityName,
		SourceID:       ev.SourceID,
		Verified:       ev.Verified,
		KeyTerms:       terms,
		IsMergedEvent:  ev.Merged,
		SentimentSense: ev.Sentiment,
	}
	if ev.MergeParent {
		merged := make([]Document, 0, len(ev.MergedEvents))
		for i, m := range ev.MergedEvents {
			md, err := NewDocument(m, locationText)
			if err != nil {
				return Document{}, fmt.Errorf("merged event %d: %w", i, err)
			}
			merged = append(merged, md)
		}
		d.SourceEventsCausingMerging = &merged
	}
	return d, nil
}

// Event：文档还原为事件值；location_text 与 id 不属于事件本身
func (d Document) Event() (model.Event, error) {
	loc, err := geo.Decode(d.Location)
	if err != nil {
		return model.Event{}, err
	}
	ev := model.Event{
		Location:    loc,
		Start:       time.UnixMilli(d.Start).UTC(),
		End:         time.UnixMilli(d.End).UTC(),
		Description: d.Description,
		Source:      d.Source,
		Score:       d.Score,
		EntityName:  d.SourceName,
		SourceID:    d.SourceID,
		Verified:    d.Verified,
		KeyTerms:    d.KeyTerms,
		Merged:      d.IsMergedEvent,
		Sentiment:   d.SentimentSense,
	}
	if d.SourceEventsCausingMerging != nil {
		ev.MergeParent = true
		for _, m := range *d.SourceEventsCausingMerging {
			child, err := m.Event()
			if err != nil {
				return model.Event{}, err
			}
			ev.MergedEvents = append(ev.MergedEvents, child)
		}
	}
	return ev, nil
}

func (d Document) marshal() ([]byte, error) { return json.Marshal(d) }
