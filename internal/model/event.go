package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// ScoreUnscored：生产方创建、尚未评分的事件
	ScoreUnscored int8 = -1
	// ScoreCeiling：评分值域上限，配置的最大分不得超过该值
	ScoreCeiling = 100
)

// Event：一条带位置、时间窗与文本的事件记录
// 约束：位置非空；多点位置必须闭合；来源非空；已评分时分值在 [0,100]
// 约束：切片字段由构造函数复制，值在构造后按只读使用；需要新分值时用 WithScore 生成新值
type Event struct {
	Location    []LatLong
	Start       time.Time
	End         time.Time
	Description string
	Source      string
	Score       int8

	EntityName string
	SourceID   int64
	Verified   bool
	KeyTerms   []string
	// Merged：该事件由多条来源事件合并而成
	Merged bool
	// MergeParent：合并中的父事件，MergedEvents 列出参与合并的来源事件
	MergeParent  bool
	MergedEvents []Event
	Sentiment    string
}

// NewEvent：构造未评分事件并校验不变量
func NewEvent(location []LatLong, start, end time.Time, description, source string) (Event, error) {
	ev := Event{
		Location:    append([]LatLong(nil), location...),
		Start:       start,
		End:         end,
		Description: description,
		Source:      source,
		Score:       ScoreUnscored,
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate：检查事件不变量，合并来源事件递归检查
func (e Event) Validate() error {
	if len(e.Location) == 0 {
		return fmt.Errorf("%w: event location is empty", ErrValidation)
	}
	for _, p := range e.Location {
		if err := p.validate(); err != nil {
			return err
		}
	}
	if !closed(e.Location) {
		return fmt.Errorf("%w: event polygon is not closed (first %v, last %v)", ErrValidation, e.Location[0], e.Location[len(e.Location)-1])
	}
	if strings.TrimSpace(e.Source) == "" {
		return fmt.Errorf("%w: event source is empty", ErrValidation)
	}
	if e.Score != ScoreUnscored && (e.Score < 0 || e.Score > ScoreCeiling) {
		return fmt.Errorf("%w: score %d not in [0,%d]", ErrValidation, e.Score, ScoreCeiling)
	}
	for i, m := range e.MergedEvents {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("merged event %d: %w", i, err)
		}
	}
	return nil
}

func (e Event) Scored() bool { return e.Score != ScoreUnscored }

// Clone：深复制切片字段
func (e Event) Clone() Event {
	out := e
	out.Location = append([]LatLong(nil), e.Location...)
	if e.KeyTerms != nil {
		out.KeyTerms = append([]string(nil), e.KeyTerms...)
	}
	if e.MergedEvents != nil {
		out.MergedEvents = make([]Event, len(e.MergedEvents))
		for i, m := range e.MergedEvents {
			out.MergedEvents[i] = m.Clone()
		}
	}
	return out
}

// WithScore：返回携带分值与关键词的新事件，原值不变
func (e Event) WithScore(score int, keyTerms []string) (Event, error) {
	if score < 0 || score > ScoreCeiling {
		return Event{}, fmt.Errorf("%w: score %d not in [0,%d]", ErrValidation, score, ScoreCeiling)
	}
	out := e.Clone()
	out.Score = int8(score)
	out.KeyTerms = append([]string{}, keyTerms...)
	return out, nil
}

// eventJSON：生产方投递事件的线格式；时间为毫秒时间戳
type eventJSON struct {
	Location     []LatLong   `json:"location"`
	Start        *int64      `json:"start"`
	End          *int64      `json:"end"`
	Description  string      `json:"description"`
	Source       string      `json:"source"`
	Score        *int8       `json:"score,omitempty"`
	EntityName   string      `json:"entityName,omitempty"`
	SourceID     int64       `json:"sourceId,omitempty"`
	Verified     bool        `json:"verified,omitempty"`
	KeyTerms     []string    `json:"eventsKeyTerms,omitempty"`
	Merged       bool        `json:"mergedEvent,omitempty"`
	MergeParent  bool        `json:"parentEventWhenMerging,omitempty"`
	MergedEvents []eventJSON `json:"eventsMerged,omitempty"`
	Sentiment    string      `json:"sentimentSense,omitempty"`
}

func (e Event) toJSON() eventJSON {
	start, end := e.Start.UnixMilli(), e.End.UnixMilli()
	score := e.Score
	out := eventJSON{
		Location:    e.Location,
		Start:       &start,
		End:         &end,
		Description: e.Description,
		Source:      e.Source,
		Score:       &score,
		EntityName:  e.EntityName,
		SourceID:    e.SourceID,
		Verified:    e.Verified,
		KeyTerms:    e.KeyTerms,
		Merged:      e.Merged,
		MergeParent: e.MergeParent,
		Sentiment:   e.Sentiment,
	}
	for _, m := range e.MergedEvents {
		out.MergedEvents = append(out.MergedEvents, m.toJSON())
	}
	return out
}

func (raw eventJSON) toEvent() (Event, error) {
	if raw.Start == nil || raw.End == nil {
		return Event{}, fmt.Errorf("%w: start and end are required", ErrValidation)
	}
	ev := Event{
		Location:    raw.Location,
		Start:       time.UnixMilli(*raw.Start).UTC(),
		End:         time.UnixMilli(*raw.End).UTC(),
		Description: raw.Description,
		Source:      raw.Source,
		Score:       ScoreUnscored,
		EntityName:  raw.EntityName,
		SourceID:    raw.SourceID,
		Verified:    raw.Verified,
		KeyTerms:    raw.KeyTerms,
		Merged:      raw.Merged,
		MergeParent: raw.MergeParent,
		Sentiment:   raw.Sentiment,
	}
	if raw.Score != nil {
		ev.Score = *raw.Score
	}
	for _, m := range raw.MergedEvents {
		child, err := m.toEvent()
		if err != nil {
			return Event{}, err
		}
		ev.MergedEvents = append(ev.MergedEvents, child)
	}
	return ev, nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toJSON())
}

// UnmarshalJSON：解码后立即校验，非法事件不会以值的形式流出
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ev, err := raw.toEvent()
	if err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	*e = ev
	return nil
}
