// 包 scoring：根据主题短语与术语权重为事件打分
package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"scouter/internal/concept"
	"scouter/internal/metrics"
	"scouter/internal/model"
	"scouter/internal/phrase"
)

// Processor：评分策略；实现集合固定，由 Kind 在启动时选择
type Processor interface {
	Score(ctx context.Context, ev model.Event) (model.Event, error)
}

// Kind：已知的评分策略
type Kind string

const KindWeighted Kind = "weighted"

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindWeighted:
		return KindWeighted, nil
	default:
		return "", fmt.Errorf("unknown score processor %q", s)
	}
}

// Options：评分器依赖；Table 与 Phrases 必填
type Options struct {
	Table      *concept.Table
	Phrases    phrase.Source
	Max        int
	Categories Categories
	Sink       metrics.Sink
}

// New：按策略构建评分器
func New(kind Kind, opts Options) (Processor, error) {
	switch kind {
	case KindWeighted:
		return NewEventScorer(opts)
	default:
		return nil, fmt.Errorf("unknown score processor %q", kind)
	}
}

// EventScorer：对短语逐个查表累加权重，总分截断到配置上限
// 约束：权重表与短语来源在并发调用间共享且只读；评分结果是新事件，入参不被修改
type EventScorer struct {
	table      *concept.Table
	phrases    phrase.Source
	max        int
	categories Categories
	sink       metrics.Sink
	scored     atomic.Int64
}

func NewEventScorer(opts Options) (*EventScorer, error) {
	if opts.Table == nil {
		return nil, errors.New("scoring: weight table is required")
	}
	if opts.Phrases == nil {
		return nil, errors.New("scoring: phrase source is required")
	}
	if opts.Max < 0 || opts.Max > model.ScoreCeiling {
		return nil, fmt.Errorf("scoring: max score %d not in [0,%d]", opts.Max, model.ScoreCeiling)
	}
	if opts.Categories.bySrc == nil {
		opts.Categories = DefaultCategories()
	}
	if opts.Sink == nil {
		opts.Sink = metrics.Nop{}
	}
	return &EventScorer{
		table:      opts.Table,
		phrases:    opts.Phrases,
		max:        opts.Max,
		categories: opts.Categories,
		sink:       opts.Sink,
	}, nil
}

func (s *EventScorer) Score(ctx context.Context, ev model.Event) (model.Event, error) {
	return s.ScoreWith(ctx, ev, s.phrases)
}

// ScoreWith：使用指定短语来源评分；短语来源失败直接返回，不降级为 0 分
// 约束：只截断上限；负权重可使总分低于 0，此时返回校验错误
func (s *EventScorer) ScoreWith(ctx context.Context, ev model.Event, src phrase.Source) (model.Event, error) {
	t0 := time.Now()
	phrases, err := src.Phrases(ctx, ev.Description)
	if err != nil {
		return model.Event{}, fmt.Errorf("topic phrases: %w", err)
	}
	total := 0
	for _, p := range phrases {
		if w, ok := s.table.WeightOf(p); ok {
			total += w
		}
	}
	if total > s.max {
		total = s.max
	}
	out, err := ev.WithScore(total, phrases)
	if err != nil {
		return model.Event{}, err
	}
	n := s.scored.Add(1)
	s.sink.Log(metrics.KeyScoredEvents, n)
	s.sink.Log(metrics.KeyScoringTimePrefix+s.categories.Of(ev.Source), time.Since(t0).Milliseconds())
	s.sink.LogString(metrics.KeyLastScoredSource, ev.Source)
	return out, nil
}

// Scored：进程启动以来成功评分的事件数
func (s *EventScorer) Scored() int64 { return s.scored.Load() }
