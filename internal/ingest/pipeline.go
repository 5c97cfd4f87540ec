// 包 ingest：写路径驱动；原始事件经评分后异步入库，来源为消息队列或 HTTP 接口
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"scouter/internal/logger"
	"scouter/internal/metrics"
	"scouter/internal/model"
)

var (
	// ErrDuplicate：去重窗口内已见过相同事件
	ErrDuplicate = errors.New("duplicate event")
	// ErrClosed：流水线已关闭，不再接收事件
	ErrClosed = errors.New("pipeline closed")
)

// Scorer：评分协作方，scoring.Processor 满足该接口
type Scorer interface {
	Score(ctx context.Context, ev model.Event) (model.Event, error)
}

// Writer：异步写入协作方，返回的通道恰好产生一个结果
type Writer interface {
	Write(ctx context.Context, ev model.Event) <-chan error
}

// Pipeline：校验 -> 去重 -> 评分 -> 写入；写入结果只用于计数与日志
type Pipeline struct {
	scorer  Scorer
	writer  Writer
	dedup   *Dedup
	sink    metrics.Sink
	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup // 进行中的 Handle 与未返回的写入
}

func NewPipeline(s Scorer, w Writer, dedup *Dedup, sink metrics.Sink) *Pipeline {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Pipeline{scorer: s, writer: w, dedup: dedup, sink: sink}
}

// Handle：评分失败直接返回；写入不等待，失败只记录；Close 之后返回 ErrClosed
func (p *Pipeline) Handle(ctx context.Context, ev model.Event) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		metrics.IngestMessagesTotal.WithLabelValues("closed").Inc()
		return ErrClosed
	}
	p.pending.Add(1)
	p.mu.Unlock()
	defer p.pending.Done()

	if err := ev.Validate(); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("invalid").Inc()
		return err
	}
	if p.dedup.Seen(ctx, ev) {
		metrics.IngestMessagesTotal.WithLabelValues("duplicate").Inc()
		logger.L().Debug("ingest_duplicate", "source", ev.Source, "source_id", ev.SourceID)
		return ErrDuplicate
	}
	scored, err := p.scorer.Score(ctx, ev)
	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("score_error").Inc()
		logger.L().Error("ingest_score_error", "source", ev.Source, "err", err)
		return fmt.Errorf("score: %w", err)
	}
	res := p.writer.Write(ctx, scored)
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		if err := <-res; err != nil {
			metrics.IngestMessagesTotal.WithLabelValues("write_error").Inc()
			logger.L().Warn("ingest_write_dropped", "source", scored.Source, "err", err)
			return
		}
		metrics.IngestMessagesTotal.WithLabelValues("ok").Inc()
	}()
	return nil
}

// Submit：进程内提交入口，重复事件不视为错误
func (p *Pipeline) Submit(ctx context.Context, ev model.Event) error {
	if err := p.Handle(ctx, ev); err != nil && !errors.Is(err, ErrDuplicate) {
		return err
	}
	return nil
}

// Wait：等待已提交写入的结果全部返回
func (p *Pipeline) Wait() { p.pending.Wait() }

// Close：拒绝新的事件，并等待进行中的评分与写入全部结束；之后才能关闭存储
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.pending.Wait()
}
