package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"scouter/internal/logger"
	"scouter/internal/metrics"
	"scouter/internal/model"
)

// RoutingKey：原始事件的路由键
const RoutingKey = "event.raw"

// Handler：消费到的事件交给谁处理，Pipeline 满足该接口
type Handler interface {
	Handle(ctx context.Context, ev model.Event) error
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

// Consumer：从绑定 event.raw 的持久队列消费原始事件
// 约束：合法消息收到即确认（至多一次），处理失败不重投；无法解码的消息拒绝且不重新入队
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	handler  Handler
	sink     metrics.Sink
	rejected int64
}

func DialConsumer(url, exchange, queue string, h Handler, sink metrics.Sink) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	if err := ch.QueueBind(queue, RoutingKey, exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp queue bind: %w", err)
	}
	if err := ch.Qos(32, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	logger.L().Info("amqp_consumer_ready", "exchange", exchange, "queue", queue)
	return &Consumer{conn: conn, ch: ch, queue: queue, handler: h, sink: sink}, nil
}

// Run：阻塞消费直到 ctx 取消或连接关闭
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				logger.L().Warn("amqp_deliveries_closed", "queue", c.queue)
				return amqp.ErrClosed
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	var ev model.Event
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.rejected++
		metrics.IngestMessagesTotal.WithLabelValues("invalid").Inc()
		c.sink.Log(metrics.KeyIngestRejected, c.rejected)
		logger.L().Warn("amqp_message_rejected", "message_id", d.MessageId, "err", err)
		if err := d.Reject(false); err != nil {
			logger.L().Error("amqp_reject_error", "err", err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		logger.L().Error("amqp_ack_error", "err", err)
		return
	}
	if err := c.handler.Handle(ctx, ev); err != nil {
		logger.L().Warn("amqp_message_dropped", "message_id", d.MessageId, "source", ev.Source, "err", err)
	}
}

// QueueStats：队列积压与消费者数；使用独立信道，被动声明失败不影响消费信道
func (c *Consumer) QueueStats(_ context.Context) (int, int, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return 0, 0, err
	}
	defer ch.Close()
	q, err := ch.QueueDeclarePassive(c.queue, true, false, false, false, nil)
	if err != nil {
		return 0, 0, err
	}
	return q.Messages, q.Consumers, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	return c.conn.Close()
}

// Publisher：把原始事件发布到交换机（路由键 event.raw）
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	timeout  time.Duration
}

func DialPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	logger.L().Info("amqp_publisher_ready", "exchange", exchange)
	return &Publisher{conn: conn, ch: ch, exchange: exchange, timeout: 5 * time.Second}, nil
}

// Submit：发布单个事件；发布确认不等待
func (p *Publisher) Submit(ctx context.Context, ev model.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		MessageId:    logger.NewRequestID(),
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	logger.L().Debug("amqp_published", "source", ev.Source, "bytes", len(body))
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}
