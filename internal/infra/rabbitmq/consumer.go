package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mdobak/go-xerrors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	maxBackoff = 60 * time.Second

	// attemptHeader counts deliveries of a message that failed and was put back on the queue.
	attemptHeader = "x-attempt"
)

type MessageHandler func(ctx context.Context, body []byte) error

type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	pub         channelPublisher
	queue       string
	workerCount int
	baseDelay   time.Duration
	handler     MessageHandler
	logger      *zap.Logger
	wg          sync.WaitGroup
}

type ConsumerConfig struct {
	URL              string
	Exchange         string
	Queue            string
	RoutingKey       string
	StatusQueue      string
	StatusRoutingKey string
	DLQ              string
	Prefetch         int
	WorkerCount      int
	BaseDelayMs      int
}

// routingKey falls back to the queue name.
func routingKey(key, queue string) string {
	if key == "" {
		return queue
	}
	return key
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("invalid worker count %d", cfg.WorkerCount)
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:        conn,
		channel:     ch,
		pub:         ch,
		queue:       cfg.Queue,
		workerCount: cfg.WorkerCount,
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:     handler,
		logger:      logger.With(zap.String("queue", cfg.Queue)),
	}, nil
}

// declareTopology declares the topic exchange, the extraction, status and dead-letter queues,
// and binds the first two to the exchange. The DLQ is published to directly.
func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	bindings := []struct{ queue, key string }{
		{cfg.Queue, routingKey(cfg.RoutingKey, cfg.Queue)},
		{cfg.StatusQueue, routingKey(cfg.StatusRoutingKey, cfg.StatusQueue)},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		c.queue,
		"",
		false, // autoAck=false
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool", zap.Int("workers", c.workerCount))

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for in-flight recordings")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.processDelivery(ctx, d, log)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	err := c.handle(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	attempt := attemptFromHeaders(d.Headers)
	delay := backoff(c.baseDelay, attempt)
	log.Warn("recording message failed, requeueing after backoff",
		zap.Error(err),
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		_ = d.Nack(false, false)
		return
	}

	if err := c.requeue(ctx, d, attempt+1); err != nil {
		log.Error("failed to republish message, returning it to the broker", zap.Error(err))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// requeue publishes a copy of d straight to the work queue with the attempt counter set.
func (c *Consumer) requeue(ctx context.Context, d amqp.Delivery, attempt int) error {
	err := c.pub.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now(),
		Headers:      retryHeaders(d.Headers, attempt),
		Body:         d.Body,
	})
	if err != nil {
		return fmt.Errorf("republish to %s: %w", c.queue, err)
	}
	return nil
}

func retryHeaders(headers amqp.Table, attempt int) amqp.Table {
	out := make(amqp.Table, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out[attemptHeader] = int32(attempt)
	return out
}

// handle runs the handler and converts a panic into an error carrying the stack.
func (c *Consumer) handle(ctx context.Context, body []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = xerrors.New(fmt.Sprintf("handler panic: %v", rec))
			c.logger.Error("recovered handler panic", zap.Error(err))
		}
	}()
	return c.handler(ctx, body)
}

// attemptFromHeaders reads the attempt counter stamped by requeue, falling back to the number of
// broker dead-letterings. A first delivery counts as attempt 1.
func attemptFromHeaders(headers amqp.Table) int {
	if headers == nil {
		return 1
	}
	switch v := headers[attemptHeader].(type) {
	case int32:
		return max(1, int(v))
	case int64:
		return max(1, int(v))
	case int:
		return max(1, v)
	}
	if deaths, ok := headers["x-death"].([]interface{}); ok && len(deaths) > 0 {
		return len(deaths)
	}
	return 1
}

// backoff doubles base for every attempt after the first and caps at one minute.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return min(delay, maxBackoff)
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
