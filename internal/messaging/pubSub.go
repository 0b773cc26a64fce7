package messaging

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ojparkinson/gpx-ingest/internal/config"
	"github.com/ojparkinson/gpx-ingest/internal/persistance"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrNacked        = errors.New("broker rejected batch")
	ErrChannelClosed = errors.New("amqp channel closed before confirm")
)

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends each batch as one JSON message to a topic exchange and
// waits for the broker to confirm it.
type Publisher struct {
	conn       *amqp.Connection
	ch         channel
	confirms   <-chan amqp.Confirmation
	exchange   string
	routingKey string
	// loadID correlates every message published by one publisher.
	loadID string
	logger *zap.Logger
	mu     sync.Mutex

	// confirmations still owed by the broker for publishes whose wait was cancelled
	pending int

	totalRows    int64
	totalBatches int64
}

func NewPublisher(cfg *config.Config, logger *zap.Logger) (*Publisher, error) {
	amqpCfg := amqp.Config{
		Heartbeat: 30 * time.Second,
		Dial:      amqp.DefaultDial(cfg.RequestTimeout),
	}
	if cfg.UseTLS {
		amqpCfg.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	logger.Info("Connecting to RabbitMQ", zap.String("endpoint", cfg.Endpoint), zap.Bool("tls", cfg.UseTLS))

	conn, err := amqp.DialConfig(cfg.AMQPURL(), amqpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq at %s: %w", cfg.Endpoint, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.AMQPExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.AMQPExchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	p := newPublisher(ch, ch.NotifyPublish(make(chan amqp.Confirmation, 1)), cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, confirms <-chan amqp.Confirmation, exchange, routingKey string, logger *zap.Logger) *Publisher {
	return &Publisher{
		ch:         ch,
		confirms:   confirms,
		exchange:   exchange,
		routingKey: routingKey,
		loadID:     uuid.New().String(),
		logger:     logger,
	}
}

func (p *Publisher) Submit(ctx context.Context, table string, schema []persistance.ColumnSchema, rows []persistance.Row) (uint32, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := encodeBatch(buf, table, schema, rows); err != nil {
		return 0, err
	}

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		Body:          buf.Bytes(),
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.New().String(),
		CorrelationId: p.loadID,
		Timestamp:     time.Now().UTC(),
		Headers: amqp.Table{
			"table":      table,
			"batch_size": len(rows),
		},
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.drainPending(ctx); err != nil {
		return 0, err
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, publishing); err != nil {
		return 0, fmt.Errorf("failed to publish batch: %w", err)
	}

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			return 0, ErrChannelClosed
		}
		if !confirm.Ack {
			return 0, fmt.Errorf("%w: delivery tag %d", ErrNacked, confirm.DeliveryTag)
		}
	case <-ctx.Done():
		p.pending++
		return 0, ctx.Err()
	}

	p.totalRows += int64(len(rows))
	p.totalBatches++

	p.logger.Debug("Published batch",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", p.routingKey),
		zap.String("message_id", publishing.MessageId),
		zap.Int("rows", len(rows)),
		zap.Int("bytes", len(publishing.Body)))

	return uint32(len(rows)), nil
}

// drainPending consumes confirmations left over from cancelled waits so the
// next publish is matched with its own confirmation.
func (p *Publisher) drainPending(ctx context.Context) error {
	for p.pending > 0 {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return ErrChannelClosed
			}
			p.pending--
			if !confirm.Ack {
				p.logger.Warn("Broker rejected an abandoned batch", zap.Uint64("delivery_tag", confirm.DeliveryTag))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Publisher) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Info("Closed publisher",
		zap.String("load_id", p.loadID),
		zap.Int64("rows", p.totalRows),
		zap.Int64("batches", p.totalBatches))

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
