package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"emailthing/pkg/logger"
	"emailthing/pkg/metrics"
	"emailthing/pkg/trace"
	"emailthing/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// acknowledger is the part of amqp091.Delivery the consumer needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// deadLetterFunc republishes a non-retryable message; nil means drop it.
type deadLetterFunc func(ctx context.Context, body []byte, errorType string, cause error) error

type Consumer struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	logger     *zap.Logger
}

// NewConsumer creates a consumer for a specific routing key, with a dead
// letter queue for messages that can never be processed.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := DeclareExchange(ch, ExchangeName); err != nil {
		return fail(fmt.Errorf("failed to declare exchange: %w", err))
	}
	if _, err := DeclareDLQQueue(ch, routingKey); err != nil {
		return fail(err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to declare queue: %w", err))
	}
	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		return fail(fmt.Errorf("failed to bind queue: %w", err))
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// IsConnected reports whether the underlying connection is still open.
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until ctx is cancelled or the delivery channel closes.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	deadLetter := func(ctx context.Context, body []byte, errorType string, cause error) error {
		return publishToDLQ(ctx, c.channel, c.routingKey, body, errorType, cause.Error())
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			msgCtx := trace.WithContext(ctx, traceIDFromHeaders(msg.Headers))
			handleDelivery(msgCtx, msg, msg.Body, c.routingKey, c.handler, deadLetter, c.logger)
		}
	}
}

// handleDelivery guarantees every message is acked or nacked exactly once:
// success acks, retryable failures and panics requeue, permanent failures go
// to the dead letter queue and are acked.
func handleDelivery(ctx context.Context, msg acknowledger, body []byte, routingKey string, handler MessageHandler, deadLetter deadLetterFunc, baseLogger *zap.Logger) {
	log := logger.WithTrace(ctx, baseLogger).With(zap.String("routing_key", routingKey))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			metrics.IncrementMQMessage(routingKey, "requeue")
			if err := msg.Nack(false, true); err != nil {
				log.Error("Failed to nack message after panic", zap.Error(err))
			}
		}
	}()

	err := handler(ctx, body)
	if err == nil {
		metrics.IncrementMQMessage(routingKey, "ack")
		if err := msg.Ack(false); err != nil {
			log.Error("Failed to ack message", zap.Error(err))
		}
		return
	}

	retryable, errorType := util.IsRetryableError(err)
	if retryable {
		log.Warn("Handler failed, requeueing", zap.String("error_type", errorType), zap.Error(err))
		metrics.IncrementMQMessage(routingKey, "requeue")
		if err := msg.Nack(false, true); err != nil {
			log.Error("Failed to nack message", zap.Error(err))
		}
		return
	}

	log.Error("Handler failed permanently, dead-lettering", zap.String("error_type", errorType), zap.Error(err))
	metrics.IncrementMQMessage(routingKey, "drop")
	if deadLetter != nil {
		if dlqErr := deadLetter(ctx, body, errorType, err); dlqErr != nil {
			// requeue rather than lose the message
			log.Error("Failed to publish to DLQ", zap.Error(dlqErr))
			if err := msg.Nack(false, true); err != nil {
				log.Error("Failed to nack message", zap.Error(err))
			}
			return
		}
	}
	if err := msg.Ack(false); err != nil {
		log.Error("Failed to ack message", zap.Error(err))
	}
}

func traceIDFromHeaders(headers amqp091.Table) string {
	if v, ok := headers["trace_id"].(string); ok && v != "" {
		return v
	}
	return trace.GenerateTraceID()
}
