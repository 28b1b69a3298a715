package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-tenantdb/config"
	"github.com/gaborage/go-tenantdb/logger"
)

// Reconnection delays
const (
	defaultReconnectDelay = 5 * time.Second
	defaultPrefetch       = 10
)

// OpenTelemetry constants
const (
	tracerName              = "github.com/gaborage/go-tenantdb/events"
	messagingSystemRabbitMQ = "rabbitmq"
	operationReceive        = "receive"
)

var errAlreadyRunning = errors.New("consumer already running")

// EventHandler applies one decoded event. Handler implements it.
type EventHandler interface {
	Handle(ctx context.Context, evt Event) error
}

// Consumer reads tenant events from a durable queue bound to a topic exchange.
// It reconnects until its context is cancelled.
type Consumer struct {
	cfg            config.MessagingConfig
	handler        EventHandler
	log            logger.Logger
	reconnectDelay time.Duration

	mu      sync.Mutex
	running bool
	ready   bool
}

// NewConsumer creates a consumer for cfg. Call Run to start consuming.
func NewConsumer(cfg config.MessagingConfig, handler EventHandler, log logger.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}
	return &Consumer{
		cfg:            cfg,
		handler:        handler,
		log:            log,
		reconnectDelay: defaultReconnectDelay,
	}
}

// IsReady reports whether the consumer is attached to its queue.
func (c *Consumer) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Consumer) setReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// Run consumes until ctx is cancelled, reconnecting after broker failures.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running, c.ready = false, false
		c.mu.Unlock()
	}()

	for {
		err := c.session(ctx)
		c.setReady(false)
		if ctx.Err() != nil {
			c.log.Info().Msg("Tenant event consumer stopped")
			return nil
		}
		c.log.Error().Err(err).Dur("retry_in", c.reconnectDelay).Msg("Tenant event consumer disconnected, retrying...")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
}

// session runs one connection lifetime.
func (c *Consumer) session(ctx context.Context) error {
	conn, err := amqpDialFunc(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect %s: %w", redactURL(c.cfg.URL), err)
	}
	defer conn.Close()
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	deliveries, err := c.setup(ch)
	if err != nil {
		return err
	}
	c.setReady(true)
	c.log.Info().
		Str("broker", redactURL(c.cfg.URL)).
		Str("queue", c.cfg.Queue).
		Str("exchange", c.cfg.Exchange).
		Msg("Consuming tenant events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-connClosed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.process(ctx, &d)
		}
	}
}

// setup declares the topology and starts consuming.
func (c *Consumer) setup(ch amqpChannel) (<-chan amqp.Delivery, error) {
	if err := ch.ExchangeDeclare(c.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", c.cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", c.cfg.Queue, err)
	}
	if err := ch.QueueBind(c.cfg.Queue, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", c.cfg.Queue, err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}
	return deliveries, nil
}

// process handles one delivery. Malformed events are dropped; transient
// failures are requeued once.
func (c *Consumer) process(ctx context.Context, d *amqp.Delivery) {
	ctx, span := startConsumeSpan(ctx, d, c.cfg.Queue)
	defer span.End()

	evt, err := ParseEvent(d.Body, d.RoutingKey)
	if err == nil {
		span.SetAttributes(attribute.String("tenant.id", evt.TenantID), attribute.String("tenant.event", evt.Type))
		err = c.handler.Handle(ctx, evt)
	}

	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.Warn().Err(ackErr).Msg("Failed to ack tenant event")
		}
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	requeue := !errors.Is(err, ErrInvalidEvent) && !d.Redelivered
	c.log.Warn().
		Err(err).
		Str("routing_key", d.RoutingKey).
		Str("message_id", d.MessageId).
		Bool("requeue", requeue).
		Msg("Failed to process tenant event")
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		c.log.Warn().Err(nackErr).Msg("Failed to nack tenant event")
	}
}

// headerCarrier adapts AMQP headers to the OTel propagator.
type headerCarrier amqp.Table

func (h headerCarrier) Get(key string) string {
	if v, ok := h[key].(string); ok {
		return v
	}
	return ""
}

func (h headerCarrier) Set(key, value string) {
	h[key] = value
}

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// startConsumeSpan continues the producer's trace, if any, with a consumer span.
func startConsumeSpan(ctx context.Context, d *amqp.Delivery, queue string) (context.Context, trace.Span) {
	if d.Headers != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(d.Headers))
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, queue+" "+operationReceive,
		trace.WithSpanKind(trace.SpanKindConsumer),
	)

	attrs := []attribute.KeyValue{
		attribute.String(string(semconv.MessagingSystemKey), messagingSystemRabbitMQ),
		semconv.MessagingOperationName(operationReceive),
		semconv.MessagingDestinationName(queue),
		semconv.MessagingMessageBodySize(len(d.Body)),
	}
	if d.RoutingKey != "" {
		attrs = append(attrs, attribute.String("messaging.rabbitmq.routing_key", d.RoutingKey))
	}
	if d.MessageId != "" {
		attrs = append(attrs, semconv.MessagingMessageID(d.MessageId))
	}
	span.SetAttributes(attrs...)

	return ctx, span
}
