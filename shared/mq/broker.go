// Package mq carries codegen jobs and their outcomes over a single durable
// RabbitMQ topic exchange. The gateway enqueues jobs and relays outcomes; the
// worker consumes jobs and publishes outcomes.
package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	Exchange     = "stepcoder.events"
	ExchangeType = "topic"

	defaultDialAttempts = 10
)

// Broker holds one AMQP connection and channel.
type Broker struct {
	url      string
	attempts int
	conn     *amqp.Connection
	ch       *amqp.Channel
}

// New connects to RabbitMQ and declares the exchange. attempts <= 0 uses the
// default of 10 dial attempts with linear backoff.
func New(amqpURL string, attempts int) (*Broker, error) {
	if attempts <= 0 {
		attempts = defaultDialAttempts
	}
	b := &Broker{url: amqpURL, attempts: attempts}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect() error {
	var err error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		b.conn, err = amqp.Dial(b.url)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("RabbitMQ connection failed, retrying")
		if attempt < b.attempts {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	if err != nil {
		return fmt.Errorf("rabbitmq connect after %d attempts: %w", b.attempts, err)
	}

	b.ch, err = b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	return b.ch.ExchangeDeclare(
		Exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// Publish sends a message to the topic exchange with the given routing key.
func (b *Broker) Publish(ctx context.Context, routingKey string, body []byte) error {
	return b.ch.PublishWithContext(ctx,
		Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Subscribe declares a durable queue, binds it to every given routing key
// pattern and starts consuming with manual acks. prefetch caps unacknowledged
// deliveries on the channel; values below 1 are raised to 1.
func (b *Broker) Subscribe(queueName string, prefetch int, patterns ...string) (<-chan amqp.Delivery, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("subscribe %s: no routing key patterns", queueName)
	}

	q, err := b.ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	for _, p := range patterns {
		if err := b.ch.QueueBind(q.Name, p, Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind queue %s to %s: %w", queueName, p, err)
		}
	}

	if prefetch < 1 {
		prefetch = 1
	}
	if err := b.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return b.ch.Consume(
		q.Name,
		"",    // consumer tag, auto-generated
		false, // manual ack after processing
		false, false, false, nil,
	)
}

// Close shuts down channel and connection.
func (b *Broker) Close() {
	if b.ch != nil {
		b.ch.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
