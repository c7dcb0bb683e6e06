package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	DefaultExchange = "storefront.orders"
	exchangeType    = "topic"
)

// amqpChannel is the subset of *amqp.Channel the publisher needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitPublisher struct {
	ch       amqpChannel
	exchange string
}

func NewRabbitPublisher(ch amqpChannel, exchange string) *RabbitPublisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &RabbitPublisher{ch: ch, exchange: exchange}
}

func (p *RabbitPublisher) PublishOrderPaid(ctx context.Context, evt OrderPaid) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode order.paid: %w", err)
	}

	return p.ch.PublishWithContext(ctx,
		p.exchange,
		RoutingOrderPaid,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    "order-paid-" + strconv.FormatInt(evt.OrderID, 10),
			Timestamp:    evt.PaidAt,
			Body:         body,
		},
	)
}

// Connect dials the broker, retrying while it starts up, and declares the
// durable topic exchange. The caller closes the returned connection.
func Connect(url, exchange string, logger *zap.SugaredLogger) (*amqp.Connection, *RabbitPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 1; attempt <= 5; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warnw("rabbitmq dial failed", "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, exchangeType, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}

	return conn, NewRabbitPublisher(ch, exchange), nil
}
