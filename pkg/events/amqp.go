package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPPublisher mirrors events onto a topic exchange with the event type as
// routing key.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *logrus.Entry
}

func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		log:      logrus.WithField("component", "events.amqp"),
	}, nil
}

func (p *AMQPPublisher) Publish(_ context.Context, evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		p.log.WithError(err).WithField("type", evt.Type).Warn("failed to encode event")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.Publish(
		p.exchange,
		evt.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    evt.ID,
			Timestamp:    evt.At,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		p.log.WithError(err).WithField("type", evt.Type).Warn("failed to publish event")
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
