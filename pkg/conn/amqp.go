package conn

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"calc/internal/errors"
	"calc/pkg/exception"
)

// AMQPOption defines connection options for RabbitMQ.
type AMQPOption struct {
	URL      string `yaml:"url"`
	Prefetch int    `yaml:"prefetch"`
}

// AMQP holds one connection and the channel opened on it.
type AMQP struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQP dials the broker and opens a channel in confirm mode.
func NewAMQP(option AMQPOption) (*AMQP, error) {
	if option.URL == "" {
		return nil, errors.Wrap(exception.ErrEmptyConnection, "amqp")
	}
	conn, err := amqp.Dial(option.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open amqp channel")
	}
	if option.Prefetch > 0 {
		if err := ch.Qos(option.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, errors.Wrap(err, "set amqp qos")
		}
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "enable amqp confirms")
	}
	return &AMQP{conn: conn, ch: ch}, nil
}

// Channel returns the open channel.
func (a *AMQP) Channel() (*amqp.Channel, error) {
	if a == nil || a.ch == nil || a.ch.IsClosed() {
		return nil, exception.ErrConnectionClose
	}
	return a.ch, nil
}

// Close closes the channel and the connection.
func (a *AMQP) Close() error {
	if a == nil {
		return nil
	}
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
