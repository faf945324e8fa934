package bus

import (
	"context"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/yanun0323/logs"

	"calc/internal/errors"
	"calc/internal/host"
	"calc/pkg/exception"
)

const contentType = "application/json"

// Channel is the part of *amqp.Channel the relay uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
}

var (
	_ Channel   = (*amqp.Channel)(nil)
	_ Publisher = (*Relay)(nil)
)

// Publisher delivers response envelopes.
type Publisher interface {
	Publish(ctx context.Context, resp host.Response) error
}

// RelayConfig names the broker objects the relay uses.
type RelayConfig struct {
	Exchange     string
	RequestQueue string
	ResponseKey  string
	Consumer     string
}

// Relay consumes request envelopes from a durable queue and publishes
// response envelopes to a topic exchange.
type Relay struct {
	ch  Channel
	cfg RelayConfig
}

// NewRelay wraps ch.
func NewRelay(ch Channel, cfg RelayConfig) *Relay {
	return &Relay{ch: ch, cfg: cfg}
}

// Declare creates the exchange and request queue and binds them by the
// queue name.
func (r *Relay) Declare() error {
	if r.ch == nil {
		return exception.ErrConnectionClose
	}
	if err := r.ch.ExchangeDeclare(r.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "declare exchange %s", r.cfg.Exchange)
	}
	if _, err := r.ch.QueueDeclare(r.cfg.RequestQueue, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "declare queue %s", r.cfg.RequestQueue)
	}
	if err := r.ch.QueueBind(r.cfg.RequestQueue, r.cfg.RequestQueue, r.cfg.Exchange, false, nil); err != nil {
		return errors.Wrapf(err, "bind queue %s", r.cfg.RequestQueue)
	}
	return nil
}

// Consume feeds deliveries into q until ctx is done or the broker closes the
// delivery channel. A delivery is acked once out accepts its response and
// requeued when out fails; a nil out publishes through the relay itself.
// Undecodable deliveries are dropped.
func (r *Relay) Consume(ctx context.Context, q *Queue, out Publisher) error {
	if r.ch == nil {
		return exception.ErrConnectionClose
	}
	deliveries, err := r.ch.Consume(r.cfg.RequestQueue, r.cfg.Consumer, false, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "consume %s", r.cfg.RequestQueue)
	}
	if out == nil {
		out = r
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return exception.ErrConnectionClose
			}
			r.deliver(ctx, q, out, d)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, q *Queue, out Publisher, d amqp.Delivery) {
	var req host.Request
	if err := sonic.Unmarshal(d.Body, &req); err != nil {
		logs.Errorf("drop undecodable delivery %d, err: %+v", d.DeliveryTag, err)
		_ = d.Nack(false, false)
		return
	}

	envelope := Envelope{
		Request: req,
		Done: func(resp host.Response) {
			if err := out.Publish(ctx, resp); err != nil {
				logs.Errorf("publish response to %s, err: %+v", req.ID, err)
				_ = d.Nack(false, true)
				return
			}
			_ = d.Ack(false)
		},
	}
	if err := q.Publish(ctx, envelope); err != nil {
		logs.Errorf("enqueue request %s, err: %+v", req.ID, err)
		_ = d.Nack(false, true)
	}
}

// Publish sends resp to the response routing key and waits for the broker to
// confirm it.
func (r *Relay) Publish(ctx context.Context, resp host.Response) error {
	if r.ch == nil {
		return exception.ErrConnectionClose
	}
	body, err := sonic.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "encode response")
	}
	confirm, err := r.ch.PublishWithDeferredConfirmWithContext(ctx, r.cfg.Exchange, r.cfg.ResponseKey, false, false, amqp.Publishing{
		ContentType:   contentType,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: resp.RequestID,
		Body:          body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish response %s", resp.RequestID)
	}
	if confirm == nil {
		return nil
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "confirm response %s", resp.RequestID)
	}
	if !acked {
		return errors.Wrapf(exception.ErrPublishNotConfirm, "response %s", resp.RequestID)
	}
	return nil
}
