package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calc/internal/errors"
	"calc/internal/host"
	"calc/internal/ledger"
	"calc/pkg/exception"
)

func request(id string) host.Request {
	return host.Request{ID: id, Entry: host.EntryExecute, Contract: "strategy", Sender: "manager", Env: ledger.Env{Height: 1, Contract: "strategy"}}
}

func TestQueue(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.TryPublish(Envelope{Request: request("a")}))
	require.NoError(t, q.Publish(context.Background(), Envelope{Request: request("b")}))
	assert.ErrorIs(t, q.TryPublish(Envelope{Request: request("c")}), ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Envelope{Request: request("c")}), context.DeadlineExceeded)

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.TryPublish(Envelope{}), ErrQueueClosed)
	assert.ErrorIs(t, q.Publish(context.Background(), Envelope{}), ErrQueueClosed)

	var seen []string
	q.Run(context.Background(), func(e Envelope) { seen = append(seen, e.Request.ID) })
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestEnvelopeFinish(t *testing.T) {
	Envelope{}.Finish(host.Response{})

	var got host.Response
	Envelope{Done: func(r host.Response) { got = r }}.Finish(host.Response{RequestID: "a"})
	assert.Equal(t, "a", got.RequestID)
}

type acknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type channel struct {
	mu         sync.Mutex
	declared   []string
	deliveries chan amqp.Delivery
	published  []amqp.Publishing
	keys       []string
	publishErr error
}

func (c *channel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, "exchange:"+kind+":"+name)
	return nil
}

func (c *channel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.declared = append(c.declared, "queue:"+name)
	return amqp.Queue{Name: name}, nil
}

func (c *channel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, "bind:"+exchange+":"+key+":"+name)
	return nil
}

func (c *channel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *channel) PublishWithDeferredConfirmWithContext(_ context.Context, _ string, key string, _, _ bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return nil, c.publishErr
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil, nil
}

func relayConfig() RelayConfig {
	return RelayConfig{Exchange: "calc", RequestQueue: "calc.requests", ResponseKey: "calc.responses", Consumer: "test"}
}

func TestRelayDeclare(t *testing.T) {
	ch := &channel{}
	require.NoError(t, NewRelay(ch, relayConfig()).Declare())
	assert.Equal(t, []string{
		"exchange:topic:calc",
		"queue:calc.requests",
		"bind:calc:calc.requests:calc.requests",
	}, ch.declared)

	assert.ErrorIs(t, NewRelay(nil, relayConfig()).Declare(), exception.ErrConnectionClose)
}

func TestRelayConsume(t *testing.T) {
	ack := &acknowledger{}
	ch := &channel{deliveries: make(chan amqp.Delivery, 3)}
	relay := NewRelay(ch, relayConfig())

	body, err := sonic.Marshal(request("req-1"))
	require.NoError(t, err)
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{")}
	close(ch.deliveries)

	q := NewQueue(4)
	err = relay.Consume(context.Background(), q, nil)
	assert.ErrorIs(t, err, exception.ErrConnectionClose)
	require.Equal(t, 1, q.Len())
	assert.Equal(t, []uint64{2}, ack.nacked)
	assert.Equal(t, []bool{false}, ack.requeue)

	q.Close()
	q.Run(context.Background(), func(e Envelope) {
		assert.Equal(t, "req-1", e.Request.ID)
		e.Finish(host.Response{RequestID: e.Request.ID})
	})
	assert.Equal(t, []uint64{1}, ack.acked)
	require.Len(t, ch.published, 1)
	assert.Equal(t, "calc.responses", ch.keys[0])
	assert.Equal(t, "req-1", ch.published[0].CorrelationId)

	var resp host.Response
	require.NoError(t, sonic.Unmarshal(ch.published[0].Body, &resp))
	assert.Equal(t, "req-1", resp.RequestID)
}

func TestRelayPublishFailureRequeues(t *testing.T) {
	ack := &acknowledger{}
	ch := &channel{deliveries: make(chan amqp.Delivery, 1), publishErr: errors.New("channel closed")}
	relay := NewRelay(ch, relayConfig())

	body, err := sonic.Marshal(request("req-1"))
	require.NoError(t, err)
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, Body: body}
	close(ch.deliveries)

	q := NewQueue(1)
	_ = relay.Consume(context.Background(), q, nil)
	q.Close()
	q.Run(context.Background(), func(e Envelope) { e.Finish(host.Response{RequestID: e.Request.ID}) })

	assert.Empty(t, ack.acked)
	assert.Equal(t, []uint64{7}, ack.nacked)
	assert.Equal(t, []bool{true}, ack.requeue)
}
