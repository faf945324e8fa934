// Package engine runs strategy graphs. Every entry point loads the record
// of one contract, works on a copy and saves it only when the entry
// succeeds.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/yanun0323/logs"

	"calc/internal/errors"
	"calc/internal/host"
	"calc/internal/ledger"
	"calc/internal/obs"
	"calc/internal/operation"
	"calc/internal/store"
	"calc/pkg/exception"
)

var ErrValidation = errors.New("engine: validation failed")

// ValidationError rejects an entry whose input failed validation. It
// matches ErrValidation and the underlying cause.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ", err: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}

// Engine serves the entry points of every strategy held in its store.
type Engine struct {
	store   store.Store
	querier operation.Querier
	metrics *obs.Metrics
}

type Option func(*Engine)

func WithMetrics(m *obs.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(st store.Store, q operation.Querier, opts ...Option) *Engine {
	e := &Engine{store: st, querier: q}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// outcome is what an entry point hands back before it is turned into a
// response. A nil record means nothing is persisted.
type outcome struct {
	rec     *store.Record
	effects operation.Effects
	calls   []Call
	data    []byte
}

func (o *outcome) call(entry host.Entry, body any) error {
	c, err := newCall(entry, body)
	if err != nil {
		return err
	}
	o.calls = append(o.calls, c)
	return nil
}

// Handle serves req. A rejected request comes back with Error set and no
// messages.
func (e *Engine) Handle(ctx context.Context, req host.Request) host.Response {
	resp, err := e.Invoke(ctx, req)
	if err != nil {
		return host.Response{RequestID: req.ID, Error: err.Error()}
	}
	return resp
}

// Invoke serves req and reports a rejection as an error.
func (e *Engine) Invoke(ctx context.Context, req host.Request) (host.Response, error) {
	start := time.Now()
	resp, err := e.invoke(ctx, req)
	e.metrics.ObserveEntry(req.Entry, time.Since(start), err != nil)
	if err != nil {
		logs.Infof("strategy %s %s rejected: %+v", req.Contract, req.Entry, err)
		return host.Response{}, err
	}
	logs.Infof("strategy %s %s: %d messages, %d events", req.Contract, req.Entry, len(resp.Messages), len(resp.Events))
	return resp, nil
}

func (e *Engine) invoke(ctx context.Context, req host.Request) (host.Response, error) {
	if !req.Entry.IsAvailable() {
		return host.Response{}, errors.Wrapf(exception.ErrUnknownEntry, "entry %d", req.Entry)
	}
	if req.Contract == "" {
		req.Contract = req.Env.Contract
	}
	if req.Contract == "" {
		return host.Response{}, invalid(store.ErrEmptyContract)
	}
	req.Env.Contract = req.Contract
	octx := operation.NewContext(ctx, req.Env, e.querier)

	var (
		out outcome
		err error
	)
	if req.Entry == host.EntryInit {
		out, err = e.init(octx, req)
	} else {
		rec, lerr := e.store.Load(ctx, req.Contract)
		if lerr != nil {
			if errors.Is(lerr, exception.ErrNotFound) {
				return host.Response{}, errors.Wrapf(exception.ErrNotInitialized, "strategy %s", req.Contract)
			}
			return host.Response{}, lerr
		}
		out, err = e.dispatch(octx, req, rec)
	}
	if err != nil {
		return host.Response{}, err
	}

	resp, err := e.respond(req, out)
	if err != nil {
		return host.Response{}, err
	}
	if out.rec != nil {
		if _, err := e.store.Save(ctx, *out.rec); err != nil {
			return host.Response{}, errors.Wrapf(err, "save strategy %s", req.Contract)
		}
	}
	return resp, nil
}

func (e *Engine) dispatch(ctx operation.Context, req host.Request, rec store.Record) (outcome, error) {
	switch req.Entry {
	case host.EntryExecute:
		return e.execute(ctx, req, rec)
	case host.EntryWithdraw:
		return e.withdraw(ctx, req, rec)
	case host.EntryUpdate:
		return e.update(ctx, req, rec)
	case host.EntryCancel:
		return e.cancel(ctx, req, rec)
	case host.EntryProcess:
		return e.process(ctx, req, rec)
	case host.EntryReply:
		return e.reply(ctx, req, rec)
	case host.EntryConfig:
		return e.config(rec)
	case host.EntryStatistics:
		return e.statistics(rec)
	case host.EntryBalances:
		return e.balances(ctx, req, rec)
	default:
		return outcome{}, errors.Wrapf(exception.ErrUnknownEntry, "entry %s", req.Entry)
	}
}

// respond turns the outcome into sub messages: the effects in order, then
// the calls to self. Messages with a payload reply; the rest do not.
func (e *Engine) respond(req host.Request, out outcome) (host.Response, error) {
	resp := host.Response{RequestID: req.ID, Events: out.effects.Events, Data: out.data}
	var id uint64
	for _, m := range out.effects.Messages {
		id++
		sub := ledger.SubMsg{ID: id, Msg: m.Msg, ReplyOn: ledger.ReplyNever}
		if m.Payload != nil {
			payload, err := m.Payload.Encode()
			if err != nil {
				return host.Response{}, err
			}
			sub.ReplyOn, sub.Payload = ledger.ReplyAlways, payload
		}
		resp.Messages = append(resp.Messages, sub)
	}
	for _, c := range out.calls {
		msg, err := c.Msg(req.Contract)
		if err != nil {
			return host.Response{}, err
		}
		id++
		resp.Messages = append(resp.Messages, ledger.SubMsg{ID: id, Msg: msg, ReplyOn: ledger.ReplyNever})
	}
	return resp, nil
}

func authorize(req host.Request, allowed ...string) error {
	for _, a := range allowed {
		if a != "" && req.Sender == a {
			return nil
		}
	}
	return errors.Wrapf(exception.ErrUnauthorized, "%s may not call %s on %s", req.Sender, req.Entry, req.Contract)
}

// logSkips reports the skipped events of one visit.
func (e *Engine) logSkips(contract string, index uint16, events []ledger.Event) {
	skips := 0
	for _, ev := range events {
		if ev.Type != "skipped" {
			continue
		}
		skips++
		step, _ := ev.Attr("step")
		reason, _ := ev.Attr("reason")
		logs.Infof("strategy %s node %d: %s skipped: %s", contract, index, step, strings.TrimSpace(reason))
	}
	e.metrics.AddSkips(skips)
}
