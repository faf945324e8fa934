package main

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"calc/internal/bus"
	"calc/internal/engine"
	"calc/internal/errors"
	"calc/internal/gateway"
	"calc/internal/host"
	"calc/internal/ledger"
	"calc/internal/recorder"
	"calc/internal/registry"
	"calc/internal/scheduler"
)

// maxCallDepth bounds how many self calls one request may chain.
const maxCallDepth = 32

var ErrCallDepth = errors.New("self call depth exceeded")

// triggerStore is the part of scheduler.RedisStore the daemon uses.
type triggerStore interface {
	Put(ctx context.Context, t scheduler.Trigger) (bool, error)
	Due(ctx context.Context, env ledger.Env) ([]scheduler.Trigger, error)
	Remove(ctx context.Context, id string) error
}

var _ triggerStore = (*scheduler.RedisStore)(nil)

// daemon runs requests through the engine, journals them, follows self calls
// and keeps the trigger store in step with the scheduler messages strategies
// emit.
type daemon struct {
	engine    *engine.Engine
	gateway   *gateway.Gateway
	journal   *recorder.Journal
	triggers  triggerStore
	scheduler string
	manager   string
	// out receives responses to self calls and fired triggers.
	out bus.Publisher
	now func() time.Time
}

// handle serves one envelope: the root response goes to its Done and every
// follow-up response to out.
func (d *daemon) handle(ctx context.Context, e bus.Envelope) {
	responses := d.run(ctx, e.Request)
	e.Finish(responses[0])
	d.publish(ctx, responses[1:])

	if d.triggers != nil {
		d.publish(ctx, d.fire(ctx, e.Request.Env))
	}
}

func (d *daemon) publish(ctx context.Context, responses []host.Response) {
	if d.out == nil {
		return
	}
	for _, resp := range responses {
		if err := d.out.Publish(ctx, resp); err != nil {
			logs.Errorf("publish %s, err: %+v", resp.RequestID, err)
		}
	}
}

// run invokes req and, depth first, every call it makes to itself.
func (d *daemon) run(ctx context.Context, req host.Request) []host.Response {
	var out []host.Response
	d.invoke(ctx, req, 0, &out)
	return out
}

func (d *daemon) invoke(ctx context.Context, req host.Request, depth int, out *[]host.Response) {
	received := d.now()
	if _, err := d.gateway.OnReply(req); err != nil {
		logs.Errorf("strategy %s: reply not tracked, err: %+v", req.Contract, err)
	}

	resp := d.engine.Handle(ctx, req)
	if d.journal != nil {
		if err := d.journal.Record(ctx, req, resp, received); err != nil {
			logs.Errorf("journal %s, err: %+v", req.ID, err)
		}
	}
	*out = append(*out, resp)

	routed := d.gateway.Route(req, resp)
	d.register(ctx, req.Contract, routed.External)
	for _, call := range routed.Calls {
		if depth+1 > maxCallDepth {
			logs.Errorf("strategy %s: %s dropped, err: %+v", req.Contract, call.Entry, ErrCallDepth)
			continue
		}
		d.invoke(ctx, call, depth+1, out)
	}
}

// register stores the triggers created by the scheduler messages in msgs.
func (d *daemon) register(ctx context.Context, owner string, msgs []ledger.SubMsg) {
	if d.triggers == nil {
		return
	}
	for _, m := range msgs {
		if m.Msg.Kind != ledger.MsgKindContract || m.Msg.To != d.scheduler {
			continue
		}
		t, err := scheduler.DecodeCreate(owner, m.Msg)
		if errors.Is(err, scheduler.ErrNotCreate) {
			continue
		}
		if err == nil {
			_, err = d.triggers.Put(ctx, t)
		}
		if err != nil {
			logs.Errorf("strategy %s: register trigger, err: %+v", owner, err)
		}
	}
}

// fire runs every trigger due at env that targets the manager, removing it
// first so a failing strategy does not fire twice.
func (d *daemon) fire(ctx context.Context, env ledger.Env) []host.Response {
	due, err := d.triggers.Due(ctx, env)
	if err != nil {
		logs.Errorf("scan due triggers, err: %+v", err)
		return nil
	}

	var out []host.Response
	for _, t := range due {
		if err := d.triggers.Remove(ctx, t.ID); err != nil {
			logs.Errorf("remove trigger %s, err: %+v", t.ID, err)
			continue
		}
		if t.Create.Contract != d.manager {
			logs.Infof("trigger %s targets %s, not the manager, skipped", t.ID, t.Create.Contract)
			continue
		}
		contract, err := registry.DecodeExecuteMsg(t.Create.Msg)
		if err != nil {
			logs.Errorf("trigger %s, err: %+v", t.ID, err)
			continue
		}
		at := env
		at.Contract = contract
		out = append(out, d.run(ctx, host.NewRequest(host.EntryExecute, d.manager, at, nil))...)
	}
	return out
}

// printer writes one response per line.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) Publish(_ context.Context, resp host.Response) error {
	b, err := sonic.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "encode response")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = p.w.Write(append(b, '\n'))
	return err
}
