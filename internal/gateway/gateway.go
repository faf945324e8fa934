// Package gateway routes engine responses to the host transport and keeps
// track of the messages that await a reply.
package gateway

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"calc/internal/bus"
	"calc/internal/engine"
	"calc/internal/errors"
	"calc/internal/host"
	"calc/internal/ledger"
)

var ErrGatewayDisconnected = errors.New("gateway disconnected")

// GatewayConfig controls buffering behavior.
type GatewayConfig struct {
	Session           string
	ResendOnReconnect bool
}

// Routed is a response split by destination.
type Routed struct {
	// Calls are entry point invocations a strategy sent itself.
	Calls []host.Request
	// External are messages for the host to execute.
	External []ledger.SubMsg
}

// Gateway tracks dispatched messages and publishes responses with
// reconnect/resend support.
type Gateway struct {
	cfg       GatewayConfig
	out       bus.Publisher
	mu        sync.Mutex
	state     *StateMachine
	outbox    []host.Response
	connected bool
}

var _ bus.Publisher = (*Gateway)(nil)

// NewGateway creates a gateway publishing to out.
func NewGateway(cfg GatewayConfig, out bus.Publisher) *Gateway {
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	return &Gateway{
		cfg:       cfg,
		out:       out,
		state:     NewStateMachine(),
		connected: true,
	}
}

// Outstanding reports how many dispatched messages await a reply.
func (g *Gateway) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Outstanding()
}

// Pending lists the messages of contract awaiting a reply.
func (g *Gateway) Pending(contract string) []Dispatch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Pending(contract)
}

// Route splits resp, the result of req, and records the external messages
// that asked for a reply. A strategy's calls to itself become requests sent
// by the strategy at the same height.
func (g *Gateway) Route(req host.Request, resp host.Response) Routed {
	var routed Routed
	if resp.Failed() {
		return routed
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range resp.Messages {
		if m.Msg.To == req.Contract {
			if call, ok := engine.DecodeCall(m.Msg, req.Contract, req.Env); ok {
				routed.Calls = append(routed.Calls, call)
				continue
			}
		}
		routed.External = append(routed.External, m)
		if m.ReplyOn != ledger.ReplyAlways {
			continue
		}
		if _, err := g.state.ApplyDispatch(resp.RequestID, req.Contract, m); err != nil {
			logs.Errorf("session %s: track message %d of %s, err: %+v", g.cfg.Session, m.ID, req.Contract, err)
		}
	}
	return routed
}

// OnReply resolves the dispatch a reply request reports on. Requests of
// other entries are ignored.
func (g *Gateway) OnReply(req host.Request) (*Dispatch, error) {
	if req.Entry != host.EntryReply {
		return nil, nil
	}
	var msg engine.ReplyMsg
	if err := sonic.Unmarshal(req.Body, &msg); err != nil {
		return nil, errors.Wrap(err, "decode reply")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	d, err := g.state.ApplyReply(Key{Contract: req.Contract, ID: msg.ID}, msg.OK, msg.Error)
	if err != nil {
		return nil, err
	}
	copied := *d
	return &copied, nil
}

// Publish sends resp. While disconnected, or when the send fails, resp is
// kept for Reconnect if resending is enabled and the error is returned
// otherwise.
func (g *Gateway) Publish(ctx context.Context, resp host.Response) error {
	g.mu.Lock()
	if !g.connected {
		err := g.hold(resp, ErrGatewayDisconnected)
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	if err := g.out.Publish(ctx, resp); err != nil {
		logs.Errorf("session %s: publish %s, err: %+v", g.cfg.Session, resp.RequestID, err)
		g.mu.Lock()
		defer g.mu.Unlock()
		g.connected = false
		return g.hold(resp, err)
	}
	return nil
}

func (g *Gateway) hold(resp host.Response, err error) error {
	if !g.cfg.ResendOnReconnect {
		return err
	}
	g.outbox = append(g.outbox, resp)
	return nil
}

// Disconnect marks the gateway as disconnected.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
}

// Reconnect marks the gateway as connected and resends buffered responses in
// order. It stops at the first failure, keeping the rest buffered.
func (g *Gateway) Reconnect(ctx context.Context) (int, error) {
	g.mu.Lock()
	g.connected = true
	outbox := g.outbox
	g.outbox = nil
	g.mu.Unlock()

	for i, resp := range outbox {
		if err := g.out.Publish(ctx, resp); err != nil {
			g.mu.Lock()
			g.connected = false
			g.outbox = append(append([]host.Response{}, outbox[i:]...), g.outbox...)
			g.mu.Unlock()
			return i, errors.Wrapf(err, "resend %s", resp.RequestID)
		}
	}
	if len(outbox) > 0 {
		logs.Infof("session %s: resent %d responses", g.cfg.Session, len(outbox))
	}
	return len(outbox), nil
}

// Buffered reports how many responses wait for Reconnect.
func (g *Gateway) Buffered() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.outbox)
}
