package gateway

import (
	"context"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calc/internal/engine"
	"calc/internal/errors"
	"calc/internal/host"
	"calc/internal/ledger"
)

const strategy = "strategy"

type publisher struct {
	sent []string
	fail bool
}

func (p *publisher) Publish(_ context.Context, resp host.Response) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.sent = append(p.sent, resp.RequestID)
	return nil
}

func env() ledger.Env {
	return ledger.Env{Height: 100, Contract: strategy}
}

func reply(t *testing.T, id uint64, ok bool) host.Request {
	msg := engine.ReplyMsg{ID: id, OK: ok}
	if !ok {
		msg.Error = "out of gas"
	}
	body, err := sonic.Marshal(msg)
	require.NoError(t, err)
	return host.NewRequest(host.EntryReply, strategy, env(), body)
}

func TestStateMachine(t *testing.T) {
	m := NewStateMachine()
	msg := ledger.SubMsg{ID: 1, Msg: ledger.BankMsg("a", nil), ReplyOn: ledger.ReplyAlways}

	_, err := m.ApplyDispatch("r1", strategy, ledger.SubMsg{ID: 2, ReplyOn: ledger.ReplyNever})
	assert.ErrorIs(t, err, ErrNoReply)

	_, err = m.ApplyDispatch("r1", strategy, msg)
	require.NoError(t, err)
	_, err = m.ApplyDispatch("r1", strategy, msg)
	assert.True(t, errors.Is(err, ErrDuplicateDispatch), err)
	_, err = m.ApplyDispatch("r2", strategy, msg)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Outstanding())

	d, err := m.ApplyReply(Key{Contract: strategy, ID: 1}, true, "")
	require.NoError(t, err)
	assert.Equal(t, "r1", d.RequestID)
	assert.Equal(t, DispatchStateReplied, d.State)

	d, err = m.ApplyReply(Key{Contract: strategy, ID: 1}, false, "out of gas")
	require.NoError(t, err)
	assert.Equal(t, "r2", d.RequestID)
	assert.Equal(t, DispatchStateFailed, d.State)
	assert.Equal(t, "out of gas", d.Error)

	_, err = m.ApplyReply(Key{Contract: strategy, ID: 1}, true, "")
	assert.True(t, errors.Is(err, ErrUnknownDispatch), err)
	assert.Zero(t, m.Outstanding())
}

func TestRoute(t *testing.T) {
	call, err := engine.Call{Entry: host.EntryProcess, Body: []byte(`{"operation":"execute","previous":0}`)}.Msg(strategy)
	require.NoError(t, err)

	req := host.NewRequest(host.EntryExecute, "manager", env(), nil)
	resp := host.Response{
		RequestID: req.ID,
		Messages: []ledger.SubMsg{
			{ID: 1, Msg: ledger.BankMsg("a", nil), ReplyOn: ledger.ReplyAlways},
			{ID: 2, Msg: ledger.ContractMsg("vault", []byte(`{"deposit":{}}`), nil)},
			{ID: 3, Msg: call},
		},
	}

	g := NewGateway(GatewayConfig{}, &publisher{})
	routed := g.Route(req, resp)
	require.Len(t, routed.Calls, 1)
	assert.Equal(t, host.EntryProcess, routed.Calls[0].Entry)
	assert.Equal(t, strategy, routed.Calls[0].Sender)
	assert.Equal(t, strategy, routed.Calls[0].Contract)
	assert.Equal(t, uint64(100), routed.Calls[0].Env.Height)
	require.Len(t, routed.External, 2)
	assert.Equal(t, 1, g.Outstanding())

	pending := g.Pending(strategy)
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(1), pending[0].Key.ID)

	d, err := g.OnReply(reply(t, 1, true))
	require.NoError(t, err)
	assert.Equal(t, DispatchStateReplied, d.State)
	assert.Equal(t, req.ID, d.RequestID)
	assert.Zero(t, g.Outstanding())

	_, err = g.OnReply(reply(t, 1, true))
	assert.True(t, errors.Is(err, ErrUnknownDispatch), err)

	d, err = g.OnReply(req)
	require.NoError(t, err)
	assert.Nil(t, d)

	failed := g.Route(req, host.Response{RequestID: req.ID, Messages: resp.Messages, Error: "unauthorized"})
	assert.Empty(t, failed.Calls)
	assert.Empty(t, failed.External)
}

func TestPublishResend(t *testing.T) {
	testCases := []struct {
		desc    string
		resend  bool
		wantErr bool
		want    []string
	}{
		{desc: "resend on reconnect", resend: true, want: []string{"a", "b", "c"}},
		{desc: "drop while disconnected", resend: false, wantErr: true, want: []string{"a", "c"}},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := context.Background()
			out := &publisher{}
			g := NewGateway(GatewayConfig{ResendOnReconnect: tc.resend}, out)

			require.NoError(t, g.Publish(ctx, host.Response{RequestID: "a"}))

			out.fail = true
			err := g.Publish(ctx, host.Response{RequestID: "b"})
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			out.fail = false
			err = g.Publish(ctx, host.Response{RequestID: "c"})
			if tc.wantErr {
				require.ErrorIs(t, err, ErrGatewayDisconnected)
			} else {
				require.NoError(t, err)
			}

			_, err = g.Reconnect(ctx)
			require.NoError(t, err)
			if !tc.resend {
				require.NoError(t, g.Publish(ctx, host.Response{RequestID: "c"}))
			}
			assert.Equal(t, tc.want, out.sent)
			assert.Zero(t, g.Buffered())
		})
	}
}

func TestReconnectKeepsUnsent(t *testing.T) {
	ctx := context.Background()
	out := &publisher{}
	g := NewGateway(GatewayConfig{ResendOnReconnect: true}, out)

	g.Disconnect()
	require.NoError(t, g.Publish(ctx, host.Response{RequestID: "a"}))
	require.NoError(t, g.Publish(ctx, host.Response{RequestID: "b"}))
	assert.Equal(t, 2, g.Buffered())

	out.fail = true
	n, err := g.Reconnect(ctx)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, g.Buffered())

	out.fail = false
	n, err = g.Reconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, out.sent)
}
