package engine

import (
	"encoding/json"

	"github.com/bytedance/sonic"

	"calc/internal/errors"
	"calc/internal/graph"
	"calc/internal/host"
	"calc/internal/ledger"
	"calc/internal/operation"
	"calc/internal/store"
)

// InitMsg creates a strategy. The sender becomes its manager; the owner
// defaults to the sender.
type InitMsg struct {
	Owner      string                `json:"owner,omitempty"`
	Label      string                `json:"label,omitempty"`
	Affiliates []operation.Affiliate `json:"affiliates,omitempty"`
	Nodes      []graph.Node          `json:"nodes"`
}

// WithdrawMsg asks for amounts to be sent to the owner.
type WithdrawMsg struct {
	Amounts ledger.Coins `json:"amounts"`
}

// UpdateMsg replaces the graph of a strategy.
type UpdateMsg struct {
	Nodes []graph.Node `json:"nodes"`
}

// ProcessMsg is the continuation a strategy sends itself after a node
// emitted messages.
type ProcessMsg struct {
	Operation store.Operation `json:"operation"`
	Previous  *uint16         `json:"previous,omitempty"`
}

// ReplyMsg is the host's report on a message that asked for a reply.
type ReplyMsg struct {
	ID      uint64          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
}

// BalancesQuery selects the denoms to report. Empty means every touched
// denom.
type BalancesQuery struct {
	Denoms ledger.Denoms `json:"denoms,omitempty"`
}

// Call is an entry point invocation carried in a contract message to the
// strategy itself.
type Call struct {
	Entry host.Entry      `json:"entry"`
	Body  json.RawMessage `json:"body,omitempty"`
}

func newCall(entry host.Entry, body any) (Call, error) {
	b, err := sonic.Marshal(body)
	if err != nil {
		return Call{}, errors.Wrapf(err, "encode %s call", entry)
	}
	return Call{Entry: entry, Body: b}, nil
}

// Msg builds the contract message delivering the call to contract.
func (c Call) Msg(contract string) (ledger.Msg, error) {
	b, err := sonic.Marshal(c)
	if err != nil {
		return ledger.Msg{}, errors.Wrapf(err, "encode %s call", c.Entry)
	}
	return ledger.ContractMsg(contract, b, nil), nil
}

// DecodeCall turns a contract message addressed to a strategy back into the
// request it invokes. It reports false when msg is not a strategy call.
func DecodeCall(msg ledger.Msg, sender string, env ledger.Env) (host.Request, bool) {
	if msg.Kind != ledger.MsgKindContract || len(msg.Body) == 0 {
		return host.Request{}, false
	}
	var c Call
	if err := sonic.Unmarshal(msg.Body, &c); err != nil || !c.Entry.IsAvailable() {
		return host.Request{}, false
	}
	env.Contract = msg.To
	return host.NewRequest(c.Entry, sender, env, c.Body), true
}

func decode[T any](req host.Request) (T, error) {
	var v T
	if len(req.Body) == 0 {
		return v, nil
	}
	if err := sonic.Unmarshal(req.Body, &v); err != nil {
		return v, invalid(errors.Wrapf(err, "decode %s body", req.Entry))
	}
	return v, nil
}
