package graph

import (
	"calc/internal/action"
	"calc/internal/condition"
	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/operation"
)

var (
	ErrUnknownKind  = errors.New("graph: unknown node kind")
	ErrKindMismatch = errors.New("graph: node content does not match its kind")
)

// Kind action, condition
type Kind uint8

const (
	_kind_beg Kind = iota
	KindAction
	KindCondition
	_kind_end
)

func (k Kind) IsAvailable() bool {
	return k > _kind_beg && k < _kind_end
}

func (k Kind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindCondition:
		return "condition"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "action":
		*k = KindAction
	case "condition":
		*k = KindCondition
	default:
		return errors.Wrapf(ErrUnknownKind, "kind: %s", text)
	}
	return nil
}

// Node is one vertex of a strategy. Action nodes continue at Next;
// condition nodes branch to OnSuccess or OnFail. A nil reference ends the
// pass.
type Node struct {
	Kind      Kind                 `json:"kind"`
	Index     uint16               `json:"index"`
	Action    *action.Action       `json:"action,omitempty"`
	Condition *condition.Condition `json:"condition,omitempty"`
	Next      *uint16              `json:"next,omitempty"`
	OnSuccess *uint16              `json:"on_success,omitempty"`
	OnFail    *uint16              `json:"on_fail,omitempty"`
}

// ActionNode builds an action node continuing at next.
func ActionNode(index uint16, a action.Action, next *uint16) Node {
	return Node{Kind: KindAction, Index: index, Action: &a, Next: next}
}

// ConditionNode builds a condition node branching on c.
func ConditionNode(index uint16, c condition.Condition, onSuccess, onFail *uint16) Node {
	return Node{Kind: KindCondition, Index: index, Condition: &c, OnSuccess: onSuccess, OnFail: onFail}
}

// At is a helper for node references.
func At(index uint16) *uint16 {
	return &index
}

func (n Node) validate() error {
	switch n.Kind {
	case KindAction:
		if n.Action == nil || n.Condition != nil || n.OnSuccess != nil || n.OnFail != nil {
			return errors.Wrapf(ErrKindMismatch, "node %d", n.Index)
		}
	case KindCondition:
		if n.Condition == nil || n.Action != nil || n.Next != nil {
			return errors.Wrapf(ErrKindMismatch, "node %d", n.Index)
		}
	default:
		return errors.Wrapf(ErrUnknownKind, "node %d", n.Index)
	}
	return nil
}

// Edges are the nodes n may continue at.
func (n Node) Edges() []uint16 {
	var out []uint16
	for _, ref := range []*uint16{n.Next, n.OnSuccess, n.OnFail} {
		if ref != nil {
			out = append(out, *ref)
		}
	}
	return out
}

// Label names the node for events and logs.
func (n Node) Label() string {
	if n.Action != nil {
		return n.Action.Kind()
	}
	if n.Condition != nil {
		return n.Condition.Kind()
	}
	return n.Kind.String()
}

func (n Node) Size() int {
	switch {
	case n.Action != nil:
		return n.Action.Size()
	case n.Condition != nil:
		return n.Condition.Size()
	default:
		return 0
	}
}

func (n Node) withAction(a action.Action) Node {
	n.Action = &a
	return n
}

func (n Node) withCondition(c condition.Condition) Node {
	n.Condition = &c
	return n
}

func (n Node) Init(ctx operation.Context, affiliates []operation.Affiliate) (Node, error) {
	if n.Action != nil {
		a, err := n.Action.Init(ctx, affiliates)
		if err != nil {
			return n, errors.Wrapf(err, "node %d", n.Index)
		}
		return n.withAction(a), nil
	}
	c, err := n.Condition.Init(ctx, affiliates)
	if err != nil {
		return n, errors.Wrapf(err, "node %d", n.Index)
	}
	return n.withCondition(c), nil
}

// Visit runs the node and returns the successor to continue at. A condition
// that cannot be evaluated is reported as skipped and takes the OnFail
// branch.
func (n Node) Visit(ctx operation.Context) (Node, operation.Effects, *uint16) {
	if n.Action != nil {
		a, effects := n.Action.Execute(ctx)
		return n.withAction(a), effects, n.Next
	}

	var effects operation.Effects
	ok, err := n.Condition.Satisfied(ctx)
	if err != nil {
		effects = operation.Skipped(n.Condition.Kind(), err)
	}
	c, executed := n.Condition.Execute(ctx)
	effects = effects.Merge(executed)
	if ok {
		return n.withCondition(c), effects, n.OnSuccess
	}
	return n.withCondition(c), effects, n.OnFail
}

func (n Node) Denoms(ctx operation.Context) (ledger.Denoms, error) {
	if n.Action != nil {
		return n.Action.Denoms(ctx)
	}
	return n.Condition.Denoms(ctx)
}

func (n Node) Escrowed(ctx operation.Context) (ledger.Denoms, error) {
	if n.Action != nil {
		return n.Action.Escrowed(ctx)
	}
	return n.Condition.Escrowed(ctx)
}

func (n Node) Balances(ctx operation.Context, denoms ledger.Denoms) (ledger.Coins, error) {
	if n.Action != nil {
		return n.Action.Balances(ctx, denoms)
	}
	return n.Condition.Balances(ctx, denoms)
}

func (n Node) Withdraw(ctx operation.Context, desired ledger.Denoms) (Node, operation.Effects, error) {
	if n.Action != nil {
		a, effects, err := n.Action.Withdraw(ctx, desired)
		return n.withAction(a), effects, err
	}
	c, effects, err := n.Condition.Withdraw(ctx, desired)
	return n.withCondition(c), effects, err
}

func (n Node) Cancel(ctx operation.Context) (Node, operation.Effects, error) {
	if n.Action != nil {
		a, effects, err := n.Action.Cancel(ctx)
		return n.withAction(a), effects, err
	}
	c, effects, err := n.Condition.Cancel(ctx)
	return n.withCondition(c), effects, err
}

func (n Node) Commit(ctx operation.Context) (Node, error) {
	if n.Action != nil {
		a, err := n.Action.Commit(ctx)
		return n.withAction(a), err
	}
	c, err := n.Condition.Commit(ctx)
	return n.withCondition(c), err
}
