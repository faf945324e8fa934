package gateway

import (
	"sort"

	"calc/internal/errors"
	"calc/internal/ledger"
)

var (
	ErrNoReply           = errors.New("message does not ask for a reply")
	ErrDuplicateDispatch = errors.New("message already dispatched")
	ErrUnknownDispatch   = errors.New("dispatch not found")
)

// DispatchState tracks the lifecycle of a message that asked for a reply.
type DispatchState uint8

const (
	DispatchStateUnknown DispatchState = iota
	DispatchStateDispatched
	DispatchStateReplied
	DispatchStateFailed
)

func (s DispatchState) String() string {
	switch s {
	case DispatchStateDispatched:
		return "dispatched"
	case DispatchStateReplied:
		return "replied"
	case DispatchStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Key identifies a message by the strategy that emitted it and its id in the
// response. Ids restart in every response, so one key may name several
// outstanding messages; they resolve in dispatch order.
type Key struct {
	Contract string
	ID       uint64
}

// Dispatch holds the gateway's view of one message.
type Dispatch struct {
	RequestID string
	Key       Key
	Msg       ledger.SubMsg
	State     DispatchState
	Error     string
}

// StateMachine updates dispatches from responses and replies.
type StateMachine struct {
	pending map[Key][]*Dispatch
	count   int
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{pending: make(map[Key][]*Dispatch)}
}

// Outstanding reports how many dispatches await a reply.
func (m *StateMachine) Outstanding() int {
	return m.count
}

// Pending lists the dispatches of contract awaiting a reply, by id then
// dispatch order.
func (m *StateMachine) Pending(contract string) []Dispatch {
	var out []Dispatch
	for key, queue := range m.pending {
		if key.Contract != contract {
			continue
		}
		for _, d := range queue {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key.ID < out[j].Key.ID })
	return out
}

// ApplyDispatch records msg, emitted by contract while handling requestID, as
// awaiting a reply.
func (m *StateMachine) ApplyDispatch(requestID, contract string, msg ledger.SubMsg) (*Dispatch, error) {
	if msg.ReplyOn != ledger.ReplyAlways {
		return nil, ErrNoReply
	}
	key := Key{Contract: contract, ID: msg.ID}
	for _, d := range m.pending[key] {
		if d.RequestID == requestID {
			return nil, errors.Wrapf(ErrDuplicateDispatch, "%s message %d of %s", contract, msg.ID, requestID)
		}
	}
	d := &Dispatch{RequestID: requestID, Key: key, Msg: msg, State: DispatchStateDispatched}
	m.pending[key] = append(m.pending[key], d)
	m.count++
	return d, nil
}

// ApplyReply resolves the oldest dispatch under key.
func (m *StateMachine) ApplyReply(key Key, ok bool, reason string) (*Dispatch, error) {
	queue := m.pending[key]
	if len(queue) == 0 {
		return nil, errors.Wrapf(ErrUnknownDispatch, "%s message %d", key.Contract, key.ID)
	}
	d := queue[0]
	if len(queue) == 1 {
		delete(m.pending, key)
	} else {
		m.pending[key] = queue[1:]
	}
	m.count--

	if ok {
		d.State = DispatchStateReplied
	} else {
		d.State = DispatchStateFailed
		d.Error = reason
	}
	return d, nil
}
