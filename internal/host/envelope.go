package host

import (
	"encoding/json"

	"github.com/google/uuid"

	"calc/internal/errors"
	"calc/internal/ledger"
)

var ErrUnknownEntry = errors.New("host: unknown entry")

// Entry names the engine entry point a request targets.
type Entry uint8

const (
	_entry_beg Entry = iota
	EntryInit
	EntryExecute
	EntryWithdraw
	EntryUpdate
	EntryCancel
	EntryProcess
	EntryReply
	EntryConfig
	EntryStatistics
	EntryBalances
	_entry_end
)

func (e Entry) IsAvailable() bool {
	return e > _entry_beg && e < _entry_end
}

// IsQuery reports whether the entry is read only.
func (e Entry) IsQuery() bool {
	return e >= EntryConfig && e < _entry_end
}

func (e Entry) String() string {
	switch e {
	case EntryInit:
		return "init"
	case EntryExecute:
		return "execute"
	case EntryWithdraw:
		return "withdraw"
	case EntryUpdate:
		return "update"
	case EntryCancel:
		return "cancel"
	case EntryProcess:
		return "process"
	case EntryReply:
		return "reply"
	case EntryConfig:
		return "config"
	case EntryStatistics:
		return "statistics"
	case EntryBalances:
		return "balances"
	default:
		return "unknown"
	}
}

func (e Entry) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *Entry) UnmarshalText(text []byte) error {
	for c := _entry_beg + 1; c < _entry_end; c++ {
		if c.String() == string(text) {
			*e = c
			return nil
		}
	}
	return errors.Wrapf(ErrUnknownEntry, "entry: %s", text)
}

// Request is one invocation of a strategy contract.
type Request struct {
	ID       string          `json:"id"`
	Entry    Entry           `json:"entry"`
	Contract string          `json:"contract"`
	Sender   string          `json:"sender"`
	Env      ledger.Env      `json:"env"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// NewRequest stamps a fresh request id.
func NewRequest(entry Entry, sender string, env ledger.Env, body []byte) Request {
	return Request{
		ID:       uuid.NewString(),
		Entry:    entry,
		Contract: env.Contract,
		Sender:   sender,
		Env:      env,
		Body:     body,
	}
}

// Response is the result of a Request. Error is set when the invocation was
// rejected; a rejected invocation carries no messages.
type Response struct {
	RequestID string          `json:"request_id"`
	Messages  []ledger.SubMsg `json:"messages,omitempty"`
	Events    []ledger.Event  `json:"events,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (r Response) Failed() bool {
	return r.Error != ""
}
