package ledger

import (
	"encoding/json"

	"calc/internal/errors"
)

var ErrUnknownMsgKind = errors.New("ledger: unknown message kind")

// MsgKind bank, contract, deposit
type MsgKind uint8

const (
	_msg_kind_beg MsgKind = iota
	MsgKindBank
	MsgKindContract
	MsgKindDeposit
	_msg_kind_end
)

func (k MsgKind) IsAvailable() bool {
	return k > _msg_kind_beg && k < _msg_kind_end
}

func (k MsgKind) String() string {
	switch k {
	case MsgKindBank:
		return "bank"
	case MsgKindContract:
		return "contract"
	case MsgKindDeposit:
		return "deposit"
	default:
		return "unknown"
	}
}

func (k MsgKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MsgKind) UnmarshalText(text []byte) error {
	for c := _msg_kind_beg + 1; c < _msg_kind_end; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return errors.Wrapf(ErrUnknownMsgKind, "kind: %s", text)
}

// Msg is an outbound ledger call. Bank sends Funds to To; Contract executes
// Body on To with Funds attached; Deposit submits Funds cross-chain with Memo.
type Msg struct {
	Kind  MsgKind         `json:"kind"`
	To    string          `json:"to,omitempty"`
	Funds Coins           `json:"funds,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
	Memo  string          `json:"memo,omitempty"`
}

func BankMsg(to string, funds Coins) Msg {
	return Msg{Kind: MsgKindBank, To: to, Funds: funds}
}

func ContractMsg(to string, body []byte, funds Coins) Msg {
	return Msg{Kind: MsgKindContract, To: to, Body: body, Funds: funds}
}

func DepositMsg(memo string, funds Coins) Msg {
	return Msg{Kind: MsgKindDeposit, Memo: memo, Funds: funds}
}

// ReplyOn never, always
type ReplyOn uint8

const (
	ReplyNever ReplyOn = iota
	ReplyAlways
)

// SubMsg is a message as handed to the host. Messages that reply carry an
// opaque payload the host echoes back with the result.
type SubMsg struct {
	ID      uint64          `json:"id"`
	Msg     Msg             `json:"msg"`
	ReplyOn ReplyOn         `json:"replyOn"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Recipient bank, contract, deposit
type Recipient struct {
	Kind    MsgKind         `json:"kind"`
	Address string          `json:"address,omitempty"`
	Msg     json.RawMessage `json:"msg,omitempty"`
	Memo    string          `json:"memo,omitempty"`
}

func BankRecipient(address string) Recipient {
	return Recipient{Kind: MsgKindBank, Address: address}
}

func ContractRecipient(address string, msg []byte) Recipient {
	return Recipient{Kind: MsgKindContract, Address: address, Msg: msg}
}

func DepositRecipient(memo string) Recipient {
	return Recipient{Kind: MsgKindDeposit, Memo: memo}
}

// Key identifies the recipient: the address, or the memo for deposits.
func (r Recipient) Key() string {
	if r.Kind == MsgKindDeposit {
		return r.Memo
	}
	return r.Address
}

// Send builds the message delivering funds to the recipient.
func (r Recipient) Send(funds Coins) Msg {
	switch r.Kind {
	case MsgKindContract:
		return ContractMsg(r.Address, r.Msg, funds)
	case MsgKindDeposit:
		return DepositMsg(r.Memo, funds)
	default:
		return BankMsg(r.Address, funds)
	}
}
