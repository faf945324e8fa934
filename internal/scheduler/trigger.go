// Package scheduler builds the messages that register future invocations
// with the trigger service, and provides a redis-backed trigger store for
// hosts that run that service themselves.
package scheduler

import (
	"encoding/json"
	"math"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"calc/internal/errors"
	"calc/internal/ledger"
)

var (
	ErrEmptyCondition = errors.New("scheduler: empty condition")
	ErrNotCreate      = errors.New("scheduler: message is not a create trigger")
)

// namespace seeds deterministic trigger ids.
var namespace = uuid.MustParse("6f1c2a52-3c6e-4d0f-9b1d-2f6a6f0c9e11")

// Condition is the trigger predicate the scheduler evaluates. Exactly one
// field is set.
type Condition struct {
	BlocksCompleted  *uint64    `json:"blocks_completed,omitempty"`
	TimestampElapsed *time.Time `json:"timestamp_elapsed,omitempty"`
}

// AtHeight is satisfied once the ledger reaches height.
func AtHeight(height uint64) Condition {
	return Condition{BlocksCompleted: &height}
}

// AtTime is satisfied once block time reaches t.
func AtTime(t time.Time) Condition {
	t = t.UTC()
	return Condition{TimestampElapsed: &t}
}

// Never is a condition that cannot be satisfied.
func Never() Condition {
	return AtHeight(math.MaxUint64)
}

func (c Condition) Validate() error {
	if c.BlocksCompleted == nil && c.TimestampElapsed == nil {
		return ErrEmptyCondition
	}
	return nil
}

// Satisfied reports whether env meets the condition.
func (c Condition) Satisfied(env ledger.Env) bool {
	switch {
	case c.BlocksCompleted != nil:
		return env.Height >= *c.BlocksCompleted
	case c.TimestampElapsed != nil:
		return !env.Time.Before(*c.TimestampElapsed)
	default:
		return false
	}
}

// CreateTrigger registers Msg to be sent to Contract once Condition holds.
type CreateTrigger struct {
	Condition Condition       `json:"condition"`
	Contract  string          `json:"contract_address"`
	Msg       json.RawMessage `json:"msg"`
	Executors []string        `json:"executors,omitempty"`
	Jitter    time.Duration   `json:"jitter,omitempty"`
}

// ID derives the trigger id from owner and every non-fund field, so
// re-registering the same trigger is a no-op for the scheduler.
func (t CreateTrigger) ID(owner string) (uuid.UUID, error) {
	b, err := sonic.ConfigStd.Marshal(t)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "encode trigger")
	}
	return uuid.NewSHA1(namespace, append([]byte(owner+"|"), b...)), nil
}

type executeMsg struct {
	Create *CreateTrigger `json:"create,omitempty"`
}

// CreateMsg is the message to scheduler registering trigger, paying rebate to
// whichever executor fires it.
func CreateMsg(scheduler string, trigger CreateTrigger, rebate ledger.Coins) (ledger.Msg, error) {
	if err := trigger.Condition.Validate(); err != nil {
		return ledger.Msg{}, err
	}
	body, err := sonic.Marshal(executeMsg{Create: &trigger})
	if err != nil {
		return ledger.Msg{}, errors.Wrap(err, "encode create trigger")
	}
	return ledger.ContractMsg(scheduler, body, rebate), nil
}

// Trigger is a stored registration.
type Trigger struct {
	ID     string        `json:"id"`
	Owner  string        `json:"owner"`
	Create CreateTrigger `json:"create"`
	Rebate ledger.Coins  `json:"rebate,omitempty"`
}

// DecodeCreate turns a message sent by owner to the scheduler back into the
// trigger it registers.
func DecodeCreate(owner string, msg ledger.Msg) (Trigger, error) {
	var body executeMsg
	if err := sonic.Unmarshal(msg.Body, &body); err != nil {
		return Trigger{}, errors.Wrap(err, "decode scheduler message")
	}
	if body.Create == nil {
		return Trigger{}, ErrNotCreate
	}
	id, err := body.Create.ID(owner)
	if err != nil {
		return Trigger{}, err
	}
	return Trigger{
		ID:     id.String(),
		Owner:  owner,
		Create: *body.Create,
		Rebate: msg.Funds,
	}, nil
}
