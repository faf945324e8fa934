// Package stats aggregates what a strategy has moved. Statistics form a
// commutative monoid under Merge with the zero value as identity, so
// continuation results may be folded in any order.
package stats

import (
	"sort"

	"github.com/bytedance/sonic"

	"calc/internal/errors"
	"calc/internal/ledger"
)

// Distribution is the total sent to one recipient.
type Distribution struct {
	Recipient ledger.Recipient `json:"recipient"`
	Amount    ledger.Coins     `json:"amount"`
}

// Statistics are the cumulative totals of a strategy.
type Statistics struct {
	Swapped     ledger.Coins   `json:"swapped,omitempty"`
	Filled      ledger.Coins   `json:"filled,omitempty"`
	Distributed []Distribution `json:"distributed,omitempty"`
	Withdrawn   ledger.Coins   `json:"withdrawn,omitempty"`
}

// Merge returns the sum of s and other.
func (s Statistics) Merge(other Statistics) Statistics {
	return Statistics{
		Swapped:     s.Swapped.Merge(other.Swapped),
		Filled:      s.Filled.Merge(other.Filled),
		Distributed: mergeDistributions(s.Distributed, other.Distributed),
		Withdrawn:   s.Withdrawn.Merge(other.Withdrawn),
	}
}

func (s Statistics) IsZero() bool {
	return s.Swapped.IsZero() && s.Filled.IsZero() && len(s.Distributed) == 0 && s.Withdrawn.IsZero()
}

// Equal compares normalized statistics.
func (s Statistics) Equal(other Statistics) bool {
	a, b := s.Merge(Statistics{}), other.Merge(Statistics{})
	if !a.Swapped.Equal(b.Swapped) || !a.Filled.Equal(b.Filled) || !a.Withdrawn.Equal(b.Withdrawn) {
		return false
	}
	if len(a.Distributed) != len(b.Distributed) {
		return false
	}
	for i := range a.Distributed {
		if distributionKey(a.Distributed[i].Recipient) != distributionKey(b.Distributed[i].Recipient) {
			return false
		}
		if !a.Distributed[i].Amount.Equal(b.Distributed[i].Amount) {
			return false
		}
	}
	return true
}

// DistributedTo returns the total sent to the recipient with key.
func (s Statistics) DistributedTo(key string) ledger.Coins {
	var out ledger.Coins
	for _, d := range s.Distributed {
		if d.Recipient.Key() == key {
			out = out.Merge(d.Amount)
		}
	}
	return out
}

// distributionKey includes the kind so that an address used as both a bank
// and a contract recipient stays two entries and merge order cannot matter.
func distributionKey(r ledger.Recipient) string {
	return r.Kind.String() + ":" + r.Key()
}

func mergeDistributions(a, b []Distribution) []Distribution {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	byKey := make(map[string]Distribution, len(a)+len(b))
	for _, d := range append(append([]Distribution{}, a...), b...) {
		key := distributionKey(d.Recipient)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = Distribution{Recipient: d.Recipient, Amount: ledger.NewCoins(d.Amount...)}
			continue
		}
		existing.Amount = existing.Amount.Merge(d.Amount)
		byKey[key] = existing
	}
	out := make([]Distribution, 0, len(byKey))
	for _, d := range byKey {
		if d.Amount.IsZero() {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return distributionKey(out[i].Recipient) < distributionKey(out[j].Recipient)
	})
	return out
}

// Payload travels with an outbound message and is applied when the host
// reports the message succeeded.
type Payload struct {
	Statistics Statistics     `json:"statistics"`
	Events     []ledger.Event `json:"events,omitempty"`
}

func (p Payload) Encode() ([]byte, error) {
	b, err := sonic.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}
	return b, nil
}

func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if len(data) == 0 {
		return p, nil
	}
	if err := sonic.Unmarshal(data, &p); err != nil {
		return Payload{}, errors.Wrap(err, "decode payload")
	}
	return p, nil
}
