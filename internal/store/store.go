// Package store persists the engine state of every strategy contract.
package store

import (
	"context"
	"time"

	"calc/internal/errors"
	"calc/internal/graph"
	"calc/internal/stats"
)

var (
	ErrVersionConflict  = errors.New("store: record version conflict")
	ErrUnknownOperation = errors.New("store: unknown operation")
	ErrEmptyContract    = errors.New("store: contract address is empty")
)

// Operation execute, clear
type Operation uint8

const (
	_operation_beg Operation = iota
	OpExecute
	OpClear
	_operation_end
)

func (o Operation) IsAvailable() bool {
	return o > _operation_beg && o < _operation_end
}

func (o Operation) String() string {
	switch o {
	case OpExecute:
		return "execute"
	case OpClear:
		return "clear"
	default:
		return "unknown"
	}
}

func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Operation) UnmarshalText(text []byte) error {
	switch string(text) {
	case "execute":
		*o = OpExecute
	case "clear":
		*o = OpClear
	default:
		return errors.Wrapf(ErrUnknownOperation, "operation: %s", text)
	}
	return nil
}

// Pending marks a pass suspended after Executed emitted messages. The pass
// resumes at Next once the continuation arrives.
type Pending struct {
	Operation Operation `json:"operation"`
	Executed  uint16    `json:"executed"`
	Next      *uint16   `json:"next,omitempty"`
}

// Record is everything the engine keeps for one contract.
type Record struct {
	Contract   string           `json:"contract"`
	Strategy   graph.Strategy   `json:"strategy"`
	Statistics stats.Statistics `json:"statistics"`
	Pending    *Pending         `json:"pending,omitempty"`
	Version    uint64           `json:"version"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Store loads and saves records. Save succeeds only when rec.Version still
// matches the stored version, and bumps it.
type Store interface {
	Load(ctx context.Context, contract string) (Record, error)
	Save(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, contract string) error
	Contracts(ctx context.Context) ([]string, error)
}
