// Package registry is the port to the service that creates strategies and
// tracks their status.
package registry

import (
	"context"

	"github.com/bytedance/sonic"

	"calc/internal/errors"
)

var ErrUnknownStatus = errors.New("registry: unknown status")

// Status active, paused, archived
type Status uint8

const (
	_status_beg Status = iota
	StatusActive
	StatusPaused
	StatusArchived
	_status_end
)

func (s Status) IsAvailable() bool {
	return s > _status_beg && s < _status_end
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusArchived:
		return "archived"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for c := _status_beg + 1; c < _status_end; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return errors.Wrapf(ErrUnknownStatus, "status: %s", text)
}

// Reader looks up strategy status.
type Reader interface {
	Status(ctx context.Context, contract string) (Status, error)
}

type executeStrategy struct {
	Execute struct {
		ContractAddress string `json:"contract_address"`
	} `json:"execute"`
}

// ExecuteMsg is the registry call that runs the strategy at contract. It is
// the default target of scheduler triggers.
func ExecuteMsg(contract string) ([]byte, error) {
	var msg executeStrategy
	msg.Execute.ContractAddress = contract
	b, err := sonic.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "encode registry execute")
	}
	return b, nil
}

// DecodeExecuteMsg returns the strategy an ExecuteMsg body runs.
func DecodeExecuteMsg(body []byte) (string, error) {
	var msg executeStrategy
	if err := sonic.Unmarshal(body, &msg); err != nil {
		return "", errors.Wrap(err, "decode registry execute")
	}
	if msg.Execute.ContractAddress == "" {
		return "", errors.New("registry execute names no strategy")
	}
	return msg.Execute.ContractAddress, nil
}
