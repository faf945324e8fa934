package engine

import (
	"github.com/bytedance/sonic"

	"calc/internal/errors"
	"calc/internal/graph"
	"calc/internal/host"
	"calc/internal/ledger"
	"calc/internal/operation"
	"calc/internal/stats"
	"calc/internal/store"
)

// ConfigResponse answers the config query.
type ConfigResponse struct {
	Strategy graph.Strategy `json:"strategy"`
	Pending  *store.Pending `json:"pending,omitempty"`
}

// StatisticsResponse answers the statistics query.
type StatisticsResponse struct {
	Statistics stats.Statistics `json:"statistics"`
}

// BalancesResponse answers the balances query.
type BalancesResponse struct {
	Balances ledger.Coins `json:"balances"`
}

func encode(v any) (outcome, error) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return outcome{}, errors.Wrap(err, "encode query response")
	}
	return outcome{data: b}, nil
}

func (e *Engine) config(rec store.Record) (outcome, error) {
	return encode(ConfigResponse{Strategy: rec.Strategy, Pending: rec.Pending})
}

func (e *Engine) statistics(rec store.Record) (outcome, error) {
	return encode(StatisticsResponse{Statistics: rec.Statistics})
}

func (e *Engine) balances(ctx operation.Context, req host.Request, rec store.Record) (outcome, error) {
	q, err := decode[BalancesQuery](req)
	if err != nil {
		return outcome{}, err
	}
	denoms := q.Denoms
	if len(denoms) == 0 {
		denoms = rec.Strategy.Denoms
	}
	coins, err := e.available(ctx, rec.Strategy, ledger.NewDenoms(denoms...))
	if err != nil {
		return outcome{}, err
	}
	return encode(BalancesResponse{Balances: coins})
}
