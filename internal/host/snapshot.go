// Package host holds what a host hands the engine on each invocation: the
// request envelope and a point-in-time view of the outside world.
package host

import (
	"context"
	"io"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/registry"
	"calc/internal/venue"
	"calc/pkg/exception"
)

var ErrInsufficientFunds = errors.New("host: insufficient funds")

// Simulation configures the venue's answer for swaps offering one denom.
// Returned wins over Rate when both are set.
type Simulation struct {
	Returned *decimal.Decimal `json:"returned,omitempty"`
	Rate     *decimal.Decimal `json:"rate,omitempty"`
	Fee      decimal.Decimal  `json:"fee"`
}

// OrderKey locates a resting order.
type OrderKey struct {
	Pair  string          `json:"pair"`
	Owner string          `json:"owner"`
	Side  venue.Side      `json:"side"`
	Price decimal.Decimal `json:"price"`
}

func (k OrderKey) key() string {
	return k.Pair + "|" + k.Owner + "|" + k.Side.String() + "|" + k.Price.String()
}

// RestingOrder is an order and where it rests.
type RestingOrder struct {
	OrderKey
	Order venue.Order `json:"order"`
}

// ThorQuote is the quote returned for swaps between two assets.
type ThorQuote struct {
	From  string      `json:"from"`
	To    string      `json:"to"`
	Quote venue.Quote `json:"quote"`
}

// State is the serializable content of a Snapshot.
type State struct {
	Balances    map[string]ledger.Coins          `json:"balances,omitempty"`
	Pairs       map[string]venue.Pair            `json:"pairs,omitempty"`
	Books       map[string]venue.Book            `json:"books,omitempty"`
	Simulations map[string]map[string]Simulation `json:"simulations,omitempty"`
	Orders      []RestingOrder                   `json:"orders,omitempty"`
	Quotes      []ThorQuote                      `json:"quotes,omitempty"`
	Statuses    map[string]registry.Status       `json:"statuses,omitempty"`
	Prices      map[string]decimal.Decimal       `json:"prices,omitempty"`
}

// ReadState decodes a State from r.
func ReadState(r io.Reader) (State, error) {
	var st State
	if err := sonic.ConfigDefault.NewDecoder(r).Decode(&st); err != nil {
		return State{}, errors.Wrap(err, "decode host state")
	}
	return st, nil
}

// Snapshot answers every query a strategy makes from in-memory state. It is
// safe for concurrent use.
type Snapshot struct {
	mu          sync.RWMutex
	balances    map[string]map[string]decimal.Decimal
	pairs       map[string]venue.Pair
	books       map[string]venue.Book
	simulations map[string]Simulation
	orders      map[string]RestingOrder
	quotes      map[string]venue.Quote
	statuses    map[string]registry.Status
	prices      map[string]decimal.Decimal
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		balances:    map[string]map[string]decimal.Decimal{},
		pairs:       map[string]venue.Pair{},
		books:       map[string]venue.Book{},
		simulations: map[string]Simulation{},
		orders:      map[string]RestingOrder{},
		quotes:      map[string]venue.Quote{},
		statuses:    map[string]registry.Status{},
		prices:      map[string]decimal.Decimal{},
	}
}

// FromState builds a snapshot holding st.
func FromState(st State) *Snapshot {
	s := NewSnapshot()
	for address, coins := range st.Balances {
		for _, c := range coins {
			s.SetBalance(address, c.Denom, c.Amount)
		}
	}
	for addr, p := range st.Pairs {
		s.SetPair(addr, p)
	}
	for addr, b := range st.Books {
		s.SetBook(addr, b)
	}
	for addr, byDenom := range st.Simulations {
		for denom, sim := range byDenom {
			s.simulations[simKey(addr, denom)] = sim
		}
	}
	for _, o := range st.Orders {
		s.SetOrder(o.OrderKey, o.Order)
	}
	for _, q := range st.Quotes {
		s.SetQuote(q.From, q.To, q.Quote)
	}
	for contract, status := range st.Statuses {
		s.SetStatus(contract, status)
	}
	for asset, price := range st.Prices {
		s.SetPrice(asset, price)
	}
	return s
}

func simKey(pair, denom string) string {
	return pair + "|" + denom
}

func quoteKey(from, to string) string {
	return from + ">" + to
}

func (s *Snapshot) SetBalance(address, denom string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[address] == nil {
		s.balances[address] = map[string]decimal.Decimal{}
	}
	s.balances[address][denom] = amount
}

func (s *Snapshot) SetPair(address string, pair venue.Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[address] = pair
}

func (s *Snapshot) SetBook(address string, book venue.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[address] = book
}

// SetReturn fixes the amount returned for any offer of denom on pair.
func (s *Snapshot) SetReturn(pair, denom string, returned decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulations[simKey(pair, denom)] = Simulation{Returned: &returned}
}

// SetRate makes offers of denom on pair return floor(offer * rate).
func (s *Snapshot) SetRate(pair, denom string, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulations[simKey(pair, denom)] = Simulation{Rate: &rate}
}

func (s *Snapshot) SetOrder(key OrderKey, order venue.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[key.key()] = RestingOrder{OrderKey: key, Order: order}
}

func (s *Snapshot) RemoveOrder(key OrderKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, key.key())
}

func (s *Snapshot) SetQuote(from, to string, quote venue.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[quoteKey(from, to)] = quote
}

func (s *Snapshot) SetStatus(contract string, status registry.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[contract] = status
}

func (s *Snapshot) SetPrice(asset string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[asset] = price
}

// Transfer moves coins between two addresses.
func (s *Snapshot) Transfer(from, to string, coins ledger.Coins) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range coins {
		if s.balances[from][c.Denom].LessThan(c.Amount) {
			return errors.Wrapf(ErrInsufficientFunds, "%s holds %s%s, needs %s", from, s.balances[from][c.Denom], c.Denom, c)
		}
	}
	for _, c := range coins {
		s.balances[from][c.Denom] = s.balances[from][c.Denom].Sub(c.Amount)
		if s.balances[to] == nil {
			s.balances[to] = map[string]decimal.Decimal{}
		}
		s.balances[to][c.Denom] = s.balances[to][c.Denom].Add(c.Amount)
	}
	return nil
}

// Balance implements ledger.Bank.
func (s *Snapshot) Balance(_ context.Context, address, denom string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[address][denom], nil
}

// PairConfig implements venue.Fin.
func (s *Snapshot) PairConfig(_ context.Context, pair string) (venue.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pairs[pair]
	if !ok {
		return venue.Pair{}, errors.Wrapf(exception.ErrNotFound, "pair %s", pair)
	}
	return p, nil
}

// Book implements venue.Fin.
func (s *Snapshot) Book(_ context.Context, pair string, limit int) (venue.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[pair]
	if !ok {
		return venue.Book{}, errors.Wrapf(exception.ErrNotFound, "book %s", pair)
	}
	if limit > 0 {
		if len(b.Base) > limit {
			b.Base = b.Base[:limit]
		}
		if len(b.Quote) > limit {
			b.Quote = b.Quote[:limit]
		}
	}
	return b, nil
}

// Simulate implements venue.Fin.
func (s *Snapshot) Simulate(_ context.Context, pair string, offer ledger.Coin) (venue.Simulation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sim, ok := s.simulations[simKey(pair, offer.Denom)]
	if !ok {
		return venue.Simulation{}, errors.Wrapf(exception.ErrNotFound, "simulation %s on %s", offer.Denom, pair)
	}
	switch {
	case sim.Returned != nil:
		return venue.Simulation{Returned: *sim.Returned, Fee: sim.Fee}, nil
	case sim.Rate != nil:
		return venue.Simulation{Returned: offer.Amount.Mul(*sim.Rate).Floor(), Fee: sim.Fee}, nil
	default:
		return venue.Simulation{Fee: sim.Fee}, nil
	}
}

// Order implements venue.Fin.
func (s *Snapshot) Order(_ context.Context, pair, owner string, side venue.Side, price decimal.Decimal) (venue.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[OrderKey{Pair: pair, Owner: owner, Side: side, Price: price}.key()]
	if !ok {
		return venue.Order{}, venue.ErrOrderNotFound
	}
	return o.Order, nil
}

// QuoteSwap implements venue.Thorchain.
func (s *Snapshot) QuoteSwap(_ context.Context, req venue.QuoteRequest) (venue.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[quoteKey(req.FromAsset, req.ToAsset)]
	if !ok {
		return venue.Quote{}, errors.Wrapf(exception.ErrNotFound, "quote %s to %s", req.FromAsset, req.ToAsset)
	}
	return q, nil
}

// Status implements registry.Reader.
func (s *Snapshot) Status(_ context.Context, contract string) (registry.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[contract]
	if !ok {
		return 0, errors.Wrapf(exception.ErrNotFound, "strategy %s", contract)
	}
	return st, nil
}

// Price implements operation.Oracle.
func (s *Snapshot) Price(_ context.Context, asset string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[asset]
	if !ok {
		return decimal.Zero, errors.Wrapf(exception.ErrNotFound, "price %s", asset)
	}
	return p, nil
}
