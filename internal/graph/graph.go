// Package graph holds the strategy graph: typed nodes linked by index
// references, validated to be a bounded acyclic graph.
package graph

import (
	"container/heap"
	"sort"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/operation"
	"calc/pkg/exception"
)

// MaxStrategySize caps the summed size of every node.
const MaxStrategySize = 50

// Strategy is the persisted graph of one strategy contract.
type Strategy struct {
	Owner      string                `json:"owner"`
	Manager    string                `json:"manager"`
	Contract   string                `json:"contract_address"`
	Label      string                `json:"label,omitempty"`
	Affiliates []operation.Affiliate `json:"affiliates,omitempty"`
	Nodes      []Node                `json:"nodes"`
	Denoms     ledger.Denoms         `json:"denoms,omitempty"`
	Escrowed   ledger.Denoms         `json:"escrowed,omitempty"`
}

// Size sums the node sizes.
func (s Strategy) Size() int {
	size := 0
	for _, n := range s.Nodes {
		size += n.Size()
	}
	return size
}

// Node returns the node at index.
func (s Strategy) Node(index uint16) (Node, bool) {
	for _, n := range s.Nodes {
		if n.Index == index {
			return n, true
		}
	}
	return Node{}, false
}

// Validate checks the static shape of the graph.
func (s Strategy) Validate() error {
	if len(s.Nodes) == 0 {
		return errors.Wrap(exception.ErrInvalidGraph, "no nodes")
	}
	if total := operation.TotalBps(s.Affiliates); total > operation.MaxTotalAffiliateBps {
		return errors.Wrapf(exception.ErrAffiliateBpsTooLarge, "%d bps", total)
	}

	seen := make(map[uint16]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		if _, ok := seen[n.Index]; ok {
			return errors.Wrapf(exception.ErrInvalidGraph, "duplicate node index %d", n.Index)
		}
		seen[n.Index] = struct{}{}
		if err := n.validate(); err != nil {
			return errors.Wrap(exception.ErrInvalidGraph, err.Error())
		}
	}
	for _, n := range s.Nodes {
		for _, ref := range n.Edges() {
			if _, ok := seen[ref]; !ok {
				return errors.Wrapf(exception.ErrInvalidGraph, "node %d references missing node %d", n.Index, ref)
			}
		}
	}
	if err := s.validateAcyclic(); err != nil {
		return err
	}
	if size := s.Size(); size > MaxStrategySize {
		return errors.Wrapf(exception.ErrStrategyTooLarge, "size %d, max %d", size, MaxStrategySize)
	}
	return nil
}

type indexHeap []uint16

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(uint16)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Order returns a topological order of the node indices, smallest ready
// index first. It is shorter than the node list when the graph has a cycle.
func (s Strategy) Order() []uint16 {
	indeg := make(map[uint16]int, len(s.Nodes))
	outgoing := make(map[uint16][]uint16, len(s.Nodes))
	for _, n := range s.Nodes {
		indeg[n.Index] += 0
		for _, ref := range n.Edges() {
			outgoing[n.Index] = append(outgoing[n.Index], ref)
			indeg[ref]++
		}
	}

	ready := &indexHeap{}
	for index, d := range indeg {
		if d == 0 {
			heap.Push(ready, index)
		}
	}

	out := make([]uint16, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(uint16)
		out = append(out, n)
		for _, m := range outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

func (s Strategy) validateAcyclic() error {
	order := s.Order()
	if len(order) == len(s.Nodes) {
		return nil
	}

	placed := make(map[uint16]struct{}, len(order))
	for _, index := range order {
		placed[index] = struct{}{}
	}
	var cyclic []uint16
	for _, n := range s.Nodes {
		if _, ok := placed[n.Index]; !ok {
			cyclic = append(cyclic, n.Index)
		}
	}
	sort.Slice(cyclic, func(i, j int) bool { return cyclic[i] < cyclic[j] })
	return errors.Wrapf(exception.ErrInvalidGraph, "cycle through nodes %v", cyclic)
}

// Init validates the graph, initializes every node and derives the denom
// sets.
func (s Strategy) Init(ctx operation.Context) (Strategy, error) {
	if err := s.Validate(); err != nil {
		return s, err
	}

	nodes := make([]Node, len(s.Nodes))
	for i, n := range s.Nodes {
		next, err := n.Init(ctx, s.Affiliates)
		if err != nil {
			return s, err
		}
		nodes[i] = next
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Index < nodes[j].Index })
	s.Nodes = nodes

	if size := s.Size(); size > MaxStrategySize {
		return s, errors.Wrapf(exception.ErrStrategyTooLarge, "size %d, max %d", size, MaxStrategySize)
	}
	return s.Refresh(ctx)
}

// Refresh recomputes the touched and escrowed denom sets from the nodes.
func (s Strategy) Refresh(ctx operation.Context) (Strategy, error) {
	var denoms, escrowed ledger.Denoms
	for _, n := range s.Nodes {
		d, err := n.Denoms(ctx)
		if err != nil {
			return s, errors.Wrapf(err, "denoms of node %d", n.Index)
		}
		e, err := n.Escrowed(ctx)
		if err != nil {
			return s, errors.Wrapf(err, "escrowed of node %d", n.Index)
		}
		denoms, escrowed = denoms.Union(d), escrowed.Union(e)
	}
	s.Denoms, s.Escrowed = denoms, escrowed
	return s, nil
}

// Preserve checks that replacing prev with s keeps the guarantees given to
// distribution recipients: every distribute node kept at the same index
// must keep its shares, immutable destinations and denoms.
func (s Strategy) Preserve(prev Strategy) error {
	for _, n := range s.Nodes {
		if n.Action == nil || n.Action.Distribute == nil {
			continue
		}
		old, ok := prev.Node(n.Index)
		if !ok || old.Action == nil || old.Action.Distribute == nil {
			continue
		}
		if err := n.Action.Distribute.Preserve(*old.Action.Distribute); err != nil {
			return errors.Wrapf(err, "node %d", n.Index)
		}
	}
	return nil
}

// WithNode returns the strategy with the node at n.Index replaced by n.
func (s Strategy) WithNode(n Node) Strategy {
	nodes := make([]Node, len(s.Nodes))
	copy(nodes, s.Nodes)
	for i := range nodes {
		if nodes[i].Index == n.Index {
			nodes[i] = n
		}
	}
	s.Nodes = nodes
	return s
}
