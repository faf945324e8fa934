package engine

import (
	"github.com/yanun0323/logs"

	"calc/internal/graph"
	"calc/internal/host"
	"calc/internal/operation"
	"calc/internal/store"
)

// run walks the graph from cursor. A visit that emits messages suspends the
// pass: the node is persisted, a pending marker names it and a Process call
// to self resumes at its successor once its messages went through. A visit
// without messages commits in place. The pass visits at most one node per
// graph node.
func (e *Engine) run(ctx operation.Context, rec *store.Record, cursor *uint16, out *outcome) error {
	rec.Pending = nil
	for budget := len(rec.Strategy.Nodes); cursor != nil && budget > 0; budget-- {
		node, ok := rec.Strategy.Node(*cursor)
		if !ok {
			break
		}

		visited, effects, successor := node.Visit(ctx)
		e.metrics.IncVisit()
		e.logSkips(rec.Contract, visited.Index, effects.Events)
		out.effects = out.effects.Merge(effects)

		if effects.HasMessages() {
			rec.Strategy = rec.Strategy.WithNode(visited)
			rec.Pending = &store.Pending{Operation: store.OpExecute, Executed: visited.Index, Next: successor}
			e.metrics.IncSuspend()
			executed := visited.Index
			return out.call(host.EntryProcess, ProcessMsg{Operation: store.OpExecute, Previous: &executed})
		}

		rec.Strategy = rec.Strategy.WithNode(e.commit(ctx, rec.Contract, visited, out))
		cursor = successor
	}
	return nil
}

// commit commits n. A failed commit keeps n and is reported as skipped.
func (e *Engine) commit(ctx operation.Context, contract string, n graph.Node, out *outcome) graph.Node {
	committed, err := n.Commit(ctx)
	if err != nil {
		skipped := operation.Skipped("commit", err)
		e.logSkips(contract, n.Index, skipped.Events)
		out.effects = out.effects.Merge(skipped)
		return n
	}
	return committed
}

func (e *Engine) commitAll(ctx operation.Context, rec *store.Record, out *outcome) {
	for _, n := range rec.Strategy.Nodes {
		rec.Strategy = rec.Strategy.WithNode(e.commit(ctx, rec.Contract, n, out))
	}
}

// suspendClear marks the record as waiting for a Process clear call and
// queues that call.
func suspendClear(rec *store.Record, out *outcome) error {
	rec.Pending = &store.Pending{Operation: store.OpClear}
	return out.call(host.EntryProcess, ProcessMsg{Operation: store.OpClear})
}

func (e *Engine) process(ctx operation.Context, req host.Request, rec store.Record) (outcome, error) {
	if err := authorize(req, rec.Contract); err != nil {
		return outcome{}, err
	}
	msg, err := decode[ProcessMsg](req)
	if err != nil {
		return outcome{}, err
	}

	var out outcome
	switch msg.Operation {
	case store.OpExecute:
		p := rec.Pending
		if p == nil || p.Operation != store.OpExecute || msg.Previous == nil || *msg.Previous != p.Executed {
			e.metrics.IncStaleResume()
			logs.Infof("strategy %s: continuation after node %v does not match pending %+v, ignored", rec.Contract, index(msg.Previous), p)
			return outcome{}, nil
		}
		if node, ok := rec.Strategy.Node(p.Executed); ok {
			rec.Strategy = rec.Strategy.WithNode(e.commit(ctx, rec.Contract, node, &out))
		}
		if err := e.run(ctx, &rec, p.Next, &out); err != nil {
			return outcome{}, err
		}
	case store.OpClear:
		e.commitAll(ctx, &rec, &out)
		rec.Pending = nil
	default:
		return outcome{}, invalid(store.ErrUnknownOperation)
	}
	out.rec = &rec
	return out, nil
}

func index(i *uint16) any {
	if i == nil {
		return "none"
	}
	return *i
}
