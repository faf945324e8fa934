package recorder

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"calc/internal/errors"
	"calc/internal/host"
	"calc/internal/obs"
)

// Journal records every invocation as a request record followed by its
// response record.
type Journal struct {
	w      *Writer
	seq    atomic.Uint64
	traces *obs.TraceGenerator
	now    func() time.Time
}

// NewJournal continues the sequence after lastSeq.
func NewJournal(w *Writer, lastSeq uint64, traces *obs.TraceGenerator) *Journal {
	if traces == nil {
		traces = obs.NewTraceGenerator(0)
	}
	j := &Journal{w: w, traces: traces, now: time.Now}
	j.seq.Store(lastSeq)
	return j
}

// LastSeq is the sequence of the last record handed to the writer.
func (j *Journal) LastSeq() uint64 {
	return j.seq.Load()
}

// Record journals one invocation received at received.
func (j *Journal) Record(ctx context.Context, req host.Request, resp host.Response, received time.Time) error {
	reqBody, err := sonic.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encode journal request")
	}
	respBody, err := sonic.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "encode journal response")
	}

	trace := j.traces.Next()
	last := j.seq.Add(2)
	event := req.Env.Time.UTC().UnixNano()
	if req.Env.Time.IsZero() {
		event = 0
	}

	if err := j.w.Append(ctx, Header{
		Kind:    KindRequest,
		Entry:   req.Entry,
		Seq:     last - 1,
		TsEvent: event,
		TsRecv:  received.UTC().UnixNano(),
		TraceID: trace,
	}, reqBody); err != nil {
		return err
	}
	return j.w.Append(ctx, Header{
		Kind:    KindResponse,
		Entry:   req.Entry,
		Seq:     last,
		TsEvent: event,
		TsRecv:  j.now().UTC().UnixNano(),
		TraceID: trace,
	}, respBody)
}

// Exchange is a journaled invocation.
type Exchange struct {
	Seq      uint64
	Request  host.Request
	Response host.Response
}

// Replay pairs request and response records by trace and calls fn for each
// complete exchange, in the order responses were written. A request whose
// response never made it to the journal is dropped.
func Replay(ctx context.Context, p *Playback, fn func(Exchange) error) error {
	pending := make(map[uint64]host.Request)
	return p.Run(ctx, func(h Header, payload []byte) error {
		switch h.Kind {
		case KindRequest:
			var req host.Request
			if err := sonic.Unmarshal(payload, &req); err != nil {
				return errors.Wrapf(err, "decode request record %d", h.Seq)
			}
			pending[h.TraceID] = req
		case KindResponse:
			req, ok := pending[h.TraceID]
			if !ok {
				return nil
			}
			delete(pending, h.TraceID)
			var resp host.Response
			if err := sonic.Unmarshal(payload, &resp); err != nil {
				return errors.Wrapf(err, "decode response record %d", h.Seq)
			}
			return fn(Exchange{Seq: h.Seq, Request: req, Response: resp})
		}
		return nil
	})
}
