package engine

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"calc/internal/errors"
	"calc/internal/host"
	"calc/internal/recorder"
	"calc/internal/stats"
	"calc/internal/store"
)

// RebuildStatistics starts from the statistics in snapshot and applies
// every accepted successful reply journaled after it. It returns the
// statistics by contract and the last sequence seen.
func RebuildStatistics(ctx context.Context, snapshot store.Snapshot, dir string) (map[string]stats.Statistics, uint64, error) {
	p, err := recorder.NewPlayback(recorder.PlaybackConfig{Dir: dir, AfterSeq: snapshot.LastSeq})
	if err != nil {
		return nil, 0, err
	}

	out := snapshot.StatisticsOf()
	last, applied := snapshot.LastSeq, 0
	err = recorder.Replay(ctx, p, func(x recorder.Exchange) error {
		last = x.Seq
		if x.Request.Entry != host.EntryReply || x.Response.Failed() {
			return nil
		}
		var msg ReplyMsg
		if err := sonic.Unmarshal(x.Request.Body, &msg); err != nil {
			return errors.Wrapf(err, "decode reply of record %d", x.Seq)
		}
		if !msg.OK {
			return nil
		}
		payload, err := stats.DecodePayload(msg.Payload)
		if err != nil {
			return errors.Wrapf(err, "record %d", x.Seq)
		}
		out[x.Request.Contract] = out[x.Request.Contract].Merge(payload.Statistics)
		applied++
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	logs.Infof("rebuilt statistics of %d strategies, %d replies applied, last seq %d", len(out), applied, last)
	return out, last, nil
}
