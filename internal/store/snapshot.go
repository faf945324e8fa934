package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"calc/internal/errors"
	"calc/internal/stats"
)

// Snapshot captures every record at a point in time.
type Snapshot struct {
	Timestamp int64    `json:"timestamp"`
	LastSeq   uint64   `json:"lastSeq"`
	Records   []Record `json:"records"`
}

// Snapshot builds a snapshot of the store.
func (m *Memory) Snapshot(ctx context.Context) (Snapshot, error) {
	return m.SnapshotWithMeta(ctx, 0)
}

// SnapshotWithMeta builds a snapshot tagged with the last journal sequence
// it includes.
func (m *Memory) SnapshotWithMeta(ctx context.Context, lastSeq uint64) (Snapshot, error) {
	contracts, err := m.Contracts(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	records := make([]Record, 0, len(contracts))
	for _, contract := range contracts {
		rec, err := m.Load(ctx, contract)
		if err != nil {
			return Snapshot{}, err
		}
		records = append(records, rec)
	}
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		LastSeq:   lastSeq,
		Records:   records,
	}, nil
}

// ApplySnapshot replaces the store content with snapshot.
func (m *Memory) ApplySnapshot(snapshot Snapshot) error {
	records := make(map[string][]byte, len(snapshot.Records))
	for _, rec := range snapshot.Records {
		data, err := sonic.Marshal(rec)
		if err != nil {
			return errors.Wrapf(err, "encode record %s", rec.Contract)
		}
		records[rec.Contract] = data
	}
	m.mu.Lock()
	m.records = records
	m.mu.Unlock()
	return nil
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(err, "decode snapshot %s", path)
	}
	sort.Slice(snap.Records, func(i, j int) bool {
		return snap.Records[i].Contract < snap.Records[j].Contract
	})
	return snap, nil
}

// StatisticsOf indexes the statistics of every record by contract.
func (s Snapshot) StatisticsOf() map[string]stats.Statistics {
	out := make(map[string]stats.Statistics, len(s.Records))
	for _, rec := range s.Records {
		out[rec.Contract] = rec.Statistics
	}
	return out
}

// CompareStatistics checks that actual holds the same statistics as
// expected for every contract.
func CompareStatistics(expected, actual map[string]stats.Statistics) error {
	if len(expected) != len(actual) {
		return errors.Errorf("statistics length mismatch: expected=%d actual=%d", len(expected), len(actual))
	}
	for contract, want := range expected {
		got, ok := actual[contract]
		if !ok {
			return errors.Errorf("statistics missing contract: %s", contract)
		}
		if !want.Equal(got) {
			return errors.Errorf("statistics mismatch: contract=%s expected=%+v actual=%+v", contract, want, got)
		}
	}
	return nil
}
