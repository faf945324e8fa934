package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"calc/internal/errors"
	"calc/pkg/exception"
)

// Memory keeps encoded records in a map. Records are copied on every load
// and save.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte), now: time.Now}
}

func (m *Memory) Load(_ context.Context, contract string) (Record, error) {
	m.mu.RLock()
	data, ok := m.records[contract]
	m.mu.RUnlock()
	if !ok {
		return Record{}, errors.Wrapf(exception.ErrNotFound, "strategy %s", contract)
	}
	return decodeRecord(data)
}

func (m *Memory) Save(_ context.Context, rec Record) (Record, error) {
	if rec.Contract == "" {
		return Record{}, ErrEmptyContract
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersion(rec); err != nil {
		return Record{}, err
	}
	rec.Version++
	rec.UpdatedAt = m.now().UTC()
	data, err := sonic.Marshal(rec)
	if err != nil {
		return Record{}, errors.Wrap(err, "encode record")
	}
	m.records[rec.Contract] = data
	return decodeRecord(data)
}

func (m *Memory) checkVersion(rec Record) error {
	data, ok := m.records[rec.Contract]
	if !ok {
		if rec.Version != 0 {
			return errors.Wrapf(ErrVersionConflict, "strategy %s is gone", rec.Contract)
		}
		return nil
	}
	stored, err := decodeRecord(data)
	if err != nil {
		return err
	}
	if stored.Version != rec.Version {
		return errors.Wrapf(ErrVersionConflict, "strategy %s at %d, saving %d", rec.Contract, stored.Version, rec.Version)
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, contract string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, contract)
	return nil
}

func (m *Memory) Contracts(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.records))
	for contract := range m.records {
		out = append(out, contract)
	}
	sort.Strings(out)
	return out, nil
}

// Count returns the number of stored strategies.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrap(err, "decode record")
	}
	return rec, nil
}
