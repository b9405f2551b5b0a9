package progress

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps records in a map guarded by a single mutex. Training events arrive at most
// once per epoch so contention is negligible.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]*Record)}
}

func (m *MemoryStore) Start(_ context.Context, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[taskID] = &Record{Status: StatusStarting, Logs: []string{}}
	return nil
}

func (m *MemoryStore) Update(_ context.Context, taskID int64, progress float64, epoch int, logLine string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[taskID]
	if !ok {
		return nil
	}
	rec.Progress = progress
	rec.CurrentEpoch = epoch
	if logLine != "" {
		rec.Logs = append(rec.Logs, logLine)
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, taskID int64) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[taskID]
	if !ok {
		return Unknown(), nil
	}
	out := *rec
	out.Logs = slices.Clone(rec.Logs)
	if out.Logs == nil {
		out.Logs = []string{}
	}
	return out, nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, taskID int64, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[taskID]
	if !ok {
		return nil
	}
	rec.Status = StatusFailed
	rec.Error = errText
	rec.Logs = append(rec.Logs, errText)
	return nil
}

func (m *MemoryStore) MarkStatus(_ context.Context, taskID int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[taskID]; ok {
		rec.Status = status
	}
	return nil
}
