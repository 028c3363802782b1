package storage

import (
	"context"
	"sync"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// Memory is a Store that keeps the snapshot in process memory.
// Loads and saves copy the snapshot so callers never share state with it.
type Memory struct {
	mu   sync.RWMutex
	snap *domain.Snapshot
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory store seeded with snap; nil starts empty.
func NewMemory(snap *domain.Snapshot) *Memory {
	if snap == nil {
		snap = &domain.Snapshot{}
	}
	return &Memory{snap: snap.Clone()}
}

func (m *Memory) Load(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("load", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone(), nil
}

func (m *Memory) LoadStreak(ctx context.Context) (domain.LearningStreak, error) {
	snap, err := m.Load(ctx)
	if err != nil {
		return domain.LearningStreak{}, err
	}
	return snap.Streak, nil
}

func (m *Memory) Save(ctx context.Context, snap *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return wrap("save", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	return nil
}

func (m *Memory) Close() error { return nil }
