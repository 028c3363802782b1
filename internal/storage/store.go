package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// Store persists the full study snapshot.
type Store interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, snap *domain.Snapshot) error
	LoadStreak(ctx context.Context) (domain.LearningStreak, error)
	Close() error
}

// Error wraps a failure inside a store. Callers treat it as opaque.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
