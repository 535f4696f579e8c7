package session

import (
	"context"

	"lprview/internal/domain"
)

// Store keeps one ViewState per browser session. Get never fails for an
// unknown or expired id: it returns a fresh, empty state instead.
type Store interface {
	Get(ctx context.Context, id string) (*domain.ViewState, error)
	Put(ctx context.Context, id string, state *domain.ViewState) error
	Close() error
}

func newState() *domain.ViewState {
	return &domain.ViewState{Results: []domain.DetectionResult{}}
}

// clone copies the result slice so callers never share it with the store.
func clone(st *domain.ViewState) *domain.ViewState {
	cp := *st
	cp.Results = append([]domain.DetectionResult{}, st.Results...)
	return &cp
}
