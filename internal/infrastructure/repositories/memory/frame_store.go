package memory

import (
	"context"
	"sync"

	"telerelay/internal/core/domain"
	"telerelay/internal/core/ports"
)

// MemoryFrameStore holds a single frame slot. Put replaces it.
type MemoryFrameStore struct {
	frame    domain.Frame
	hasFrame bool
	mu       sync.RWMutex
}

func NewMemoryFrameStore() ports.FrameStore {
	return &MemoryFrameStore{}
}

func (s *MemoryFrameStore) Put(ctx context.Context, frame *domain.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame.Sequence = s.frame.Sequence + 1
	s.frame = *frame
	s.hasFrame = true
	return nil
}

func (s *MemoryFrameStore) Latest(ctx context.Context) (domain.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasFrame {
		return domain.Frame{}, domain.ErrFrameNotFound
	}
	return s.frame, nil
}
