package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telerelay/internal/core/domain"
	"telerelay/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type frameService struct {
	store   ports.FrameStore
	metrics ports.IngressMetrics
	logger  *zap.SugaredLogger
	now     func() time.Time

	mu     sync.Mutex
	active *domain.Ingress
}

func NewFrameService(store ports.FrameStore, metrics ports.IngressMetrics, logger *zap.SugaredLogger) ports.FrameService {
	if metrics == nil {
		metrics = noopIngressMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &frameService{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// PublishFrame replaces the retained frame. Empty payloads are valid frames.
func (s *frameService) PublishFrame(ctx context.Context, payload []byte) error {
	frame := &domain.Frame{
		Payload:    payload,
		CapturedAt: s.now(),
	}
	if err := s.store.Put(ctx, frame); err != nil {
		return fmt.Errorf("store frame: %w", err)
	}

	s.metrics.RecordFrame(len(payload))
	s.logger.Debugw("frame stored", "bytes", len(payload), "sequence", frame.Sequence)
	return nil
}

func (s *frameService) LatestFrame(ctx context.Context) (domain.Frame, error) {
	return s.store.Latest(ctx)
}

// BeginIngress makes a new upload the active one. A previous upload keeps
// running but is no longer reported as active.
func (s *frameService) BeginIngress(ctx context.Context, remoteAddr string) domain.Ingress {
	ingress := domain.Ingress{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		StartedAt:  s.now(),
	}

	s.mu.Lock()
	previous := s.active
	s.active = &ingress
	s.mu.Unlock()

	if previous != nil {
		s.metrics.RecordIngress("superseded")
		s.logger.Infow("mjpeg ingress superseded",
			"ingress_id", ingress.ID,
			"previous_ingress_id", previous.ID,
			"previous_remote_addr", previous.RemoteAddr,
		)
	}
	s.metrics.RecordIngress("started")
	s.metrics.SetIngressActive(true)
	s.logger.Infow("mjpeg ingress started", "ingress_id", ingress.ID, "remote_addr", remoteAddr)
	return ingress
}

// EndIngress clears the active slot only if ingress still holds it.
func (s *frameService) EndIngress(ctx context.Context, ingress domain.Ingress, frames uint64) {
	s.mu.Lock()
	current := s.active != nil && s.active.ID == ingress.ID
	if current {
		s.active = nil
	}
	s.mu.Unlock()

	if current {
		s.metrics.SetIngressActive(false)
	}
	s.metrics.RecordIngress("ended")
	s.logger.Infow("mjpeg ingress ended",
		"ingress_id", ingress.ID,
		"frames", frames,
		"duration", s.now().Sub(ingress.StartedAt).String(),
		"was_active", current,
	)
}

func (s *frameService) ActiveIngress() (domain.Ingress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return domain.Ingress{}, false
	}
	return *s.active, true
}

type noopIngressMetrics struct{}

func (noopIngressMetrics) RecordFrame(int) {}

func (noopIngressMetrics) RecordIngress(string) {}

func (noopIngressMetrics) SetIngressActive(bool) {}
