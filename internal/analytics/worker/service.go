package worker

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

const defaultFlushInterval = 10 * time.Second

type flusher interface {
	Flush(ctx context.Context) error
}

// Service periodically drains the buffered BigQuery mirror so batched rows
// never wait on the next engagement event.
type Service struct {
	writer   flusher
	interval time.Duration
	logg     *logger.Logger
}

// NewService creates a new mirror flush worker.
func NewService(writer flusher, interval time.Duration, logg *logger.Logger) (*Service, error) {
	if writer == nil {
		return nil, errors.New("analytics writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &Service{writer: writer, interval: interval, logg: logg}, nil
}

// Run flushes on every tick until the context is canceled, then flushes once
// more on a detached context.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.interval)
			s.flush(final)
			cancel()
			return nil
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *Service) flush(ctx context.Context) {
	if err := s.writer.Flush(ctx); err != nil {
		s.logg.Error(ctx, "flush analytics mirror", err)
	}
}
