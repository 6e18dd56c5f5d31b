package heartbeat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"uniquify-worker/internal/client"
	"uniquify-worker/pkg/models"
)

// JobReader is the read side of the job store.
type JobReader interface {
	Get(ctx context.Context, id string) (models.BatchJob, error)
}

// StatsProvider samples host load.
type StatsProvider interface {
	Stats(ctx context.Context) (models.HostStats, error)
}

// Publisher receives progress payloads.
type Publisher interface {
	UpdateProgress(ctx context.Context, payload models.ProgressPayload) error
}

// Service periodically reports the progress of one batch.
type Service struct {
	interval  time.Duration
	workerID  string
	jobs      JobReader
	stats     StatsProvider
	publisher Publisher
	logger    zerolog.Logger
}

// New creates a heartbeat service. stats and publisher may be nil.
func New(interval time.Duration, workerID string, jobs JobReader, stats StatsProvider, publisher Publisher, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Service{
		interval:  interval,
		workerID:  workerID,
		jobs:      jobs,
		stats:     stats,
		publisher: publisher,
		logger:    logger,
	}
}

// Start launches the reporting loop for batchID. It stops when ctx is done
// and the returned channel is closed once the loop has exited.
func (s *Service) Start(ctx context.Context, batchID string) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(s.interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		s.logger.Debug().Str("batch_id", batchID).Dur("interval", s.interval).Msg("heartbeat started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.beat(ctx, batchID) {
					s.publisher = nil
				}
			}
		}
	}()
	return done
}

// beat reports once. It returns false when the publisher should be
// dropped for the rest of the batch.
func (s *Service) beat(ctx context.Context, batchID string) bool {
	p, err := s.Payload(ctx, batchID)
	if err != nil {
		s.logger.Debug().Err(err).Str("batch_id", batchID).Msg("heartbeat skipped")
		return true
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Int("done", p.Done).
		Int("failed", p.Failed).
		Int("total", p.Total).
		Float64("cpu", p.Host.CPUPercent).
		Float64("ram", p.Host.RAMPercent).
		Msg("batch progress")

	if s.publisher == nil {
		return true
	}
	if err := s.publisher.UpdateProgress(ctx, p); err != nil {
		var stateErr *client.ReportStateError
		if errors.As(err, &stateErr) {
			s.logger.Warn().Err(err).Msg("report endpoint lost the batch; progress pushes stopped")
			return false
		}
		s.logger.Warn().Err(err).Msg("progress push failed")
	}
	return true
}

// Payload builds the current progress payload for batchID.
func (s *Service) Payload(ctx context.Context, batchID string) (models.ProgressPayload, error) {
	job, err := s.jobs.Get(ctx, batchID)
	if err != nil {
		return models.ProgressPayload{}, err
	}
	done, failed, total := job.Progress()
	p := models.ProgressPayload{
		WorkerID:  s.workerID,
		BatchID:   batchID,
		Status:    string(job.Status),
		Done:      done,
		Failed:    failed,
		Total:     total,
		Timestamp: time.Now().UTC(),
	}
	if total > 0 {
		p.Progress = float64(done) / float64(total) * 100
	}
	if s.stats != nil {
		if host, err := s.stats.Stats(ctx); err == nil {
			p.Host = host
		}
	}
	return p, nil
}
