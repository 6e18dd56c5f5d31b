package orchestrator

import (
	"context"
	"time"

	"uniquify-worker/internal/pipeline"
	"uniquify-worker/pkg/models"
)

// Prober reports source geometry. It is called once per batch.
type Prober interface {
	Probe(ctx context.Context, path string) (models.SourceGeometry, error)
}

// Transcoder runs one built command to completion.
type Transcoder interface {
	Execute(ctx context.Context, cmd pipeline.Command, timeout time.Duration) error
}

// JobStore records batch progress. Only the orchestrator's collector
// goroutine writes to it during a run.
type JobStore interface {
	Insert(ctx context.Context, job models.BatchJob) error
	Update(ctx context.Context, job models.BatchJob) error
	Get(ctx context.Context, id string) (models.BatchJob, error)
}
