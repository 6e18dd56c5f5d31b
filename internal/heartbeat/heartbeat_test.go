package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniquify-worker/internal/client"
	"uniquify-worker/internal/store"
	"uniquify-worker/pkg/models"
)

type fakeStats struct{}

func (fakeStats) Stats(context.Context) (models.HostStats, error) {
	return models.HostStats{CPUPercent: 42, RAMPercent: 10}, nil
}

type recorder struct {
	mu       sync.Mutex
	payloads []models.ProgressPayload
	err      error
}

func (r *recorder) UpdateProgress(_ context.Context, p models.ProgressPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func seed(t *testing.T) *store.MemoryStore {
	s := store.NewMemoryStore()
	require.NoError(t, s.Insert(context.Background(), models.BatchJob{
		ID:       "B1",
		Status:   models.BatchRunning,
		Variants: []models.VariantState{models.StateVerified, models.StateFailed, models.StateTranscoding, models.StateQueued},
	}))
	return s
}

func TestPayload(t *testing.T) {
	svc := New(time.Second, "w1", seed(t), fakeStats{}, nil, zerolog.Nop())
	p, err := svc.Payload(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Done)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 4, p.Total)
	assert.InDelta(t, 50.0, p.Progress, 1e-9)
	assert.InDelta(t, 42.0, p.Host.CPUPercent, 1e-9)
	assert.Equal(t, "RUNNING", p.Status)

	_, err = svc.Payload(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStartPublishesUntilCanceled(t *testing.T) {
	rec := &recorder{}
	svc := New(10*time.Millisecond, "w1", seed(t), nil, rec, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := svc.Start(ctx, "B1")

	assert.Eventually(t, func() bool { return rec.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestStateErrorStopsPushes(t *testing.T) {
	rec := &recorder{err: &client.ReportStateError{StatusCode: 404}}
	svc := New(10*time.Millisecond, "w1", seed(t), nil, rec, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := svc.Start(ctx, "B1")

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 1, rec.count())
}
