package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniquify-worker/internal/params"
	"uniquify-worker/internal/pipeline"
	"uniquify-worker/internal/store"
	"uniquify-worker/internal/transcoder"
	"uniquify-worker/pkg/models"
)

type fakeProber struct {
	geometry models.SourceGeometry
	err      error
	calls    atomic.Int32
}

func (p *fakeProber) Probe(context.Context, string) (models.SourceGeometry, error) {
	p.calls.Add(1)
	return p.geometry, p.err
}

// fakeTranscoder writes the rendered arguments as the output file unless
// behave overrides the outcome for a variant number.
type fakeTranscoder struct {
	mu       sync.Mutex
	commands []pipeline.Command
	timeouts []time.Duration
	behave   func(ctx context.Context, variant int, cmd pipeline.Command) (handled bool, err error)
}

var variantNum = regexp.MustCompile(`_v(\d{3})_`)

func (f *fakeTranscoder) Execute(ctx context.Context, cmd pipeline.Command, timeout time.Duration) error {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.timeouts = append(f.timeouts, timeout)
	f.mu.Unlock()

	if f.behave != nil {
		var v int
		if m := variantNum.FindStringSubmatch(cmd.Output); m != nil {
			_, _ = fmt.Sscanf(m[1], "%d", &v)
		}
		if handled, err := f.behave(ctx, v, cmd); handled {
			return err
		}
	}
	return os.WriteFile(cmd.Output, []byte(strings.Join(cmd.Args(), "\x00")), 0o644)
}

func (f *fakeTranscoder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

type fixture struct {
	orch   *Orchestrator
	prober *fakeProber
	tc     *fakeTranscoder
	store  *store.MemoryStore
	source string
	outDir string
}

func newFixture(t *testing.T, concurrency int) *fixture {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(source, []byte("source video bytes"), 0o644))

	f := &fixture{
		prober: &fakeProber{geometry: models.SourceGeometry{Width: 1920, Height: 1080, DurationSeconds: 12, SampleRate: 48000}},
		tc:     &fakeTranscoder{},
		store:  store.NewMemoryStore(),
		source: source,
		outDir: filepath.Join(dir, "out"),
	}
	f.orch = New(Config{
		Concurrency: concurrency,
		Builder:     pipeline.Options{StripMetadata: true, RandomizeTimestamp: true},
	}, f.prober, f.tc, f.store, params.NewGenerator(nil), zerolog.Nop())
	return f
}

func (f *fixture) request(count int) BatchRequest {
	return BatchRequest{SourcePath: f.source, OutputDir: f.outDir, Count: count, Preset: params.Balanced}
}

func TestRunBatchEndToEnd(t *testing.T) {
	f := newFixture(t, 2)
	m, err := f.orch.RunBatch(context.Background(), f.request(3))
	require.NoError(t, err)

	assert.Equal(t, 3, m.Requested)
	assert.Equal(t, 3, m.Succeeded)
	assert.Zero(t, m.Failed)
	assert.Equal(t, "balanced", m.Preset)
	assert.NotEmpty(t, m.SourceHash)
	assert.NotEmpty(t, m.Limitations)
	assert.Equal(t, int32(1), f.prober.calls.Load())
	require.Len(t, m.Variants, 3)

	name := regexp.MustCompile(`^clip_v00\d_[0-9a-f]{6}\.mp4$`)
	hashes := map[string]bool{}
	for i, v := range m.Variants {
		assert.Equal(t, i, v.Index, "manifest keeps submission order")
		assert.True(t, v.Success)
		assert.Empty(t, v.Warning)
		assert.Regexp(t, name, filepath.Base(v.OutputPath))
		assert.True(t, strings.HasPrefix(filepath.Base(v.OutputPath), fmt.Sprintf("clip_v%03d_", i+1)))
		assert.NotEqual(t, m.SourceHash, v.OutputHash)
		assert.Contains(t, v.Command, "-map_metadata")
		assert.NotNil(t, v.Modifications.CropPercent)
		hashes[v.OutputHash] = true
		assert.FileExists(t, v.OutputPath)
	}
	assert.Len(t, hashes, 3, "every output hash is distinct")

	job, err := f.store.Get(context.Background(), m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, job.Status)
	done, failed, total := job.Progress()
	assert.Equal(t, 3, done)
	assert.Zero(t, failed)
	assert.Equal(t, 3, total)
}

func TestRunBatchPartialFailure(t *testing.T) {
	f := newFixture(t, 3)
	f.tc.behave = func(_ context.Context, v int, cmd pipeline.Command) (bool, error) {
		if v == 2 || v == 4 {
			// Leave a partial file behind that should be cleaned up.
			_ = os.WriteFile(cmd.Output, []byte("partial"), 0o644)
			return true, &transcoder.TranscodeFailure{ExitCode: 1, Stderr: "Conversion failed!"}
		}
		return false, nil
	}

	m, err := f.orch.RunBatch(context.Background(), f.request(5))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Succeeded)
	assert.Equal(t, 2, m.Failed)
	require.Len(t, m.Variants, 5)

	for _, idx := range []int{1, 3} {
		v := m.Variants[idx]
		assert.False(t, v.Success)
		assert.Equal(t, models.ErrTranscodeFailure, v.Error)
		assert.Equal(t, 1, v.ExitCode)
		assert.Contains(t, v.ErrorMessage, "Conversion failed!")
		assert.NoFileExists(t, v.OutputPath)
	}
	for _, idx := range []int{0, 2, 4} {
		assert.True(t, m.Variants[idx].Success)
	}

	job, err := f.store.Get(context.Background(), m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPartial, job.Status)
	assert.Equal(t, "2 of 5 variants failed", job.Error)
}

func TestRunBatchProbeErrorAborts(t *testing.T) {
	f := newFixture(t, 2)
	f.prober.err = &transcoder.ProbeError{Path: f.source, Err: errors.New("moov atom not found")}

	m, err := f.orch.RunBatch(context.Background(), f.request(3))
	assert.Nil(t, m)
	var pe *transcoder.ProbeError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.ErrProbe, Classify(err))
	assert.Zero(t, f.tc.calls())

	jobs, err := f.store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.BatchFailed, jobs[0].Status)
}

func TestRunBatchTimeoutKind(t *testing.T) {
	f := newFixture(t, 1)
	f.tc.behave = func(_ context.Context, v int, _ pipeline.Command) (bool, error) {
		return true, &transcoder.TimeoutError{Timeout: time.Second}
	}
	m, err := f.orch.RunBatch(context.Background(), f.request(2))
	require.NoError(t, err)
	assert.Zero(t, m.Succeeded)
	for _, v := range m.Variants {
		assert.Equal(t, models.ErrTimeout, v.Error)
	}

	job, err := f.store.Get(context.Background(), m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, job.Status)

	// 12 s source: 2 min + 12*5 s.
	for _, d := range f.tc.timeouts {
		assert.Equal(t, 3*time.Minute, d)
	}
}

func TestRunBatchCancellation(t *testing.T) {
	f := newFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.tc.behave = func(ctx context.Context, v int, _ pipeline.Command) (bool, error) {
		if v == 2 {
			cancel()
			<-ctx.Done()
			return true, fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
		}
		return false, nil
	}

	m, err := f.orch.RunBatch(ctx, f.request(5))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, m)
	require.Len(t, m.Variants, 5)

	assert.True(t, m.Variants[0].Success)
	for i := 1; i < 5; i++ {
		assert.False(t, m.Variants[i].Success)
		assert.Equal(t, models.ErrCanceled, m.Variants[i].Error, "variant %d", i)
		assert.Equal(t, i, m.Variants[i].Index)
	}
	assert.Equal(t, 2, f.tc.calls())

	job, err := f.store.Get(context.Background(), m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCanceled, job.Status)
	for _, s := range job.Variants {
		assert.True(t, s.Terminal())
	}
}

func TestRunBatchMissingOutput(t *testing.T) {
	f := newFixture(t, 1)
	f.tc.behave = func(context.Context, int, pipeline.Command) (bool, error) { return true, nil }

	m, err := f.orch.RunBatch(context.Background(), f.request(1))
	require.NoError(t, err)
	assert.Equal(t, models.ErrMissingOutput, m.Variants[0].Error)
}

func TestRunBatchWarnings(t *testing.T) {
	f := newFixture(t, 2)
	src, err := os.ReadFile(f.source)
	require.NoError(t, err)
	f.tc.behave = func(_ context.Context, v int, cmd pipeline.Command) (bool, error) {
		switch v {
		case 1:
			return true, os.WriteFile(cmd.Output, src, 0o644)
		default:
			return true, os.WriteFile(cmd.Output, []byte("same"), 0o644)
		}
	}

	m, err := f.orch.RunBatch(context.Background(), f.request(3))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Succeeded)
	assert.Equal(t, models.WarnNoOp, m.Variants[0].Warning)
	assert.Equal(t, models.WarnDuplicateOutput, m.Variants[1].Warning)
	assert.Equal(t, models.WarnDuplicateOutput, m.Variants[2].Warning)
}

func TestRunBatchEntityKeysAreReproducible(t *testing.T) {
	keys := []string{"speaker-a", "speaker-b", "speaker-c"}

	run := func() *models.BatchManifest {
		f := newFixture(t, 2)
		m, err := f.orch.RunBatch(context.Background(), BatchRequest{
			SourcePath: f.source, OutputDir: f.outDir, EntityKeys: keys,
		})
		require.NoError(t, err)
		return m
	}
	a, b := run(), run()

	assert.Equal(t, "entity", a.Preset)
	for i := range keys {
		assert.Equal(t, keys[i], a.Variants[i].EntityKey)
		assert.Equal(t, a.Variants[i].Modifications, b.Variants[i].Modifications)
		assert.Equal(t, filepath.Base(a.Variants[i].OutputPath), filepath.Base(b.Variants[i].OutputPath))
	}
	assert.NotEqual(t, a.Variants[0].Modifications, a.Variants[1].Modifications)
}

func TestRunBatchRejectsBadRequests(t *testing.T) {
	f := newFixture(t, 1)
	cases := map[string]BatchRequest{
		"both":       {SourcePath: f.source, Count: 2, EntityKeys: []string{"a"}, Preset: params.Balanced},
		"none":       {SourcePath: f.source, Preset: params.Balanced},
		"too many":   {SourcePath: f.source, Count: 51, Preset: params.Balanced},
		"no preset":  {SourcePath: f.source, Count: 1},
		"no source":  {Count: 1, Preset: params.Balanced},
		"missing":    {SourcePath: filepath.Join(f.outDir, "nope.mp4"), Count: 1, Preset: params.Balanced},
		"empty key":  {SourcePath: f.source, EntityKeys: []string{"a", ""}},
		"duplicates": {SourcePath: f.source, EntityKeys: []string{"a", "a"}},
	}
	for name, req := range cases {
		m, err := f.orch.RunBatch(context.Background(), req)
		assert.Nil(t, m, name)
		var cfgErr *params.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr, name)
	}
	assert.Zero(t, f.prober.calls.Load())
}

func TestRunBatchInvalidGeometry(t *testing.T) {
	f := newFixture(t, 1)
	f.prober.geometry = models.SourceGeometry{Width: 0, Height: 0, DurationSeconds: 5}
	m, err := f.orch.RunBatch(context.Background(), f.request(2))
	require.NoError(t, err)
	for _, v := range m.Variants {
		assert.Equal(t, models.ErrInvalidGeometry, v.Error)
	}
	assert.Zero(t, f.tc.calls())
}

func TestTimeoutsFor(t *testing.T) {
	to := Timeouts{Base: time.Minute, PerSecond: 2 * time.Second, Max: 5 * time.Minute}
	assert.Equal(t, time.Minute+20*time.Second, to.For(10))
	assert.Equal(t, 5*time.Minute, to.For(3600))
	assert.Equal(t, 5*time.Minute, to.For(0))
	assert.Equal(t, time.Minute, Timeouts{Base: time.Minute}.For(0))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want models.ErrorKind
	}{
		{&params.ConfigurationError{Field: "x"}, models.ErrConfiguration},
		{&pipeline.InvalidGeometryError{}, models.ErrInvalidGeometry},
		{fmt.Errorf("build: %w", &pipeline.InvariantViolationError{Field: "crop"}), models.ErrInvariantViolation},
		{&params.InvariantViolationError{Dimension: params.DimHue}, models.ErrInvariantViolation},
		{&transcoder.TimeoutError{}, models.ErrTimeout},
		{fmt.Errorf("x: %w", context.Canceled), models.ErrCanceled},
		{&transcoder.TranscodeFailure{ExitCode: 2}, models.ErrTranscodeFailure},
		{errMissingOutput, models.ErrMissingOutput},
		{errors.New("disk on fire"), models.ErrInternal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err), "%v", c.err)
	}
}

func TestNewBatchIDSortable(t *testing.T) {
	f := newFixture(t, 1)
	a := f.orch.NewBatchID()
	b := f.orch.NewBatchID()
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func TestOverridesOutsideDomainFailBeforeWork(t *testing.T) {
	f := newFixture(t, 2)
	req := f.request(3)
	req.Overrides = params.Overrides{Ranges: map[params.Dimension]params.Range{params.DimCrop: {Min: 30, Max: 40}}}

	m, err := f.orch.RunBatch(context.Background(), req)
	assert.Nil(t, m)
	var cfgErr *params.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, models.ErrConfiguration, Classify(err))
	assert.Zero(t, f.prober.calls.Load())
	assert.Zero(t, f.tc.calls())
}
