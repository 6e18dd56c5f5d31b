package orchestrator

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"uniquify-worker/internal/params"
	"uniquify-worker/internal/pipeline"
	"uniquify-worker/internal/scheduler"
	"uniquify-worker/internal/verify"
	"uniquify-worker/pkg/models"
)

// DefaultMaxVariants bounds a single batch.
const DefaultMaxVariants = 50

// Config holds the batch-independent orchestrator settings.
type Config struct {
	Concurrency int
	MaxVariants int
	Timeouts    Timeouts
	Builder     pipeline.Options

	// KeepFailedOutputs leaves partial files of failed variants on disk.
	KeepFailedOutputs bool
}

// BatchRequest describes one batch. Exactly one of Count and EntityKeys
// must be set.
type BatchRequest struct {
	BatchID    string // generated when empty
	SourcePath string
	OutputDir  string // defaults to the source's directory
	Count      int
	Preset     params.Preset
	EntityKeys []string
	Overrides  params.Overrides
}

// Orchestrator fans a batch out over the worker pool and assembles the
// manifest.
type Orchestrator struct {
	cfg        Config
	prober     Prober
	transcoder Transcoder
	store      JobStore
	gen        *params.Generator
	verifier   *verify.Verifier
	pool       *scheduler.Pool
	logger     zerolog.Logger
	now        func() time.Time

	idMu    sync.Mutex
	entropy io.Reader
}

func New(cfg Config, prober Prober, tc Transcoder, store JobStore, gen *params.Generator, logger zerolog.Logger) *Orchestrator {
	if cfg.MaxVariants <= 0 {
		cfg.MaxVariants = DefaultMaxVariants
	}
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts()
	}
	if gen == nil {
		gen = params.NewGenerator(nil)
	}
	return &Orchestrator{
		cfg:        cfg,
		prober:     prober,
		transcoder: tc,
		store:      store,
		gen:        gen,
		verifier:   verify.New(),
		pool:       scheduler.NewPool(cfg.Concurrency),
		logger:     logger,
		now:        time.Now,
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// NewBatchID returns a fresh sortable batch identifier.
func (o *Orchestrator) NewBatchID() string {
	o.idMu.Lock()
	defer o.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(o.now()), o.entropy).String()
}

// batch is the state shared by the variants of one run. It is read-only
// once the pool starts.
type batch struct {
	id         string
	req        BatchRequest
	n          int
	geometry   models.SourceGeometry
	sourceHash string
	stem, ext  string
	outDir     string
	builder    *pipeline.Builder
	timeout    time.Duration
	logger     zerolog.Logger
}

type event struct {
	index  int
	state  models.VariantState
	result *models.VariantResult
}

// RunBatch produces the requested variants and returns their manifest.
// Configuration and probe errors abort before any variant starts. Once
// variants are scheduled the manifest always holds one entry per variant,
// and on cancellation it is returned together with ctx.Err().
func (o *Orchestrator) RunBatch(ctx context.Context, req BatchRequest) (*models.BatchManifest, error) {
	// 1. Reject bad requests before touching the store or the source
	n, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	b := &batch{req: req, n: n, id: req.BatchID}
	if b.id == "" {
		b.id = o.NewBatchID()
	}
	b.logger = o.logger.With().Str("batch_id", b.id).Logger()
	b.outDir = req.OutputDir
	if b.outDir == "" {
		b.outDir = filepath.Dir(req.SourcePath)
	}
	base := filepath.Base(req.SourcePath)
	b.ext = filepath.Ext(base)
	b.stem = strings.TrimSuffix(base, b.ext)
	if b.ext == "" {
		b.ext = ".mp4"
	}
	if err := os.MkdirAll(b.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	// 2. Record the batch with every variant waiting on the probe
	created := o.now().UTC()
	job := models.BatchJob{
		ID:         b.id,
		SourcePath: req.SourcePath,
		Preset:     o.presetLabel(req),
		Status:     models.BatchRunning,
		Variants:   make([]models.VariantState, n),
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	for i := range job.Variants {
		job.Variants[i] = models.StateProbing
	}
	if err := o.store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("record batch: %w", err)
	}

	b.logger.Info().Str("source", req.SourcePath).Int("variants", n).Str("preset", job.Preset).Msg("batch started")

	// 3. Probe and hash the source once for the whole batch
	b.geometry, err = o.prober.Probe(ctx, req.SourcePath)
	if err == nil {
		b.sourceHash, _, err = o.verifier.HashFile(ctx, req.SourcePath)
		if err != nil {
			err = fmt.Errorf("hash source: %w", err)
		}
	}
	if err != nil {
		o.abort(job, err)
		return nil, err
	}
	b.builder = pipeline.NewBuilder(o.builderOptions(created))
	b.timeout = o.cfg.Timeouts.For(b.geometry.DurationSeconds)

	b.logger.Info().
		Int("width", b.geometry.Width).
		Int("height", b.geometry.Height).
		Float64("duration", b.geometry.DurationSeconds).
		Dur("timeout", b.timeout).
		Msg("source probed")

	// 4. Fan variants out over the pool. Only the collector writes results
	// and the store from here on.
	results := make([]models.VariantResult, n)
	events := make(chan event, n)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		o.collect(job, events, results)
	}()

	skipped := o.pool.Run(ctx, n, func(ctx context.Context, i int) {
		res := o.runVariant(ctx, b, i, events)
		events <- event{index: i, state: terminalState(res), result: &res}
	})
	// 5. Variants the pool never started still get a manifest entry
	for _, i := range skipped {
		res := models.VariantResult{
			VariantID:    variantID(b.id, i),
			Index:        i,
			EntityKey:    keyFor(req, i),
			Success:      false,
			Error:        models.ErrCanceled,
			ErrorMessage: "batch canceled before the variant started",
		}
		events <- event{index: i, state: models.StateFailed, result: &res}
	}
	close(events)
	<-collected

	// 6. Assemble the manifest in submission order and settle the status
	manifest := &models.BatchManifest{
		BatchID:     b.id,
		SourcePath:  req.SourcePath,
		SourceHash:  b.sourceHash,
		Source:      b.geometry,
		Preset:      job.Preset,
		CreatedAt:   created,
		CompletedAt: o.now().UTC(),
		Requested:   n,
		Variants:    results,
		Limitations: []string{verify.Limitation},
	}
	markDuplicates(manifest.Variants)
	for _, r := range manifest.Variants {
		if r.Success {
			manifest.Succeeded++
		} else {
			manifest.Failed++
		}
	}

	final := o.finalStatus(ctx, manifest)
	o.finish(b, final, manifest)

	b.logger.Info().
		Str("status", string(final)).
		Int("succeeded", manifest.Succeeded).
		Int("failed", manifest.Failed).
		Dur("elapsed", manifest.CompletedAt.Sub(created)).
		Msg("batch finished")

	if err := ctx.Err(); err != nil {
		return manifest, err
	}
	return manifest, nil
}

func (o *Orchestrator) validate(req BatchRequest) (int, error) {
	if strings.TrimSpace(req.SourcePath) == "" {
		return 0, &params.ConfigurationError{Field: "source", Reason: "source path is required"}
	}
	if _, err := os.Stat(req.SourcePath); err != nil {
		return 0, &params.ConfigurationError{Field: "source", Value: req.SourcePath, Reason: err.Error()}
	}
	if req.Count > 0 && len(req.EntityKeys) > 0 {
		return 0, &params.ConfigurationError{Field: "count", Value: strconv.Itoa(req.Count), Reason: "count and entity keys are mutually exclusive"}
	}

	n := req.Count
	if len(req.EntityKeys) > 0 {
		n = len(req.EntityKeys)
		seen := make(map[string]bool, n)
		for _, k := range req.EntityKeys {
			if k == "" {
				return 0, &params.ConfigurationError{Field: "entity_keys", Reason: "empty entity key"}
			}
			if seen[k] {
				return 0, &params.ConfigurationError{Field: "entity_keys", Value: k, Reason: "duplicate entity key"}
			}
			seen[k] = true
		}
	} else if _, err := params.TableFor(req.Preset); err != nil {
		return 0, err
	}
	if err := req.Overrides.Validate(); err != nil {
		return 0, err
	}

	if n < 1 || n > o.cfg.MaxVariants {
		return 0, &params.ConfigurationError{
			Field:  "count",
			Value:  strconv.Itoa(n),
			Reason: fmt.Sprintf("must be between 1 and %d", o.cfg.MaxVariants),
		}
	}
	return n, nil
}

func (o *Orchestrator) presetLabel(req BatchRequest) string {
	if len(req.EntityKeys) > 0 {
		return "entity"
	}
	return req.Preset.String()
}

func (o *Orchestrator) builderOptions(reference time.Time) pipeline.Options {
	opts := o.cfg.Builder
	opts.Reference = reference
	return opts
}

// runVariant drives one variant through params, command, transcode and
// hash. It only communicates through events.
func (o *Orchestrator) runVariant(ctx context.Context, b *batch, i int, events chan<- event) models.VariantResult {
	start := time.Now()
	res := models.VariantResult{
		VariantID: variantID(b.id, i),
		Index:     i,
		EntityKey: keyFor(b.req, i),
	}
	logger := b.logger.With().Str("variant_id", res.VariantID).Logger()

	fail := func(err error) models.VariantResult {
		res.Success = false
		res.Error = Classify(err)
		res.ErrorMessage = err.Error()
		res.ExitCode = exitCode(err)
		res.ElapsedMS = time.Since(start).Milliseconds()
		ev := logger.Warn()
		if res.Error == models.ErrInvariantViolation || res.Error == models.ErrInternal {
			ev = logger.Error()
		}
		ev.Err(err).Str("kind", string(res.Error)).Msg("variant failed")
		if res.OutputPath != "" && !o.cfg.KeepFailedOutputs {
			_ = os.Remove(res.OutputPath)
		}
		return res
	}

	req := params.Request{
		Preset:          b.req.Preset,
		DurationSeconds: b.geometry.DurationSeconds,
		Overrides:       b.req.Overrides,
	}
	if len(b.req.EntityKeys) > 0 {
		req.Key = b.req.EntityKeys[i]
		req.Ordinal = i
		req.Population = b.n
	}

	set, err := o.gen.Generate(req)
	if err != nil {
		return fail(err)
	}
	res.Modifications = set
	events <- event{index: i, state: models.StateParamsGenerated}

	name := fmt.Sprintf("%s_v%03d_%s%s", b.stem, i+1, o.gen.Suffix(req), b.ext)
	output := filepath.Join(b.outDir, name)
	cmd, err := b.builder.Build(set, b.geometry, b.req.SourcePath, output)
	if err != nil {
		return fail(err)
	}
	res.Command = cmd.Args()
	events <- event{index: i, state: models.StateCommandBuilt}

	res.OutputPath = output
	events <- event{index: i, state: models.StateTranscoding}
	logger.Debug().Str("output", output).Str("vf", cmd.VideoFilter()).Str("af", cmd.AudioFilter()).Msg("transcoding")
	if err := o.transcoder.Execute(ctx, cmd, b.timeout); err != nil {
		return fail(err)
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return fail(errMissingOutput)
	}
	hash, size, err := o.verifier.HashFile(ctx, output)
	if err != nil {
		return fail(fmt.Errorf("hash output: %w", err))
	}

	res.OutputHash = hash
	res.OutputBytes = size
	res.Success = true
	if hash == b.sourceHash {
		res.Warning = models.WarnNoOp
		logger.Warn().Msg("output is byte-identical to the source")
	}
	res.ElapsedMS = time.Since(start).Milliseconds()
	logger.Info().Str("output", output).Int64("bytes", size).Int64("elapsed_ms", res.ElapsedMS).Msg("variant verified")
	return res
}

// collect is the only writer of results and of the job record.
func (o *Orchestrator) collect(job models.BatchJob, events <-chan event, results []models.VariantResult) {
	for ev := range events {
		job.Variants[ev.index] = ev.state
		if ev.result != nil {
			results[ev.index] = *ev.result
		}
		job.UpdatedAt = o.now().UTC()
		if err := o.store.Update(context.Background(), job); err != nil {
			o.logger.Warn().Err(err).Str("batch_id", job.ID).Msg("job store update failed")
		}
	}
}

func (o *Orchestrator) abort(job models.BatchJob, err error) {
	for i := range job.Variants {
		job.Variants[i] = models.StateFailed
	}
	job.Status = models.BatchFailed
	job.Error = err.Error()
	job.UpdatedAt = o.now().UTC()
	if uerr := o.store.Update(context.Background(), job); uerr != nil {
		o.logger.Warn().Err(uerr).Str("batch_id", job.ID).Msg("job store update failed")
	}
	o.logger.Error().Err(err).Str("batch_id", job.ID).Msg("batch aborted")
}

func (o *Orchestrator) finalStatus(ctx context.Context, m *models.BatchManifest) models.BatchStatus {
	switch {
	case ctx.Err() != nil:
		return models.BatchCanceled
	case m.Failed == 0:
		return models.BatchCompleted
	case m.Succeeded == 0:
		return models.BatchFailed
	default:
		return models.BatchPartial
	}
}

func (o *Orchestrator) finish(b *batch, status models.BatchStatus, m *models.BatchManifest) {
	job, err := o.store.Get(context.Background(), b.id)
	if err != nil {
		b.logger.Warn().Err(err).Msg("job store read failed")
		return
	}
	job.Status = status
	if m.Failed > 0 {
		job.Error = fmt.Sprintf("%d of %d variants failed", m.Failed, m.Requested)
	}
	job.UpdatedAt = m.CompletedAt
	if err := o.store.Update(context.Background(), job); err != nil {
		b.logger.Warn().Err(err).Msg("job store update failed")
	}
}

// markDuplicates warns on successful outputs that share a hash.
func markDuplicates(results []models.VariantResult) {
	hashes := make([]string, len(results))
	for i, r := range results {
		if r.Success {
			hashes[i] = r.OutputHash
		}
	}
	for _, group := range verify.Duplicates(hashes) {
		for _, i := range group {
			if results[i].Warning == "" {
				results[i].Warning = models.WarnDuplicateOutput
			}
		}
	}
}

func terminalState(r models.VariantResult) models.VariantState {
	if r.Success {
		return models.StateVerified
	}
	return models.StateFailed
}

func variantID(batchID string, i int) string {
	return fmt.Sprintf("%s-%03d", batchID, i+1)
}

func keyFor(req BatchRequest, i int) string {
	if i < len(req.EntityKeys) {
		return req.EntityKeys[i]
	}
	return ""
}
