package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"uniquify-worker/internal/client"
	"uniquify-worker/internal/config"
	"uniquify-worker/internal/heartbeat"
	"uniquify-worker/internal/logging"
	"uniquify-worker/internal/monitor"
	"uniquify-worker/internal/orchestrator"
	"uniquify-worker/internal/params"
	"uniquify-worker/internal/pipeline"
	"uniquify-worker/internal/transcoder"
	"uniquify-worker/pkg/models"
)

type batchFlags struct {
	count       int
	keys        []string
	preset      string
	outDir      string
	concurrency int
	manifest    string
	asJSON      bool
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var f batchFlags
	cmd := &cobra.Command{
		Use:   "batch <source>",
		Short: "Produce variants of a video and write their manifest",
		Long: "Produce --count randomized variants, or one deterministic variant per --key.\n" +
			"Outputs are named <stem>_vNNN_<suffix><ext> and a JSON manifest <stem>_<batch>_manifest.json is written next to them.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runBatch(cmd, cfg, logger, args[0], f)
		},
	}
	cmd.Flags().IntVarP(&f.count, "count", "n", 0, "Number of randomized variants (1-50)")
	cmd.Flags().StringSliceVarP(&f.keys, "key", "k", nil, "Entity key for a deterministic variant (repeatable)")
	cmd.Flags().StringVarP(&f.preset, "preset", "p", "", "Intensity preset: minimal, balanced or aggressive")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "Output directory (default: configured output_dir or the source's directory)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Parallel ffmpeg processes (default: configured or half the physical cores)")
	cmd.Flags().StringVar(&f.manifest, "manifest", "", "Manifest path (default: <out>/<stem>_<batch>_manifest.json)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the manifest as JSON instead of a table")
	return cmd
}

func runBatch(cmd *cobra.Command, cfg *config.Config, logger zerolog.Logger, source string, f batchFlags) error {
	// 1. Resolve flags against the loaded config
	if f.count == 0 && len(f.keys) == 0 {
		f.count = 1
	}
	presetName := cfg.Preset
	if f.preset != "" {
		presetName = f.preset
	}
	preset, err := params.ParsePreset(presetName)
	if err != nil {
		return err
	}
	overrides, err := cfg.ParamOverrides()
	if err != nil {
		return err
	}
	outDir := f.outDir
	if outDir == "" {
		outDir = cfg.OutputDir
	}
	if outDir == "" {
		outDir = filepath.Dir(source)
	}
	concurrency := cfg.Concurrency
	if f.concurrency > 0 {
		concurrency = f.concurrency
	}

	// 2. Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Locate ffmpeg and pick the encoder
	allowHW := cfg.Encoder.EnableHWAccel && (cfg.Encoder.Codec == "" || cfg.Encoder.Codec == "auto")
	engine, err := transcoder.NewEngine(ctx, cfg.FFmpegPath, cfg.FFprobePath, allowHW, logging.Component(logger, "engine"))
	if err != nil {
		return err
	}

	// 4. Wire the store, orchestrator and reporting
	jobs, _, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	orch := orchestrator.New(orchestrator.Config{
		Concurrency: monitor.Concurrency(concurrency),
		MaxVariants: cfg.MaxVariants,
		Timeouts:    cfg.Timeout,
		Builder: pipeline.Options{
			Encoding:           engine.Encoding(cfg.Encoding()),
			StripMetadata:      cfg.Metadata.Strip,
			RandomizeTimestamp: cfg.Metadata.RandomizeTimestamp,
		},
		KeepFailedOutputs: cfg.KeepFailed,
	},
		transcoder.NewFFProbe(engine.FFprobePath),
		transcoder.NewExecutor(engine.FFmpegPath, logging.Component(logger, "ffmpeg")),
		jobs,
		params.NewGenerator(nil),
		logging.Component(logger, "orchestrator"),
	)

	var reporter *client.ReportClient
	if cfg.Report.URL != "" {
		reporter = client.NewReportClient(cfg.Report.URL, cfg.WorkerID, client.Options{}, logging.Component(logger, "report"))
	}

	batchID := orch.NewBatchID()
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var publisher heartbeat.Publisher
	if reporter != nil {
		publisher = reporter
	}
	hb := heartbeat.New(time.Duration(cfg.Report.HeartbeatSeconds)*time.Second, cfg.WorkerID,
		jobs, monitor.NewSystemMonitor(), publisher, logging.Component(logger, "heartbeat"))
	hbDone := hb.Start(hbCtx, batchID)

	// 5. Run the batch with the heartbeat alongside
	manifest, runErr := orch.RunBatch(ctx, orchestrator.BatchRequest{
		BatchID:    batchID,
		SourcePath: source,
		OutputDir:  outDir,
		Count:      f.count,
		Preset:     preset,
		EntityKeys: f.keys,
		Overrides:  overrides,
	})
	stopHeartbeat()
	<-hbDone

	if manifest == nil {
		return runErr
	}

	// 6. Persist and hand off the manifest
	manifestPath := f.manifest
	if manifestPath == "" {
		manifestPath = defaultManifestPath(outDir, source, manifest.BatchID)
	}
	if err := writeJSONFile(manifestPath, manifest); err != nil {
		return err
	}
	logger.Info().Str("path", manifestPath).Msg("manifest written")

	if reporter != nil {
		// The batch context may already be canceled; the hand-off still runs.
		pubCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := reporter.PublishManifest(pubCtx, manifest); err != nil {
			logger.Warn().Err(err).Msg("manifest publish failed")
		}
		cancel()
	}

	if f.asJSON {
		if err := writeJSON(cmd, manifest); err != nil {
			return err
		}
	} else {
		printManifest(cmd, manifest, manifestPath)
	}

	if runErr != nil {
		return runErr
	}
	if manifest.Succeeded == 0 {
		return errors.New("no variant succeeded")
	}
	return nil
}

// defaultManifestPath names the manifest after the source and the batch so
// repeated batches of one source keep their own records.
func defaultManifestPath(outDir, source, batchID string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(outDir, stem+"_"+batchID+"_manifest.json")
}

func printManifest(cmd *cobra.Command, m *models.BatchManifest, path string) {
	rows := make([][]string, 0, len(m.Variants))
	for _, v := range m.Variants {
		status := "ok"
		if !v.Success {
			status = string(v.Error)
		} else if v.Warning != "" {
			status = "ok (" + string(v.Warning) + ")"
		}
		size := "-"
		if v.OutputBytes > 0 {
			size = humanize.IBytes(uint64(v.OutputBytes))
		}
		name := "-"
		if v.OutputPath != "" {
			name = filepath.Base(v.OutputPath)
		}
		rows = append(rows, []string{
			strconv.Itoa(v.Index + 1),
			name,
			status,
			size,
			shortHash(v.OutputHash),
			(time.Duration(v.ElapsedMS) * time.Millisecond).String(),
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"#", "Output", "Status", "Size", "SHA-256", "Elapsed"}, rows, 0, 3, 5))
	fmt.Fprintf(out, "Batch %s: %d of %d succeeded. Manifest: %s\n", m.BatchID, m.Succeeded, m.Requested, path)
	for _, v := range m.Variants {
		if !v.Success && v.ErrorMessage != "" {
			fmt.Fprintf(out, "  #%d %s: %s\n", v.Index+1, v.Error, v.ErrorMessage)
		}
	}
}
