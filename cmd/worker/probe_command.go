package main

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"uniquify-worker/internal/monitor"
	"uniquify-worker/internal/transcoder"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe <source>",
		Short: "Print the geometry and duration ffprobe reports for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			g, err := transcoder.NewFFProbe(cfg.FFprobePath).Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, g)
			}
			duration := "unknown"
			if g.DurationSeconds > 0 {
				duration = strconv.FormatFloat(g.DurationSeconds, 'f', 3, 64) + " s"
			}
			sampleRate := "-"
			if g.SampleRate > 0 {
				sampleRate = strconv.Itoa(g.SampleRate) + " Hz"
			}
			rows := [][]string{
				{"Resolution", fmt.Sprintf("%dx%d", g.Width, g.Height)},
				{"Duration", duration},
				{"Audio sample rate", sampleRate},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Property", "Value"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newHostCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Show host hardware, load and the encoder that would be used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			mon := monitor.NewSystemMonitor()
			info, err := mon.Info(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := mon.Stats(cmd.Context())
			if err != nil {
				return err
			}

			codec := "ffmpeg not found"
			if engine, err := transcoder.NewEngine(cmd.Context(), cfg.FFmpegPath, cfg.FFprobePath, cfg.Encoder.EnableHWAccel, logger); err == nil {
				codec = engine.Encoding(cfg.Encoding()).VideoCodec
			}

			rows := [][]string{
				{"CPU", info.CPUModel},
				{"Cores", fmt.Sprintf("%d physical / %d logical", info.PhysicalCores, info.LogicalCores)},
				{"Memory", humanize.IBytes(info.TotalRAM)},
				{"Load", fmt.Sprintf("cpu %.1f%%, ram %.1f%%", stats.CPUPercent, stats.RAMPercent)},
				{"Platform", runtime.GOOS + "/" + runtime.GOARCH},
				{"Encoder", codec},
				{"Concurrency", strconv.Itoa(monitor.Concurrency(cfg.Concurrency))},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Property", "Value"}, rows))
			return nil
		},
	}
}
