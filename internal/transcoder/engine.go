package transcoder

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"uniquify-worker/internal/pipeline"
)

// Engine holds the resolved binaries and the encoder chosen for this host.
type Engine struct {
	FFmpegPath  string
	FFprobePath string
	HasHWAccel  bool
	bestCodec   string
}

// NewEngine locates ffmpeg and ffprobe. With allowHW set it asks ffmpeg
// which hardware encoders are built in and picks the best one.
func NewEngine(ctx context.Context, ffmpeg, ffprobe string, allowHW bool, logger zerolog.Logger) (*Engine, error) {
	ffmpegPath, err := exec.LookPath(orDefault(ffmpeg, "ffmpeg"))
	if err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found: %w", err)
	}
	ffprobePath, err := exec.LookPath(orDefault(ffprobe, "ffprobe"))
	if err != nil {
		return nil, fmt.Errorf("ffprobe binary not found: %w", err)
	}

	engine := &Engine{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		bestCodec:   pipeline.CodecSoftware,
	}
	if allowHW {
		engine.ProbeCapabilities(ctx)
	}
	logger.Info().
		Str("ffmpeg", ffmpegPath).
		Str("ffprobe", ffprobePath).
		Str("codec", engine.bestCodec).
		Bool("hw_accel", engine.HasHWAccel).
		Msg("transcoder engine ready")
	return engine, nil
}

// ProbeCapabilities lists ffmpeg's encoders and records the best codec.
// Failure leaves the software encoder selected.
func (e *Engine) ProbeCapabilities(ctx context.Context) {
	out, err := exec.CommandContext(ctx, e.FFmpegPath, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		e.bestCodec, e.HasHWAccel = pipeline.CodecSoftware, false
		return
	}
	e.bestCodec = DetectEncoder(string(out))
	e.HasHWAccel = e.bestCodec != pipeline.CodecSoftware
}

// Codec returns the encoder chosen for this host.
func (e *Engine) Codec() string {
	if e.bestCodec == "" {
		return pipeline.CodecSoftware
	}
	return e.bestCodec
}

// Encoding returns base with the video codec replaced by the host's best
// encoder, unless base already names one.
func (e *Engine) Encoding(base pipeline.Encoding) pipeline.Encoding {
	if base.VideoCodec == "" || base.VideoCodec == "auto" {
		base.VideoCodec = e.Codec()
	}
	return base
}

// DetectEncoder picks an H.264 encoder from `ffmpeg -encoders` output.
// Only encoders that accept software frames from the filter chain qualify.
func DetectEncoder(encoders string) string {
	switch {
	case strings.Contains(encoders, pipeline.CodecNVENC):
		return pipeline.CodecNVENC
	case strings.Contains(encoders, pipeline.CodecVideoToolbox):
		return pipeline.CodecVideoToolbox
	default:
		return pipeline.CodecSoftware
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
