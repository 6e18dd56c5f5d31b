package transcoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"

	"uniquify-worker/pkg/models"
)

// FFProbe reads source geometry with ffprobe.
type FFProbe struct {
	Path string
}

func NewFFProbe(path string) *FFProbe {
	return &FFProbe{Path: orDefault(path, "ffprobe")}
}

type probeResult struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		SampleRate string `json:"sample_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the first video stream's size, the container duration and
// the first audio stream's sample rate. Unknown duration is reported as 0.
func (p *FFProbe) Probe(ctx context.Context, path string) (models.SourceGeometry, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,sample_rate,duration:format=duration",
		"-of", "json",
		path,
	}
	out, err := exec.CommandContext(ctx, p.Path, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			err = fmt.Errorf("%w: %s", err, lastLine(string(exitErr.Stderr)))
		}
		return models.SourceGeometry{}, &ProbeError{Path: path, Err: err}
	}

	g, err := parseProbe(out)
	if err != nil {
		return models.SourceGeometry{}, &ProbeError{Path: path, Err: err}
	}
	return g, nil
}

func parseProbe(data []byte) (models.SourceGeometry, error) {
	var res probeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return models.SourceGeometry{}, fmt.Errorf("decode ffprobe output: %w", err)
	}

	var g models.SourceGeometry
	var videoDuration float64
	foundVideo := false
	for _, s := range res.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			g.Width, g.Height = s.Width, s.Height
			videoDuration = parseSeconds(s.Duration)
		case "audio":
			if g.SampleRate == 0 {
				g.SampleRate, _ = strconv.Atoi(s.SampleRate)
			}
		}
	}
	if !foundVideo {
		return models.SourceGeometry{}, errors.New("no video stream")
	}

	g.DurationSeconds = parseSeconds(res.Format.Duration)
	if g.DurationSeconds == 0 {
		g.DurationSeconds = videoDuration
	}
	return g, nil
}

// parseSeconds maps ffprobe's "N/A" and garbage to 0.
func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
