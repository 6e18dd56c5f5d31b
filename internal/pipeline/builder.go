package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"uniquify-worker/internal/params"
	"uniquify-worker/pkg/models"
)

const (
	// atempo accepts factors in [tempoMin, tempoMax] per instance.
	tempoMin = 0.5
	tempoMax = 2.0

	creationTimeFmt = "2006-01-02T15:04:05.000000Z"
)

// Options configure a Builder. They are fixed for a whole batch.
type Options struct {
	Encoding           Encoding
	StripMetadata      bool
	RandomizeTimestamp bool

	// Reference is the instant creation_time offsets are measured from.
	Reference time.Time
}

// Builder turns a ModificationSet into a transcode Command. Build depends
// only on its arguments and the Options, so equal inputs give equal commands.
type Builder struct {
	opts Options
}

// NewBuilder returns a Builder with the given options.
func NewBuilder(opts Options) *Builder {
	if opts.Encoding == (Encoding{}) {
		opts.Encoding = DefaultEncoding()
	}
	return &Builder{opts: opts}
}

// Build assembles the command for one variant. Video stages are ordered
//
//	crop, scale, eq, hue, colorbalance, hflip, rotate, setpts, noise, drawbox
//
// and audio stages pitch before tempo.
func (b *Builder) Build(set models.ModificationSet, g models.SourceGeometry, input, output string) (Command, error) {
	if g.Width <= 0 || g.Height <= 0 {
		return Command{}, &InvalidGeometryError{Width: g.Width, Height: g.Height}
	}
	if err := checkDomains(set, g); err != nil {
		return Command{}, err
	}

	cmd := Command{
		Input:         input,
		Output:        output,
		InputOptions:  trimOptions(set, g.DurationSeconds),
		Encoding:      b.opts.Encoding,
		StripMetadata: b.opts.StripMetadata,
	}
	if b.opts.RandomizeTimestamp {
		cmd.CreationTime = b.opts.Reference.Add(-set.CreationAge).UTC().Format(creationTimeFmt)
	}

	cmd.Video = videoStages(set, g)
	cmd.Audio = audioStages(set, g)
	return cmd, nil
}

func videoStages(set models.ModificationSet, g models.SourceGeometry) []Stage {
	var stages []Stage

	// Crop is computed against the source geometry, then scaled back so
	// every later stage sees the original frame size.
	if set.CropPercent != nil {
		cx := int(float64(g.Width) * *set.CropPercent / 100)
		cy := int(float64(g.Height) * *set.CropPercent / 100)
		w := g.Width - 2*cx
		h := g.Height - 2*cy
		w -= w % 2
		h -= h % 2
		stages = append(stages,
			Stage{Filter: "crop", Role: RoleCrop, Params: []Param{
				{"w", strconv.Itoa(w)}, {"h", strconv.Itoa(h)}, {"x", strconv.Itoa(cx)}, {"y", strconv.Itoa(cy)},
			}},
			Stage{Filter: "scale", Role: RoleScale, Params: []Param{
				{"w", strconv.Itoa(g.Width)}, {"h", strconv.Itoa(g.Height)},
			}},
		)
	}

	var eq []Param
	if set.Brightness != nil {
		eq = append(eq, Param{"brightness", ff(*set.Brightness, 4)})
	}
	if set.Contrast != nil {
		eq = append(eq, Param{"contrast", ff(*set.Contrast, 4)})
	}
	if set.Saturation != nil {
		eq = append(eq, Param{"saturation", ff(*set.Saturation, 4)})
	}
	if set.Gamma != nil {
		eq = append(eq, Param{"gamma", ff(*set.Gamma, 4)})
	}
	if len(eq) > 0 {
		stages = append(stages, Stage{Filter: "eq", Role: RoleColor, Params: eq})
	}

	if set.HueDegrees != nil {
		stages = append(stages, Stage{Filter: "hue", Role: RoleHue, Params: []Param{{"h", ff(*set.HueDegrees, 3)}}})
	}
	if cs := set.ChannelShift; cs != nil {
		stages = append(stages, Stage{Filter: "colorbalance", Role: RoleChannelShift, Params: []Param{
			{"rs", ff(cs.R, 4)}, {"gs", ff(cs.G, 4)}, {"bs", ff(cs.B, 4)},
		}})
	}
	if set.Mirror != nil && *set.Mirror {
		stages = append(stages, Stage{Filter: "hflip", Role: RoleMirror})
	}
	if set.RotationDegrees != nil {
		rad := *set.RotationDegrees * math.Pi / 180
		stages = append(stages, Stage{Filter: "rotate", Role: RoleRotate, Params: []Param{
			{"a", ff(rad, 6)}, {"fillcolor", "black"}, {"ow", "iw"}, {"oh", "ih"},
		}})
	}
	if set.SpeedFactor != nil {
		stages = append(stages, Stage{Filter: "setpts", Role: RoleTimestampScale, Params: []Param{
			{"", ff(1 / *set.SpeedFactor, 6) + "*PTS"},
		}})
	}

	// Noise and watermark act on the final composed frame.
	if set.NoiseAmount != nil {
		strength := int(math.Round(*set.NoiseAmount * 1000))
		strength = max(1, min(100, strength))
		var seed uint32
		if set.NoiseSeed != nil {
			seed = *set.NoiseSeed
		}
		stages = append(stages, Stage{Filter: "noise", Role: RoleNoise, Params: []Param{
			{"alls", strconv.Itoa(strength)}, {"allf", "t"}, {"all_seed", strconv.FormatUint(uint64(seed), 10)},
		}})
	}
	if set.WatermarkOpacity != nil {
		stages = append(stages, Stage{Filter: "drawbox", Role: RoleWatermark, Params: []Param{
			{"x", "0"}, {"y", "0"}, {"w", strconv.Itoa(g.Width)}, {"h", strconv.Itoa(g.Height)},
			{"color", "white@" + ff(*set.WatermarkOpacity, 3)}, {"t", "fill"},
		}})
	}
	return stages
}

func audioStages(set models.ModificationSet, g models.SourceGeometry) []Stage {
	var stages []Stage

	// Pitch is shifted by resampling, then the tempo change that resampling
	// introduces is undone so duration is unaffected. With an unknown
	// sample rate that cannot be done exactly and pitch is left alone.
	if set.PitchSemitones != nil && g.SampleRate > 0 {
		sr := g.SampleRate
		ratio := math.Pow(2, *set.PitchSemitones/12)
		stages = append(stages,
			Stage{Filter: "asetrate", Role: RolePitch, Params: []Param{{"r", strconv.Itoa(int(math.Round(float64(sr) * ratio)))}}},
			Stage{Filter: "aresample", Role: RolePitch, Params: []Param{{"", strconv.Itoa(sr)}}},
			Stage{Filter: "atempo", Role: RolePitch, Params: []Param{{"", ff(1/ratio, 6)}}},
		)
	}

	if set.SpeedFactor != nil {
		for _, f := range tempoChain(*set.SpeedFactor) {
			stages = append(stages, Stage{Filter: "atempo", Role: RoleTempo, Params: []Param{{"", ff(f, 6)}}})
		}
	}
	return stages
}

// tempoChain splits factor into atempo-sized steps whose product is factor.
func tempoChain(factor float64) []float64 {
	var steps []float64
	for factor > tempoMax {
		steps = append(steps, tempoMax)
		factor /= tempoMax
	}
	for factor < tempoMin {
		steps = append(steps, tempoMin)
		factor /= tempoMin
	}
	return append(steps, factor)
}

func trimOptions(set models.ModificationSet, duration float64) []string {
	var start, end float64
	if set.TrimStartMS != nil {
		start = float64(*set.TrimStartMS) / 1000
	}
	if set.TrimEndMS != nil {
		end = float64(*set.TrimEndMS) / 1000
	}
	var opts []string
	if start > 0 {
		opts = append(opts, "-ss", ff(start, 3))
	}
	if end > 0 {
		opts = append(opts, "-t", ff(duration-start-end, 3))
	}
	return opts
}

type domain struct {
	field string
	dim   params.Dimension
	value *float64
}

func checkDomains(set models.ModificationSet, g models.SourceGeometry) error {
	domains := []domain{
		{"crop_percent", params.DimCrop, set.CropPercent},
		{"brightness", params.DimBrightness, set.Brightness},
		{"contrast", params.DimContrast, set.Contrast},
		{"saturation", params.DimSaturation, set.Saturation},
		{"hue_degrees", params.DimHue, set.HueDegrees},
		{"gamma", params.DimGamma, set.Gamma},
		{"rotation_degrees", params.DimRotation, set.RotationDegrees},
		{"speed_factor", params.DimSpeed, set.SpeedFactor},
		{"pitch_semitones", params.DimPitch, set.PitchSemitones},
		{"noise_amount", params.DimNoise, set.NoiseAmount},
		{"watermark_opacity", params.DimWatermark, set.WatermarkOpacity},
	}
	if cs := set.ChannelShift; cs != nil {
		domains = append(domains,
			domain{"channel_shift.r", params.DimChannelShift, &cs.R},
			domain{"channel_shift.g", params.DimChannelShift, &cs.G},
			domain{"channel_shift.b", params.DimChannelShift, &cs.B},
		)
	}
	for _, d := range domains {
		if d.value == nil {
			continue
		}
		if r, v := params.Domain(d.dim), *d.value; !r.Contains(v) {
			return &InvariantViolationError{Field: d.field, Value: v, Reason: fmt.Sprintf("outside [%g, %g]", r.Min, r.Max)}
		}
	}

	if set.TrimStartMS == nil && set.TrimEndMS == nil {
		return nil
	}
	var total int
	for _, ms := range []*int{set.TrimStartMS, set.TrimEndMS} {
		if ms == nil {
			continue
		}
		if *ms < 0 {
			return &InvariantViolationError{Field: "trim_ms", Value: float64(*ms), Reason: "negative trim"}
		}
		total += *ms
	}
	if g.DurationSeconds <= 0 || float64(total)/1000 >= g.DurationSeconds {
		return &InvariantViolationError{Field: "trim_ms", Value: float64(total), Reason: fmt.Sprintf("trim exceeds source duration %gs", g.DurationSeconds)}
	}
	return nil
}

func ff(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
