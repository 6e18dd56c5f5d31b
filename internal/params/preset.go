package params

import (
	"fmt"
	"strings"
)

// Preset is the intensity tier controlling how large modifications may be.
type Preset int

const (
	Minimal Preset = iota + 1
	Balanced
	Aggressive
)

// Presets lists every preset in ascending intensity.
var Presets = []Preset{Minimal, Balanced, Aggressive}

func (p Preset) String() string {
	switch p {
	case Minimal:
		return "minimal"
	case Balanced:
		return "balanced"
	case Aggressive:
		return "aggressive"
	default:
		return fmt.Sprintf("preset(%d)", int(p))
	}
}

// ParsePreset maps a preset name to its enum value.
func ParsePreset(name string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "minimal":
		return Minimal, nil
	case "balanced":
		return Balanced, nil
	case "aggressive":
		return Aggressive, nil
	}
	return 0, &ConfigurationError{Field: "preset", Value: name, Reason: "expected minimal, balanced or aggressive"}
}

// Dimension names one modifiable property of a variant.
type Dimension string

const (
	DimCrop         Dimension = "crop"
	DimBrightness   Dimension = "brightness"
	DimContrast     Dimension = "contrast"
	DimSaturation   Dimension = "saturation"
	DimHue          Dimension = "hue"
	DimGamma        Dimension = "gamma"
	DimRotation     Dimension = "rotation"
	DimSpeed        Dimension = "speed"
	DimPitch        Dimension = "pitch"
	DimTrimStart    Dimension = "trim_start"
	DimTrimEnd      Dimension = "trim_end"
	DimChannelShift Dimension = "channel_shift"
	DimNoise        Dimension = "noise"
	DimWatermark    Dimension = "watermark"
	DimMirror       Dimension = "mirror"
)

// Dimensions is the fixed draw order. Changing it changes every
// deterministic set, so append only.
var Dimensions = []Dimension{
	DimCrop,
	DimBrightness,
	DimContrast,
	DimSaturation,
	DimHue,
	DimGamma,
	DimRotation,
	DimSpeed,
	DimPitch,
	DimTrimStart,
	DimTrimEnd,
	DimChannelShift,
	DimNoise,
	DimWatermark,
	DimMirror,
}

// ParseDimension validates a dimension name.
func ParseDimension(name string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Dimensions {
		if d == known {
			return d, nil
		}
	}
	return "", &ConfigurationError{Field: "dimension", Value: name, Reason: "unknown dimension"}
}

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `mapstructure:"min" json:"min"`
	Max float64 `mapstructure:"max" json:"max"`
}

// Contains reports whether v lies in the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) valid() bool {
	return r.Min <= r.Max
}

// Table maps each enabled dimension to its range. Units:
//   - crop: percent of each edge
//   - brightness: eq offset, contrast/saturation/gamma: eq multipliers
//   - hue, rotation: degrees
//   - speed: playback factor, pitch: semitones
//   - trim_start/trim_end: milliseconds
//   - channel_shift: colorbalance offset applied to each channel
//   - noise, watermark: strength in [0, 1]
//   - mirror: probability of a horizontal flip
type Table map[Dimension]Range

// Range returns the range for d and whether d is enabled.
func (t Table) Range(d Dimension) (Range, bool) {
	r, ok := t[d]
	return r, ok
}

func (t Table) clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

var presetTables = map[Preset]Table{
	Minimal: {
		DimCrop:       {0.5, 1.0},
		DimBrightness: {-0.02, 0.02},
		DimContrast:   {0.99, 1.01},
		DimNoise:      {0.001, 0.001},
		DimWatermark:  {0.01, 0.01},
	},
	Balanced: {
		DimCrop:         {0.5, 2.0},
		DimBrightness:   {-0.05, 0.05},
		DimContrast:     {0.97, 1.03},
		DimSaturation:   {0.95, 1.05},
		DimHue:          {-3, 3},
		DimGamma:        {0.97, 1.03},
		DimRotation:     {-0.5, 0.5},
		DimSpeed:        {0.98, 1.02},
		DimPitch:        {-0.5, 0.5},
		DimTrimStart:    {0, 100},
		DimTrimEnd:      {0, 100},
		DimChannelShift: {-0.02, 0.02},
		DimNoise:        {0.002, 0.002},
		DimWatermark:    {0.01, 0.01},
	},
	Aggressive: {
		DimCrop:         {0.5, 3.0},
		DimBrightness:   {-0.08, 0.08},
		DimContrast:     {0.95, 1.05},
		DimSaturation:   {0.95, 1.05},
		DimHue:          {-5, 5},
		DimGamma:        {0.95, 1.05},
		DimRotation:     {-1, 1},
		DimSpeed:        {0.96, 1.04},
		DimPitch:        {-1, 1},
		DimTrimStart:    {0, 200},
		DimTrimEnd:      {0, 200},
		DimChannelShift: {-0.03, 0.03},
		DimNoise:        {0.005, 0.005},
		DimWatermark:    {0.01, 0.01},
	},
}

// TableFor returns a copy of the preset's range table.
func TableFor(p Preset) (Table, error) {
	t, ok := presetTables[p]
	if !ok {
		return nil, &ConfigurationError{Field: "preset", Value: p.String(), Reason: "no range table"}
	}
	return t.clone(), nil
}
