package params

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"uniquify-worker/pkg/models"
)

const (
	// unitEpsilon is the distance from the identity below which speed and
	// pitch are treated as unchanged and dropped.
	unitEpsilon = 1e-3

	// minTrimDuration is the shortest source that may be trimmed.
	minTrimDuration = 1.0

	maxCreationAgeDays = 7
)

// RandFactory returns a fresh random source for one Generate call.
type RandFactory func() *rand.Rand

// DefaultRandFactory seeds a PCG from the process-wide source.
func DefaultRandFactory() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Overrides replace or disable preset ranges for a single request.
type Overrides struct {
	Ranges   map[Dimension]Range
	Disabled []Dimension
}

// Validate checks that every override names a known dimension and that
// each range is ordered and inside the dimension's domain.
func (o Overrides) Validate() error {
	for d, r := range o.Ranges {
		if _, err := ParseDimension(string(d)); err != nil {
			return err
		}
		if !r.valid() {
			return &ConfigurationError{
				Field:  "override." + string(d),
				Value:  formatRange(r),
				Reason: "min must not exceed max",
			}
		}
		if err := checkDomain(d, r); err != nil {
			return err
		}
	}
	for _, d := range o.Disabled {
		if _, err := ParseDimension(string(d)); err != nil {
			return err
		}
	}
	return nil
}

func (o Overrides) apply(t Table) (Table, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	out := t.clone()
	for d, r := range o.Ranges {
		out[d] = r
	}
	for _, d := range o.Disabled {
		delete(out, d)
	}
	return out, nil
}

// Request describes one ModificationSet to generate.
type Request struct {
	Preset Preset

	// Key switches to deterministic mode: all draws derive from Seed(Key).
	Key string

	// Population > 0 enables index-based range shifting for Ordinal within
	// a known set of Population entities. Only valid together with Key.
	Ordinal    int
	Population int

	DurationSeconds float64
	Overrides       Overrides
}

// Generator produces ModificationSets from presets or entity keys.
type Generator struct {
	newRand RandFactory
}

// NewGenerator returns a Generator drawing random-mode values from f. A nil
// factory uses DefaultRandFactory.
func NewGenerator(f RandFactory) *Generator {
	if f == nil {
		f = DefaultRandFactory
	}
	return &Generator{newRand: f}
}

// Table resolves the range table a request draws from.
func (g *Generator) Table(req Request) (Table, error) {
	var (
		base Table
		err  error
	)
	if req.Population > 0 {
		if req.Key == "" {
			return nil, &ConfigurationError{Field: "ordinal", Value: strconv.Itoa(req.Ordinal), Reason: "index shifting requires an entity key"}
		}
		base, err = EntityTable(req.Ordinal, req.Population)
	} else {
		base, err = TableFor(req.Preset)
	}
	if err != nil {
		return nil, err
	}
	return req.Overrides.apply(base)
}

func (g *Generator) rand(req Request) *rand.Rand {
	if req.Key != "" {
		seed := Seed(req.Key)
		return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return g.newRand()
}

// Suffix returns a short file-name suffix for the request: stable for keyed
// requests, random otherwise.
func (g *Generator) Suffix(req Request) string {
	if req.Key != "" {
		return KeySuffix(req.Key)
	}
	return fmt.Sprintf("%06x", g.newRand().Uint32()&0xffffff)
}

// Generate draws one ModificationSet. The result is checked against the
// table it was drawn from before it is returned.
func (g *Generator) Generate(req Request) (models.ModificationSet, error) {
	table, err := g.Table(req)
	if err != nil {
		return models.ModificationSet{}, err
	}
	set := draw(g.rand(req), table, req.DurationSeconds)
	if err := Validate(set, table); err != nil {
		return models.ModificationSet{}, err
	}
	return set, nil
}

func uniform(rng *rand.Rand, r Range) float64 {
	if r.Min == r.Max {
		return r.Min
	}
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

func trimMS(v float64, r Range) int {
	ms := int(math.Floor(v))
	if float64(ms) < r.Min {
		ms = int(math.Ceil(r.Min))
	}
	return ms
}

// draw walks Dimensions in order. Every enabled dimension consumes its draws
// even when the value is later dropped, so the sequence for a key does not
// depend on the source duration.
func draw(rng *rand.Rand, t Table, duration float64) models.ModificationSet {
	var set models.ModificationSet
	for _, d := range Dimensions {
		r, ok := t[d]
		if !ok {
			continue
		}
		switch d {
		case DimCrop:
			set.CropPercent = ptr(uniform(rng, r))
		case DimBrightness:
			set.Brightness = ptr(uniform(rng, r))
		case DimContrast:
			set.Contrast = ptr(uniform(rng, r))
		case DimSaturation:
			set.Saturation = ptr(uniform(rng, r))
		case DimHue:
			set.HueDegrees = ptr(uniform(rng, r))
		case DimGamma:
			set.Gamma = ptr(uniform(rng, r))
		case DimRotation:
			set.RotationDegrees = ptr(uniform(rng, r))
		case DimSpeed:
			if v := uniform(rng, r); math.Abs(v-1) >= unitEpsilon {
				set.SpeedFactor = ptr(v)
			}
		case DimPitch:
			if v := uniform(rng, r); math.Abs(v) >= unitEpsilon {
				set.PitchSemitones = ptr(v)
			}
		case DimTrimStart:
			set.TrimStartMS = ptr(trimMS(uniform(rng, r), r))
		case DimTrimEnd:
			set.TrimEndMS = ptr(trimMS(uniform(rng, r), r))
		case DimChannelShift:
			set.ChannelShift = &models.ChannelShift{
				R: uniform(rng, r),
				G: uniform(rng, r),
				B: uniform(rng, r),
			}
		case DimNoise:
			set.NoiseAmount = ptr(uniform(rng, r))
			set.NoiseSeed = ptr(rng.Uint32())
		case DimWatermark:
			set.WatermarkOpacity = ptr(uniform(rng, r))
		case DimMirror:
			set.Mirror = ptr(rng.Float64() < uniform(rng, r))
		}
	}

	days := rng.IntN(maxCreationAgeDays + 1)
	hours := rng.IntN(24)
	set.CreationAge = time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour

	disableTrim(&set, duration)
	return set
}

// disableTrim drops trims on short or unknown-duration sources, and when the
// combined trim would remove half the clip or more.
func disableTrim(set *models.ModificationSet, duration float64) {
	if set.TrimStartMS == nil && set.TrimEndMS == nil {
		return
	}
	total := 0
	if set.TrimStartMS != nil {
		total += *set.TrimStartMS
	}
	if set.TrimEndMS != nil {
		total += *set.TrimEndMS
	}
	if duration < minTrimDuration || float64(total)/1000 >= duration/2 {
		set.TrimStartMS = nil
		set.TrimEndMS = nil
	}
}

func ptr[T any](v T) *T { return &v }
