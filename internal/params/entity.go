package params

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Seed derives the deterministic PRNG seed for an entity key from the
// 64-bit xxhash digest of its UTF-8 bytes.
func Seed(key string) uint64 {
	return xxhash.Sum64String(key)
}

// KeySuffix is a short, stable file-name suffix for an entity key.
func KeySuffix(key string) string {
	return fmt.Sprintf("%06x", Seed(key)&0xffffff)
}

// EntityTable returns the range table for entity ordinal i out of n. Each
// ordinal gets ranges centred on a different region of the parameter space:
// hue bases are spread evenly around the colour wheel, brightness bases
// step from dark to bright, and the remaining dimensions widen with i.
func EntityTable(i, n int) (Table, error) {
	if n < 1 {
		return nil, &ConfigurationError{Field: "population", Value: strconv.Itoa(n), Reason: "must be at least 1"}
	}
	if i < 0 || i >= n {
		return nil, &ConfigurationError{Field: "ordinal", Value: strconv.Itoa(i), Reason: fmt.Sprintf("must be in [0, %d)", n)}
	}

	fi, fn := float64(i), float64(n)
	// spread maps i onto the 0..8 scale the per-entity steps were tuned for.
	spread := fi * 8 / fn

	// Wrapped into [-180, 180] so the band stays inside the hue domain.
	hueBase := math.Remainder(fi*360/fn, 360)
	brightStep := 0.16 / fn
	brightBase := (fi - fn/2) * brightStep

	speed := Range{0.96, 0.99}
	if i%2 == 1 {
		speed = Range{1.01, 1.04}
	}
	pitch := 0.5 * (1 + 0.1*spread)
	rotation := 0.3 + 0.1*spread
	trim := 50 + 20*spread
	channel := 0.02 + 0.005*spread
	watermark := 0.01 + 0.002*spread
	noise := 0.002 + 0.0005*spread

	return Table{
		DimCrop:         {0.3, 0.8},
		DimBrightness:   {brightBase - 0.03, brightBase + 0.03},
		DimContrast:     {0.95 + 0.01*spread, 1.00 + 0.01*spread},
		DimSaturation:   {0.90 + 0.02*spread, 0.95 + 0.02*spread},
		DimHue:          {hueBase - 10, hueBase + 10},
		DimGamma:        {0.95 + 0.01*spread, 1.00 + 0.01*spread},
		DimRotation:     {-rotation, rotation},
		DimSpeed:        speed,
		DimPitch:        {-pitch, pitch},
		DimTrimStart:    {0, float64(int(trim))},
		DimTrimEnd:      {0, float64(int(trim))},
		DimChannelShift: {-channel, channel},
		DimNoise:        {noise, noise},
		DimWatermark:    {watermark, watermark},
	}, nil
}
