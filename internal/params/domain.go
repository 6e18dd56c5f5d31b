package params

import (
	"math"
	"strconv"
)

// Domains are the values each filter accepts. Every preset, entity table
// and override range must lie inside them; the pipeline builder enforces
// the same bounds on the sets it is given.
var Domains = map[Dimension]Range{
	DimCrop:         {0, 24.99},
	DimBrightness:   {-1, 1},
	DimContrast:     {-1000, 1000},
	DimSaturation:   {0, 3},
	DimHue:          {-360, 360},
	DimGamma:        {0.1, 10},
	DimRotation:     {-45, 45},
	DimSpeed:        {0.25, 4},
	DimPitch:        {-12, 12},
	DimTrimStart:    {0, math.Inf(1)},
	DimTrimEnd:      {0, math.Inf(1)},
	DimChannelShift: {-1, 1},
	DimNoise:        {0, 1},
	DimWatermark:    {0, 1},
	DimMirror:       {0, 1},
}

// Domain returns the accepted values for d.
func Domain(d Dimension) Range {
	return Domains[d]
}

// Within reports whether r lies entirely inside o.
func (r Range) Within(o Range) bool {
	return r.Min >= o.Min && r.Max <= o.Max
}

func checkDomain(d Dimension, r Range) error {
	dom := Domain(d)
	if r.Within(dom) {
		return nil
	}
	return &ConfigurationError{
		Field:  "override." + string(d),
		Value:  formatRange(r),
		Reason: "outside the accepted domain " + formatRange(dom),
	}
}

func formatRange(r Range) string {
	return strconv.FormatFloat(r.Min, 'g', -1, 64) + ".." + strconv.FormatFloat(r.Max, 'g', -1, 64)
}
