package params

import "uniquify-worker/pkg/models"

// Validate checks that every present field of set lies inside t. A present
// field whose dimension is disabled in t is also a violation.
func Validate(set models.ModificationSet, t Table) error {
	check := func(d Dimension, v *float64) error {
		if v == nil {
			return nil
		}
		r, ok := t[d]
		if !ok || !r.Contains(*v) {
			return &InvariantViolationError{Dimension: d, Value: *v, Range: r}
		}
		return nil
	}
	checkInt := func(d Dimension, v *int) error {
		if v == nil {
			return nil
		}
		f := float64(*v)
		return check(d, &f)
	}

	checks := []error{
		check(DimCrop, set.CropPercent),
		check(DimBrightness, set.Brightness),
		check(DimContrast, set.Contrast),
		check(DimSaturation, set.Saturation),
		check(DimHue, set.HueDegrees),
		check(DimGamma, set.Gamma),
		check(DimRotation, set.RotationDegrees),
		check(DimSpeed, set.SpeedFactor),
		check(DimPitch, set.PitchSemitones),
		checkInt(DimTrimStart, set.TrimStartMS),
		checkInt(DimTrimEnd, set.TrimEndMS),
		check(DimNoise, set.NoiseAmount),
		check(DimWatermark, set.WatermarkOpacity),
	}
	if cs := set.ChannelShift; cs != nil {
		checks = append(checks,
			check(DimChannelShift, &cs.R),
			check(DimChannelShift, &cs.G),
			check(DimChannelShift, &cs.B),
		)
	}
	if set.Mirror != nil {
		if _, ok := t[DimMirror]; !ok {
			checks = append(checks, &InvariantViolationError{Dimension: DimMirror, Value: 1})
		}
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
