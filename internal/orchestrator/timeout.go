package orchestrator

import "time"

// Timeouts scale the per-variant deadline with source duration.
type Timeouts struct {
	Base      time.Duration `mapstructure:"base"`
	PerSecond time.Duration `mapstructure:"per_second"`
	Max       time.Duration `mapstructure:"max"`
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Base: 2 * time.Minute, PerSecond: 5 * time.Second, Max: 30 * time.Minute}
}

// For returns min(Max, Base + duration*PerSecond). Unknown duration gets
// Max. A zero Max means no cap.
func (t Timeouts) For(durationSeconds float64) time.Duration {
	if durationSeconds <= 0 {
		if t.Max > 0 {
			return t.Max
		}
		return t.Base
	}
	d := t.Base + time.Duration(durationSeconds*float64(t.PerSecond))
	if t.Max > 0 && d > t.Max {
		return t.Max
	}
	return d
}
