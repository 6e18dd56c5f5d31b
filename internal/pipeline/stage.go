package pipeline

import "strings"

// Role tags what a stage does, independent of the ffmpeg filter used.
type Role string

const (
	RoleCrop           Role = "crop"
	RoleScale          Role = "scale"
	RoleColor          Role = "color"
	RoleHue            Role = "hue"
	RoleChannelShift   Role = "channel_shift"
	RoleMirror         Role = "mirror"
	RoleRotate         Role = "rotate"
	RoleTimestampScale Role = "timestamp_scale"
	RoleNoise          Role = "noise"
	RoleWatermark      Role = "watermark"
	RolePitch          Role = "pitch"
	RoleTempo          Role = "tempo"
)

// Param is one filter option. An empty Key renders the bare value.
type Param struct {
	Key   string
	Value string
}

// Stage is one filter in a chain.
type Stage struct {
	Filter string
	Params []Param
	Role   Role
}

func (s Stage) String() string {
	if len(s.Params) == 0 {
		return s.Filter
	}
	parts := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		if p.Key == "" {
			parts = append(parts, p.Value)
			continue
		}
		parts = append(parts, p.Key+"="+p.Value)
	}
	return s.Filter + "=" + strings.Join(parts, ":")
}

// Chain joins stages into an ffmpeg simple filtergraph.
func Chain(stages []Stage) string {
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ",")
}
