package pipeline

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Video encoders the command knows how to parameterise.
const (
	CodecSoftware     = "libx264"
	CodecNVENC        = "h264_nvenc"
	CodecVideoToolbox = "h264_videotoolbox"
)

// Encoding holds output codec and quality options.
type Encoding struct {
	VideoCodec   string
	Preset       string
	CRF          int
	PixelFormat  string
	AudioCodec   string
	AudioBitrate string
}

// DefaultEncoding matches the quality the variants were tuned against.
func DefaultEncoding() Encoding {
	return Encoding{
		VideoCodec:   CodecSoftware,
		Preset:       "medium",
		CRF:          23,
		PixelFormat:  "yuv420p",
		AudioCodec:   "aac",
		AudioBitrate: "128k",
	}
}

// Command is a fully built transcode of one variant. It is not modified
// after Build returns.
type Command struct {
	Input        string
	Output       string
	InputOptions []string
	Video        []Stage
	Audio        []Stage
	Encoding     Encoding

	StripMetadata bool
	CreationTime  string
}

// VideoFilter is the rendered -vf chain, empty when there are no stages.
func (c Command) VideoFilter() string { return Chain(c.Video) }

// AudioFilter is the rendered -af chain, empty when there are no stages.
func (c Command) AudioFilter() string { return Chain(c.Audio) }

// Roles lists the roles of the video stages followed by the audio stages.
func (c Command) Roles() []Role {
	roles := make([]Role, 0, len(c.Video)+len(c.Audio))
	for _, s := range c.Video {
		roles = append(roles, s.Role)
	}
	for _, s := range c.Audio {
		roles = append(roles, s.Role)
	}
	return roles
}

// HasRole reports whether any stage carries role r.
func (c Command) HasRole(r Role) bool {
	for _, have := range c.Roles() {
		if have == r {
			return true
		}
	}
	return false
}

// Args renders the ffmpeg argument list (without the binary).
func (c Command) Args() []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	args = append(args, c.InputOptions...)
	args = append(args, "-i", c.Input)
	args = append(args, "-map", "0:v:0", "-map", "0:a?")

	if vf := c.VideoFilter(); vf != "" {
		args = append(args, "-vf", vf)
	}
	if af := c.AudioFilter(); af != "" {
		args = append(args, "-af", af)
	}

	args = append(args, c.videoCodecArgs()...)
	if c.Encoding.PixelFormat != "" {
		args = append(args, "-pix_fmt", c.Encoding.PixelFormat)
	}
	if c.Encoding.AudioCodec != "" {
		args = append(args, "-c:a", c.Encoding.AudioCodec)
	}
	if c.Encoding.AudioBitrate != "" {
		args = append(args, "-b:a", c.Encoding.AudioBitrate)
	}

	switch strings.ToLower(filepath.Ext(c.Output)) {
	case ".mp4", ".mov", ".m4v":
		args = append(args, "-movflags", "+faststart")
	}

	// Output-level flags go last, after every filter and codec option.
	if c.StripMetadata {
		args = append(args, "-map_metadata", "-1", "-map_chapters", "-1")
	}
	if c.CreationTime != "" {
		args = append(args, "-metadata", "creation_time="+c.CreationTime)
	}
	return append(args, c.Output)
}

func (c Command) videoCodecArgs() []string {
	enc := c.Encoding
	codec := enc.VideoCodec
	if codec == "" {
		codec = CodecSoftware
	}
	args := []string{"-c:v", codec}
	switch codec {
	case CodecNVENC:
		if enc.Preset != "" {
			args = append(args, "-preset", enc.Preset)
		}
		args = append(args, "-rc", "vbr", "-cq", strconv.Itoa(enc.CRF))
	case CodecVideoToolbox:
		q := 100 - 2*enc.CRF
		if q < 1 {
			q = 1
		}
		args = append(args, "-q:v", strconv.Itoa(q))
	default:
		if enc.Preset != "" {
			args = append(args, "-preset", enc.Preset)
		}
		args = append(args, "-crf", strconv.Itoa(enc.CRF))
	}
	return args
}
