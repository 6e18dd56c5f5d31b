package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"uniquify-worker/internal/logging"
	"uniquify-worker/internal/orchestrator"
	"uniquify-worker/internal/params"
	"uniquify-worker/internal/pipeline"
)

// EnvPrefix namespaces environment overrides, e.g. UNIQ_ENCODER_CRF.
const EnvPrefix = "UNIQ"

// Config holds all the settings for the worker.
type Config struct {
	WorkerID    string `mapstructure:"worker_id"`
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
	OutputDir   string `mapstructure:"output_dir"`
	Preset      string `mapstructure:"preset"`
	Concurrency int    `mapstructure:"concurrency"` // 0 picks from the host
	MaxVariants int    `mapstructure:"max_variants"`
	StateDB     string `mapstructure:"state_db"` // "" keeps job state in memory
	KeepFailed  bool   `mapstructure:"keep_failed_outputs"`

	Timeout  orchestrator.Timeouts `mapstructure:"timeout"`
	Encoder  EncoderConfig         `mapstructure:"encoder"`
	Metadata MetadataConfig        `mapstructure:"metadata"`
	Report   ReportConfig          `mapstructure:"report"`
	Log      logging.Config        `mapstructure:"log"`

	// Overrides replaces preset ranges by dimension name, e.g. hue: [-2, 2].
	Overrides map[string][]float64 `mapstructure:"overrides"`
	Disabled  []string             `mapstructure:"disabled"`
}

type EncoderConfig struct {
	Codec         string `mapstructure:"codec"` // auto picks the host's best encoder
	EnableHWAccel bool   `mapstructure:"enable_hw_accel"`
	Preset        string `mapstructure:"preset"`
	CRF           int    `mapstructure:"crf"`
	PixelFormat   string `mapstructure:"pixel_format"`
	AudioCodec    string `mapstructure:"audio_codec"`
	AudioBitrate  string `mapstructure:"audio_bitrate"`
}

type MetadataConfig struct {
	Strip              bool `mapstructure:"strip"`
	RandomizeTimestamp bool `mapstructure:"randomize_timestamp"`
}

type ReportConfig struct {
	URL              string `mapstructure:"url"` // "" disables publishing
	HeartbeatSeconds int    `mapstructure:"heartbeat_seconds"`
}

func setDefaults(v *viper.Viper) {
	def := pipeline.DefaultEncoding()
	to := orchestrator.DefaultTimeouts()

	v.SetDefault("worker_id", "local")
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("output_dir", "")
	v.SetDefault("preset", params.Balanced.String())
	v.SetDefault("concurrency", 0)
	v.SetDefault("max_variants", orchestrator.DefaultMaxVariants)
	v.SetDefault("state_db", "")
	v.SetDefault("keep_failed_outputs", false)

	v.SetDefault("timeout.base", to.Base)
	v.SetDefault("timeout.per_second", to.PerSecond)
	v.SetDefault("timeout.max", to.Max)

	v.SetDefault("encoder.codec", "auto")
	v.SetDefault("encoder.enable_hw_accel", true)
	v.SetDefault("encoder.preset", def.Preset)
	v.SetDefault("encoder.crf", def.CRF)
	v.SetDefault("encoder.pixel_format", def.PixelFormat)
	v.SetDefault("encoder.audio_codec", def.AudioCodec)
	v.SetDefault("encoder.audio_bitrate", def.AudioBitrate)

	v.SetDefault("metadata.strip", true)
	v.SetDefault("metadata.randomize_timestamp", true)

	v.SetDefault("report.url", "")
	v.SetDefault("report.heartbeat_seconds", 15)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.file_max_size_mb", 50)
	v.SetDefault("log.file_max_backups", 3)
	v.SetDefault("log.file_max_age_days", 7)
	v.SetDefault("log.file_compress", true)
	v.SetDefault("log.sample_every", 0)
}

// Load merges defaults, the YAML file at path (optional), a .env file in
// the working directory and UNIQ_* environment variables, in that order of
// increasing precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no batch could run with.
func (c *Config) Validate() error {
	if _, err := params.ParsePreset(c.Preset); err != nil {
		return err
	}
	if c.Concurrency < 0 {
		return &params.ConfigurationError{Field: "concurrency", Value: fmt.Sprint(c.Concurrency), Reason: "must not be negative"}
	}
	if c.MaxVariants < 1 {
		return &params.ConfigurationError{Field: "max_variants", Value: fmt.Sprint(c.MaxVariants), Reason: "must be at least 1"}
	}
	if c.Encoder.CRF < 0 || c.Encoder.CRF > 51 {
		return &params.ConfigurationError{Field: "encoder.crf", Value: fmt.Sprint(c.Encoder.CRF), Reason: "must be within 0..51"}
	}
	switch c.Encoder.Codec {
	case "auto", pipeline.CodecSoftware, pipeline.CodecNVENC, pipeline.CodecVideoToolbox:
	default:
		return &params.ConfigurationError{Field: "encoder.codec", Value: c.Encoder.Codec, Reason: "unsupported encoder"}
	}
	_, err := c.ParamOverrides()
	return err
}

// Encoding converts the encoder section into pipeline options. Codec
// "auto" is left for the transcoder engine to resolve.
func (c *Config) Encoding() pipeline.Encoding {
	return pipeline.Encoding{
		VideoCodec:   c.Encoder.Codec,
		Preset:       c.Encoder.Preset,
		CRF:          c.Encoder.CRF,
		PixelFormat:  c.Encoder.PixelFormat,
		AudioCodec:   c.Encoder.AudioCodec,
		AudioBitrate: c.Encoder.AudioBitrate,
	}
}

// ParamOverrides converts the overrides and disabled lists.
func (c *Config) ParamOverrides() (params.Overrides, error) {
	var o params.Overrides
	names := make([]string, 0, len(c.Overrides))
	for name := range c.Overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d, err := params.ParseDimension(name)
		if err != nil {
			return params.Overrides{}, err
		}
		bounds := c.Overrides[name]
		if len(bounds) != 2 {
			return params.Overrides{}, &params.ConfigurationError{Field: "overrides." + name, Value: fmt.Sprint(bounds), Reason: "expected [min, max]"}
		}
		if o.Ranges == nil {
			o.Ranges = make(map[params.Dimension]params.Range)
		}
		o.Ranges[d] = params.Range{Min: bounds[0], Max: bounds[1]}
	}
	for _, name := range c.Disabled {
		d, err := params.ParseDimension(name)
		if err != nil {
			return params.Overrides{}, err
		}
		o.Disabled = append(o.Disabled, d)
	}
	if err := o.Validate(); err != nil {
		return params.Overrides{}, err
	}
	return o, nil
}
