package models

import "time"

// ChannelShift holds per-channel colour balance offsets in [-1, 1].
type ChannelShift struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// ModificationSet is the resolved set of modifications for one variant.
// A nil field means the dimension is disabled, which is not the same as a
// zero-magnitude value.
type ModificationSet struct {
	CropPercent      *float64      `json:"crop_percent,omitempty"`
	Brightness       *float64      `json:"brightness,omitempty"`
	Contrast         *float64      `json:"contrast,omitempty"`
	Saturation       *float64      `json:"saturation,omitempty"`
	HueDegrees       *float64      `json:"hue_degrees,omitempty"`
	Gamma            *float64      `json:"gamma,omitempty"`
	RotationDegrees  *float64      `json:"rotation_degrees,omitempty"`
	SpeedFactor      *float64      `json:"speed_factor,omitempty"`
	PitchSemitones   *float64      `json:"pitch_semitones,omitempty"`
	TrimStartMS      *int          `json:"trim_start_ms,omitempty"`
	TrimEndMS        *int          `json:"trim_end_ms,omitempty"`
	ChannelShift     *ChannelShift `json:"channel_shift,omitempty"`
	NoiseAmount      *float64      `json:"noise_amount,omitempty"`
	NoiseSeed        *uint32       `json:"noise_seed,omitempty"`
	WatermarkOpacity *float64      `json:"watermark_opacity,omitempty"`
	Mirror           *bool         `json:"mirror,omitempty"`

	// CreationAge is how far before the batch reference time the output's
	// creation_time metadata is placed.
	CreationAge time.Duration `json:"creation_age,omitempty"`
}

// SourceGeometry is what the prober reports for the source file.
type SourceGeometry struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate,omitempty"` // 0 when unknown or no audio
}

// ErrorKind classifies a variant failure or warning in the manifest.
type ErrorKind string

const (
	ErrConfiguration      ErrorKind = "configuration"
	ErrInvalidGeometry    ErrorKind = "invalid_geometry"
	ErrInvariantViolation ErrorKind = "invariant_violation"
	ErrProbe              ErrorKind = "probe"
	ErrTranscodeFailure   ErrorKind = "transcode_failure"
	ErrTimeout            ErrorKind = "timeout"
	ErrMissingOutput      ErrorKind = "missing_output"
	ErrCanceled           ErrorKind = "canceled"
	ErrInternal           ErrorKind = "internal"

	WarnNoOp            ErrorKind = "noop"
	WarnDuplicateOutput ErrorKind = "duplicate_output"
)

// VariantResult is the outcome of one variant. Never mutated once appended
// to a manifest.
type VariantResult struct {
	VariantID     string          `json:"variant_id"`
	Index         int             `json:"index"`
	EntityKey     string          `json:"entity_key,omitempty"`
	OutputPath    string          `json:"output_path"`
	Modifications ModificationSet `json:"modification_set"`
	OutputHash    string          `json:"output_hash,omitempty"`
	OutputBytes   int64           `json:"output_bytes,omitempty"`
	Success       bool            `json:"success"`
	Error         ErrorKind       `json:"error,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	ExitCode      int             `json:"exit_code,omitempty"`
	Warning       ErrorKind       `json:"warning,omitempty"`
	ElapsedMS     int64           `json:"elapsed_ms"`
	Command       []string        `json:"command,omitempty"`
}

// BatchManifest is the terminal record of a batch run.
type BatchManifest struct {
	BatchID     string          `json:"batch_id"`
	SourcePath  string          `json:"source_path"`
	SourceHash  string          `json:"source_hash"`
	Source      SourceGeometry  `json:"source"`
	Preset      string          `json:"preset"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Requested   int             `json:"requested"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Variants    []VariantResult `json:"variants"`
	Limitations []string        `json:"limitations,omitempty"`
}

// VariantState is a step of the per-variant state machine.
type VariantState string

const (
	StateQueued          VariantState = "queued"
	StateProbing         VariantState = "probing"
	StateParamsGenerated VariantState = "params_generated"
	StateCommandBuilt    VariantState = "command_built"
	StateTranscoding     VariantState = "transcoding"
	StateVerified        VariantState = "verified"
	StateFailed          VariantState = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s VariantState) Terminal() bool {
	return s == StateVerified || s == StateFailed
}

// BatchStatus is the coarse status of a batch job.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "RUNNING"
	BatchCompleted BatchStatus = "COMPLETED"
	BatchPartial   BatchStatus = "PARTIAL"
	BatchFailed    BatchStatus = "FAILED"
	BatchCanceled  BatchStatus = "CANCELED"
)

// BatchJob is the record kept in a job store while a batch runs.
type BatchJob struct {
	ID         string         `json:"id"`
	SourcePath string         `json:"source_path"`
	Preset     string         `json:"preset"`
	Status     BatchStatus    `json:"status"`
	Variants   []VariantState `json:"variants"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Progress summarises how many variants reached a terminal state.
func (j BatchJob) Progress() (done, failed, total int) {
	total = len(j.Variants)
	for _, s := range j.Variants {
		switch s {
		case StateVerified:
			done++
		case StateFailed:
			done++
			failed++
		}
	}
	return done, failed, total
}

// HostStats is a point-in-time view of worker load.
type HostStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RAMPercent float64 `json:"ram_percent"`
	IsBusy     bool    `json:"is_busy"`
}

// ProgressPayload is sent to the report endpoint while a batch runs.
type ProgressPayload struct {
	WorkerID  string    `json:"worker_id"`
	BatchID   string    `json:"batch_id"`
	Status    string    `json:"status"`
	Done      int       `json:"done"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
	Progress  float64   `json:"progress"`
	Host      HostStats `json:"host"`
	Timestamp time.Time `json:"timestamp"`
}
