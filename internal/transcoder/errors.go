package transcoder

import (
	"fmt"
	"time"
)

// ProbeError means the source could not be inspected. It aborts a batch.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// TranscodeFailure is a non-zero ffmpeg exit. Stderr holds the tail of
// the process output.
type TranscodeFailure struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *TranscodeFailure) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, lastLine(e.Stderr))
}

func (e *TranscodeFailure) Unwrap() error { return e.Err }

// TimeoutError means ffmpeg ran past its per-variant deadline and was killed.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ffmpeg timed out after %s", e.Timeout)
}
