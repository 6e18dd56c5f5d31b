package orchestrator

import (
	"context"
	"errors"

	"uniquify-worker/internal/params"
	"uniquify-worker/internal/pipeline"
	"uniquify-worker/internal/transcoder"
	"uniquify-worker/pkg/models"
)

var errMissingOutput = errors.New("transcoder reported success but output is missing or empty")

// Classify maps an error from any stage of a variant to its manifest kind.
func Classify(err error) models.ErrorKind {
	var (
		cfgErr     *params.ConfigurationError
		geoErr     *pipeline.InvalidGeometryError
		buildInv   *pipeline.InvariantViolationError
		paramInv   *params.InvariantViolationError
		probeErr   *transcoder.ProbeError
		timeoutErr *transcoder.TimeoutError
		failure    *transcoder.TranscodeFailure
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return models.ErrConfiguration
	case errors.As(err, &geoErr):
		return models.ErrInvalidGeometry
	case errors.As(err, &buildInv), errors.As(err, &paramInv):
		return models.ErrInvariantViolation
	case errors.As(err, &probeErr):
		return models.ErrProbe
	case errors.As(err, &timeoutErr):
		return models.ErrTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.ErrCanceled
	case errors.As(err, &failure):
		return models.ErrTranscodeFailure
	case errors.Is(err, errMissingOutput):
		return models.ErrMissingOutput
	default:
		return models.ErrInternal
	}
}

func exitCode(err error) int {
	var failure *transcoder.TranscodeFailure
	if errors.As(err, &failure) {
		return failure.ExitCode
	}
	return 0
}
