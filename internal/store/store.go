package store

import (
	"errors"

	"uniquify-worker/pkg/models"
)

// ErrNotFound is returned when no batch has the requested ID.
var ErrNotFound = errors.New("batch not found")

func clone(j models.BatchJob) models.BatchJob {
	j.Variants = append([]models.VariantState(nil), j.Variants...)
	return j
}
